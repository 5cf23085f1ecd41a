package internaldefs

import (
	"github.com/MrEthical07/authstate"
)

// Label is one name/value pair attached to a series.
type Label struct {
	Name  string
	Value string
}

// CounterDef maps an engine counter to an exported series. Several defs may share a Name
// and differ by Label.
type CounterDef struct {
	ID    authstate.MetricID
	Name  string
	Help  string
	Label *Label
}

type HistogramDef struct {
	ID   authstate.MetricID
	Name string
	Help string
}

func label(name, value string) *Label {
	return &Label{Name: name, Value: value}
}

// AuditDroppedName is the series for events lost by the audit dispatcher.
const AuditDroppedName = "authstate_audit_dropped_total"

// CounterDefs lists series in render order; defs sharing a Name are contiguous.
var CounterDefs = []CounterDef{
	{ID: authstate.MetricLoginSuccess, Name: "authstate_login_total", Help: "Login attempts by outcome.", Label: label("outcome", "success")},
	{ID: authstate.MetricLoginRejected, Name: "authstate_login_total", Help: "Login attempts by outcome.", Label: label("outcome", "rejected")},
	{ID: authstate.MetricLogout, Name: "authstate_logout_total", Help: "Credential clears by reason.", Label: label("reason", "user")},
	{ID: authstate.MetricForcedLogout, Name: "authstate_logout_total", Help: "Credential clears by reason.", Label: label("reason", "auth_failure")},
	{ID: authstate.MetricAuthFailure, Name: "authstate_api_auth_failure_total", Help: "API answers that rejected the access token."},
	{ID: authstate.MetricRefreshExplicit, Name: "authstate_state_refresh_total", Help: "State refreshes by trigger.", Label: label("trigger", "explicit")},
	{ID: authstate.MetricRefreshNotification, Name: "authstate_state_refresh_total", Help: "State refreshes by trigger.", Label: label("trigger", "notification")},
	{ID: authstate.MetricRefreshPoll, Name: "authstate_state_refresh_total", Help: "State refreshes by trigger.", Label: label("trigger", "poll")},
	{ID: authstate.MetricStateChanged, Name: "authstate_state_changes_total", Help: "Refreshes that changed the cached session."},
	{ID: authstate.MetricProfileDecodeFailure, Name: "authstate_profile_decode_failure_total", Help: "Stored profiles that could not be decoded."},
	{ID: authstate.MetricStoreError, Name: "authstate_store_error_total", Help: "Credential backend operations that failed."},
	{ID: authstate.MetricGuardAllow, Name: "authstate_guard_decision_total", Help: "Route guard decisions.", Label: label("decision", "allow")},
	{ID: authstate.MetricGuardRedirect, Name: "authstate_guard_decision_total", Help: "Route guard decisions.", Label: label("decision", "redirect")},
}

var HistogramDefs = []HistogramDef{
	{ID: authstate.MetricRefreshLatency, Name: "authstate_state_refresh_latency_seconds", Help: "Time to read the store and swap the cached session."},
}

// HistogramBounds match the engine bucket layout.
var HistogramBounds = []string{"0.001", "0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "+Inf"}

// HistogramBoundSuffix renders HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{"0_001", "0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "inf"}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative le counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
