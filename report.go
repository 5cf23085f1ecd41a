package authstate

import (
	"slices"
	"time"

	"github.com/MrEthical07/authstate/credential"
)

// SyncReport summarizes how an engine keeps its state in step with other contexts.
type SyncReport struct {
	Origin          string
	Backend         string
	KeyPrefix       string
	Notifications   bool
	PollInterval    time.Duration
	WatchedKeys     []string
	GuardRules      int
	AuditEnabled    bool
	MetricsEnabled  bool
	LatencyMetrics  bool
	TransportTarget string
	Warnings        []string
}

// Report describes the engine's synchronization posture and flags weak settings.
func (e *Engine) Report() SyncReport {
	if e == nil {
		return SyncReport{}
	}

	r := SyncReport{
		Origin:          e.store.Origin(),
		Backend:         backendKind(e.backend),
		KeyPrefix:       e.config.Store.KeyPrefix,
		Notifications:   !e.config.Sync.DisableNotifications,
		PollInterval:    e.config.Sync.PollInterval,
		WatchedKeys:     slices.Clone(e.config.Sync.WatchedKeys),
		GuardRules:      len(e.config.Routes.Rules),
		AuditEnabled:    e.config.Audit.Enabled,
		MetricsEnabled:  e.config.Metrics.Enabled,
		LatencyMetrics:  e.config.Metrics.EnableLatencyHistograms,
		TransportTarget: e.config.Transport.BaseURL,
	}

	if r.Backend == "memory" {
		r.Warnings = append(r.Warnings, "memory backend is only shared within this process")
	}
	if !r.Notifications {
		r.Warnings = append(r.Warnings, "notifications disabled; other contexts are seen only by polling")
	}
	if r.PollInterval > 5*time.Second {
		r.Warnings = append(r.Warnings, "poll interval above 5s delays detection of same-context writes")
	}
	if !slices.Contains(r.WatchedKeys, credential.KeyAccessToken) || !slices.Contains(r.WatchedKeys, credential.KeyLoggedUser) {
		r.Warnings = append(r.Warnings, "watched keys omit ACCESS_TOKEN or LOGGED_USER")
	}
	if e.config.Audit.Enabled && !e.config.Audit.DropIfFull {
		r.Warnings = append(r.Warnings, "audit blocks callers when its buffer is full")
	}
	return r
}
