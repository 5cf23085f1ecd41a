package authstate

import (
	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/guard"
	"github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/state"
)

type (
	UserProfile   = credential.UserProfile
	Credential    = credential.Credential
	Snapshot      = state.Snapshot
	Teardown      = state.Teardown
	Decision      = guard.Decision
	Navigator     = guard.Navigator
	NavigatorFunc = guard.NavigatorFunc

	AuditEvent = audit.Event
	AuditSink  = audit.Sink
)

// Audit event types.
const (
	AuditLogin         = audit.EventLogin
	AuditLoginRejected = audit.EventLoginRejected
	AuditLogout        = audit.EventLogout
	AuditForcedLogout  = audit.EventForcedLogout
	AuditGuardRedirect = audit.EventGuardRedirect
	AuditStoreError    = audit.EventStoreError
)

// NewChannelSink returns an audit sink that buffers events on a channel.
var NewChannelSink = audit.NewChannelSink

// NewJSONWriterSink returns an audit sink that writes JSON lines.
var NewJSONWriterSink = audit.NewJSONWriterSink

// NewLoggerSink returns an audit sink that writes structured log entries.
var NewLoggerSink = audit.NewLoggerSink
