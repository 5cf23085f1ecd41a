package authstate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/guard"
	"github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/session"
	"github.com/MrEthical07/authstate/state"
	"github.com/MrEthical07/authstate/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine is one execution context bound to the shared credential store.
type Engine struct {
	config     Config
	logger     *zap.Logger
	backend    credential.Backend
	ownedRedis *redis.Client
	store      *credential.Store
	session    *session.Service
	state      *state.State
	guard      *guard.Guard
	client     *transport.Client
	navigator  Navigator
	audit      *audit.Dispatcher
	metrics    *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
}

func (e *Engine) Store() *credential.Store { return e.store }
func (e *Engine) Session() *session.Service { return e.session }
func (e *Engine) State() *state.State { return e.state }
func (e *Engine) Guard() *guard.Guard { return e.guard }
func (e *Engine) Client() *transport.Client { return e.client }
func (e *Engine) Backend() credential.Backend { return e.backend }

// Origin is the execution context id stamped on every write.
func (e *Engine) Origin() string {
	return e.store.Origin()
}

// Config returns a copy of the resolved configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Snapshot returns the cached session triple.
func (e *Engine) Snapshot() Snapshot {
	return e.state.Snapshot()
}

// Login stores the credential returned by the login API and refreshes the state.
func (e *Engine) Login(ctx context.Context, token string, user *UserProfile) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	err := e.state.Login(ctx, token, user)
	if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrInvalidUser) {
		e.metricInc(MetricLoginRejected)
		e.emitAudit(ctx, audit.Event{EventType: audit.EventLoginRejected, Error: err.Error()})
	}
	return err
}

// Logout clears the credential in every context and refreshes the state.
func (e *Engine) Logout(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.state.Logout(ctx)
}

// Check evaluates the route guard for path against the current store contents.
func (e *Engine) Check(ctx context.Context, path string) Decision {
	return e.guard.Check(ctx, path)
}

// Navigate checks path and forwards a redirect to the navigator.
func (e *Engine) Navigate(ctx context.Context, path string) Decision {
	return e.guard.Enforce(ctx, path, e.navigator)
}

// Watch starts following the shared store. Call the returned teardown when the
// consumer goes away; Close tears down every watch.
func (e *Engine) Watch(ctx context.Context) (Teardown, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	return e.state.Watch(ctx)
}

// HandleAuthFailure clears the credential, refreshes the state and sends the user to the
// login route.
func (e *Engine) HandleAuthFailure(ctx context.Context) error {
	err := e.session.HandleAuthFailure(ctx)
	e.state.Refresh(ctx)
	if e.navigator != nil {
		e.navigator.Navigate(ctx, e.guard.Paths().Login)
	}
	return err
}

// Close stops every watch, flushes the audit queue and releases an engine-owned Redis
// client. It is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.state.Close()
		e.audit.Close()
		if e.ownedRedis != nil {
			if err := e.ownedRedis.Close(); err != nil {
				e.logger.Warn("closing redis client", zap.Error(err))
			}
		}
	})
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if e.audit == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.Origin = e.store.Origin()
	e.audit.Emit(ctx, event)
}

func (e *Engine) onLogin(ctx context.Context, user *credential.UserProfile) {
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventLogin, UserID: user.ID, Success: true})
}

func (e *Engine) onLogout(ctx context.Context, reason session.LogoutReason) {
	event := audit.Event{EventType: audit.EventLogout, Reason: string(reason), Success: true}
	if reason == session.ReasonAuthFailure {
		e.metricInc(MetricForcedLogout)
		event.EventType = audit.EventForcedLogout
	} else {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, event)
}

func (e *Engine) onStoreError(op string, err error) {
	e.metricInc(MetricStoreError)
	e.emitAudit(context.Background(), audit.Event{
		EventType: audit.EventStoreError,
		Error:     err.Error(),
		Metadata:  map[string]string{"op": op},
	})
}

func (e *Engine) onRefresh(trigger state.Trigger, _ state.Snapshot, changed bool, took time.Duration) {
	switch trigger {
	case state.TriggerNotification:
		e.metricInc(MetricRefreshNotification)
	case state.TriggerPoll:
		e.metricInc(MetricRefreshPoll)
	default:
		e.metricInc(MetricRefreshExplicit)
	}
	if changed {
		e.metricInc(MetricStateChanged)
	}
	e.metrics.Observe(MetricRefreshLatency, took)
}

func (e *Engine) onDecision(route string, d guard.Decision) {
	if d.Allowed() {
		e.metricInc(MetricGuardAllow)
		return
	}
	e.metricInc(MetricGuardRedirect)
	e.emitAudit(context.Background(), audit.Event{
		EventType: audit.EventGuardRedirect,
		Route:     route,
		Reason:    string(d.Reason),
		Metadata:  map[string]string{"redirect": d.Redirect},
	})
}

func (e *Engine) onAuthFailure(ctx context.Context) {
	e.metricInc(MetricAuthFailure)
	if err := e.HandleAuthFailure(ctx); err != nil {
		e.logger.Warn("forced logout failed", zap.Error(err))
	}
}

func backendKind(b credential.Backend) string {
	switch b.(type) {
	case *credential.RedisBackend:
		return "redis"
	case *credential.MemoryHub:
		return "memory"
	default:
		return "custom"
	}
}
