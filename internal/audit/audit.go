package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the engine.
const (
	EventLogin         = "login"
	EventLoginRejected = "login_rejected"
	EventLogout        = "logout"
	EventForcedLogout  = "forced_logout"
	EventGuardRedirect = "guard_redirect"
	EventStoreError    = "store_error"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Origin    string            `json:"origin,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Route     string            `json:"route,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events for a consumer goroutine.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// LoggerSink writes events as structured log entries.
type LoggerSink struct {
	logger *zap.Logger
}

func NewLoggerSink(logger *zap.Logger) *LoggerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggerSink{logger: logger.Named("audit")}
}

func (s *LoggerSink) Emit(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.Origin != "" {
		fields = append(fields, zap.String("origin", event.Origin))
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Route != "" {
		fields = append(fields, zap.String("route", event.Route))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}
	s.logger.Info(event.EventType, fields...)
}
