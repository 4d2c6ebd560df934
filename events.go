package goSession

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	EventRefreshStarted   = "refresh_started"
	EventRefreshSucceeded = "refresh_succeeded"
	EventRefreshFailed    = "refresh_failed"
	EventRequestQueued    = "request_queued"
	EventRequestReplayed  = "request_replayed"
	EventAuthRejected     = "auth_rejected"
	EventSessionExpired   = "session_expired"
	EventLogout           = "logout"
)

type SessionEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Method    string            `json:"method,omitempty"`
	Path      string            `json:"path,omitempty"`
	Status    int               `json:"status,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type EventSink interface {
	Emit(ctx context.Context, event SessionEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, SessionEvent) {}

type ChannelSink struct {
	events chan SessionEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan SessionEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event SessionEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan SessionEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event SessionEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZapSink writes events as structured log entries. Failed events log at
// warn, everything else at info.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("events")}
}

func (s *ZapSink) Emit(_ context.Context, event SessionEvent) {
	if s == nil {
		return
	}
	fields := make([]zap.Field, 0, 6+len(event.Metadata))
	fields = append(fields,
		zap.Time("timestamp", event.Timestamp),
		zap.String("request_id", event.RequestID),
		zap.String("method", event.Method),
		zap.String("path", event.Path),
		zap.Int("status", event.Status),
		zap.Bool("success", event.Success),
	)
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String(k, v))
	}

	if event.Success {
		s.logger.Info(event.EventType, fields...)
		return
	}
	s.logger.Warn(event.EventType, fields...)
}
