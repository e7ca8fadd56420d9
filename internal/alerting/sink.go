package alerting

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventSyncSummary       EventType = "sync_summary"
	EventCallEnded         EventType = "call_ended"
	EventRemoteUnavailable EventType = "remote_unavailable"
	EventSystem            EventType = "system"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

func (l Level) rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelError:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as min.
func (l Level) AtLeast(min Level) bool { return l.rank() >= min.rank() }

// Event is a structured operational signal. Fields use snake_case keys.
type Event struct {
	Type    EventType      `json:"type"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	At      time.Time      `json:"at"`
}

// Sink receives events. Emit is fire-and-forget: it must not block the caller
// on delivery and never reports failure.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Noop drops every event.
type Noop struct{}

func (Noop) Emit(context.Context, Event) {}

// LogSink writes events to a slog logger at the matching level.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) {
	if s.Log == nil {
		return
	}
	attrs := make([]slog.Attr, 0, len(e.Fields)+1)
	attrs = append(attrs, slog.String("event", string(e.Type)))
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.Log.LogAttrs(ctx, slogLevel(e.Level), e.Message, attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}
