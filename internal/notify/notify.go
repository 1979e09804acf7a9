// Package notify delivers user-facing notifications.
//
// Notifications are advisory. Delivery is fire-and-forget: a sink may fail or
// drop a notification, and callers log that failure and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind is the visual variant of a notification.
type Kind string

const (
	KindDefault Kind = "default"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDefault, KindSuccess, KindError, KindWarning, KindInfo:
		return k, nil
	case "":
		return KindDefault, nil
	default:
		return "", fmt.Errorf("unknown notification kind %q", s)
	}
}

// Notification is one message for the user.
type Notification struct {
	Kind    Kind   `json:"kind"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// Sink receives notifications.
type Sink interface {
	Notify(n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification) error

// Notify calls f.
func (f SinkFunc) Notify(n Notification) error { return f(n) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Notification) error { return nil })

// ErrDropped is returned by Async when its buffer is full or it is closed.
var ErrDropped = errors.New("notification dropped")

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs n at a level derived from its kind.
func (s LogSink) Notify(n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Kind {
	case KindError:
		level = slog.LevelError
	case KindWarning:
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "notification", "kind", string(n.Kind), "title", n.Title, "message", n.Message)
	return nil
}

// Multi fans a notification out to several sinks, joining their errors.
type Multi []Sink

// Notify delivers n to every sink even when some fail.
func (m Multi) Notify(n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every notification in memory.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records n.
func (r *Recorder) Notify(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Reset forgets recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
