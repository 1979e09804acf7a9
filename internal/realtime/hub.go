package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/metrics"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 64

var (
	// ErrSlowSubscriber ends a stream whose buffer overflowed.
	ErrSlowSubscriber = errors.New("subscriber fell behind")

	// ErrHubClosed ends every stream when the hub shuts down.
	ErrHubClosed = errors.New("hub closed")
)

// Hub fans change events out to subscribers.
//
// Thread-safety: all methods are safe for concurrent use. Publish never
// blocks on a subscriber.
type Hub struct {
	mu         sync.Mutex
	subs       map[string]*hubStream
	closed     bool
	bufferSize int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscriber buffer. Values below 1 are ignored.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithMetrics records subscriber and delivery metrics.
func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[string]*hubStream),
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers ev to every subscriber of its table whose mask admits it.
// Subscribers with a full buffer are disconnected with ErrSlowSubscriber.
func (h *Hub) Publish(ev record.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, st := range h.subs {
		if st.table != ev.Table || !st.mask.Has(ev.Kind) {
			continue
		}
		select {
		case st.events <- ev:
			h.metrics.EventDelivered(ev.Table, ev.Kind.String())
		default:
			h.logger.Warn("dropping slow subscriber",
				"subscription", id,
				"table", st.table,
				"buffer", cap(st.events),
			)
			h.metrics.SubscriberDropped(st.table)
			h.removeLocked(st, ErrSlowSubscriber)
		}
	}
}

// Subscribe opens a stream of changes to table. The stream closes when ctx
// is cancelled, on Close, or when the subscriber falls behind.
func (h *Hub) Subscribe(ctx context.Context, table string, mask record.EventMask) (listsync.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mask == 0 {
		mask = record.MaskAll
	}

	st := &hubStream{
		hub:    h,
		id:     uuid.NewString(),
		table:  table,
		mask:   mask,
		events: make(chan record.ChangeEvent, h.bufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subs[st.id] = st
	h.mu.Unlock()

	h.metrics.SubscriberAdded(table)
	h.logger.Debug("subscriber added", "subscription", st.id, "table", table, "mask", mask.String())

	st.stop = context.AfterFunc(ctx, st.detach)
	return st, nil
}

// Subscribers returns the number of open streams on table.
func (h *Hub) Subscribers(table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, st := range h.subs {
		if st.table == table {
			n++
		}
	}
	return n
}

// Close ends every stream with ErrHubClosed and rejects new subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, st := range h.subs {
		h.removeLocked(st, ErrHubClosed)
	}
}

// removeLocked detaches st and closes its channel. Caller holds h.mu.
func (h *Hub) removeLocked(st *hubStream, err error) {
	if _, ok := h.subs[st.id]; !ok {
		return
	}
	delete(h.subs, st.id)
	st.err = err
	close(st.events)
	h.metrics.SubscriberRemoved(st.table)
}

// hubStream is a listsync.Stream fed by a Hub.
type hubStream struct {
	hub    *Hub
	id     string
	table  string
	mask   record.EventMask
	events chan record.ChangeEvent
	stop   func() bool

	// err is written under hub.mu before events is closed.
	err error
}

func (s *hubStream) Events() <-chan record.ChangeEvent {
	return s.events
}

func (s *hubStream) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

func (s *hubStream) Close() error {
	s.stop()
	s.detach()
	return nil
}

func (s *hubStream) detach() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s, nil)
}
