package notify

import (
	"log/slog"
	"sync"
)

// Async decouples producers from a slow sink.
//
// Notify never blocks: when the buffer is full the notification is dropped
// and ErrDropped is returned. A single goroutine drains the buffer into the
// wrapped sink, so the wrapped sink sees notifications in order.
type Async struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.RWMutex
	ch     chan Notification
	closed bool
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. Call Close to stop it.
func NewAsync(sink Sink, buffer int, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		sink:   sink,
		logger: logger,
		ch:     make(chan Notification, buffer),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for n := range a.ch {
		if err := a.sink.Notify(n); err != nil {
			a.logger.Warn("notification delivery failed", "kind", string(n.Kind), "error", err)
		}
	}
}

// Notify enqueues n without blocking.
func (a *Async) Notify(n Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrDropped
	}
	select {
	case a.ch <- n:
		return nil
	default:
		return ErrDropped
	}
}

// Close stops accepting notifications and waits for queued ones to drain.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}
