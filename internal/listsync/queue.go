package listsync

import (
	"sync"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// eventQueue is a FIFO of change events between a Subscription's dispatch
// goroutine and the Run loop.
//
// Enqueue never blocks, so a slow view cannot stall the dispatch goroutine
// and Cancel stays prompt. The signal channel lets Run wait with select
// alongside ctx.Done.
type eventQueue struct {
	mu     sync.Mutex
	events []record.ChangeEvent
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]record.ChangeEvent, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends ev. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(ev record.ChangeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front event without blocking.
func (q *eventQueue) TryDequeue() (record.ChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return record.ChangeEvent{}, false
	}
	ev := q.events[0]
	q.events[0] = record.ChangeEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Wait returns a channel that fires when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
