package listsync

import (
	"sync"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Subscription delivers events from a Stream to a handler on its own goroutine.
//
// Cancel is synchronous: once it returns, the handler is not running and will
// not run again. The handler must not call Cancel itself.
type Subscription struct {
	stream  Stream
	onEvent func(record.ChangeEvent)

	mu       sync.Mutex // held while the handler runs
	detached bool

	once sync.Once
	done chan struct{}
}

func newSubscription(stream Stream, onEvent func(record.ChangeEvent)) *Subscription {
	s := &Subscription{
		stream:  stream,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	go s.dispatch()
	return s
}

func (s *Subscription) dispatch() {
	defer close(s.done)
	for ev := range s.stream.Events() {
		s.mu.Lock()
		if s.detached {
			s.mu.Unlock()
			return
		}
		s.onEvent(ev)
		s.mu.Unlock()
	}
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.detached = true
		s.mu.Unlock()
		_ = s.stream.Close()
	})
}

// Done is closed when the dispatch goroutine exits, either after Cancel or
// because the stream ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the stream's termination cause. Nil while running or after Cancel.
func (s *Subscription) Err() error {
	s.mu.Lock()
	detached := s.detached
	s.mu.Unlock()
	if detached {
		return nil
	}
	select {
	case <-s.done:
		return s.stream.Err()
	default:
		return nil
	}
}
