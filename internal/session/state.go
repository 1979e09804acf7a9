package session

import "sync"

// State holds the client's current session.
//
// It answers getSession and delivers auth state changes: listeners are
// called after every SignIn and SignOut with the new session and whether
// one is present.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run on
// the caller's goroutine, outside the lock.
type State struct {
	mu        sync.Mutex
	current   Session
	present   bool
	listeners map[int]func(Session, bool)
	nextID    int
}

// NewState creates a signed-out state.
func NewState() *State {
	return &State{listeners: make(map[int]func(Session, bool))}
}

// Get returns the current session.
func (s *State) Get() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.present
}

// SignIn replaces the current session.
func (s *State) SignIn(sess Session) {
	s.set(sess, true)
}

// SignOut clears the current session.
func (s *State) SignOut() {
	s.set(Session{}, false)
}

// OnChange registers fn for session changes. The returned function
// unregisters it.
func (s *State) OnChange(fn func(Session, bool)) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *State) set(sess Session, present bool) {
	s.mu.Lock()
	if s.present == present && s.current == sess {
		s.mu.Unlock()
		return
	}
	s.current = sess
	s.present = present
	fns := make([]func(Session, bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sess, present)
	}
}
