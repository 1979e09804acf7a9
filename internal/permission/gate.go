package permission

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// Status is the resolution state of a query.
type Status int

const (
	// Loading means the session's set has not arrived yet.
	Loading Status = iota
	// Granted means the set allows the query.
	Granted
	// Denied means the set does not allow the query.
	Denied
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Gate holds the permission set of the current session on a client.
//
// It starts in Loading. Once a set loads, every query is terminally Granted
// or Denied until the session changes, which puts the gate back in Loading
// while the new set loads. Loads for superseded sessions are discarded.
//
// Thread-safety: all methods are safe for concurrent use.
type Gate struct {
	provider Provider
	logger   *slog.Logger

	mu        sync.Mutex
	gen       uint64
	set       Set
	loaded    bool
	listeners map[int]func()
	nextID    int
}

// NewGate creates a Loading gate backed by provider.
func NewGate(provider Provider, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{provider: provider, logger: logger, listeners: make(map[int]func())}
}

// Load resolves the set for s and commits it unless a newer Load started
// meanwhile. Provider errors commit the empty set.
func (g *Gate) Load(ctx context.Context, s session.Session, present bool) {
	gen := g.begin()
	g.changed()
	g.finish(ctx, gen, s, present)
}

// begin enters Loading and claims the next generation.
func (g *Gate) begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.loaded = false
	return g.gen
}

func (g *Gate) finish(ctx context.Context, gen uint64, s session.Session, present bool) {
	set, err := LoadSet(ctx, g.provider, s, present)
	if err != nil {
		g.logger.Warn("permission load failed, denying", "user", s.UserID, "error", err)
	}

	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.set = set
	g.loaded = true
	g.mu.Unlock()
	g.changed()
}

// Bind loads the set for the state's current session and reloads it on
// every session change. The returned function stops tracking.
//
// The session is read and the generation claimed under one lock, so the
// newest generation always belongs to the latest session even when a
// change races the initial load.
func (g *Gate) Bind(ctx context.Context, st *session.State) (unbind func()) {
	var mu sync.Mutex
	reload := func() {
		mu.Lock()
		s, present := st.Get()
		gen := g.begin()
		mu.Unlock()
		g.changed()
		go g.finish(ctx, gen, s, present)
	}
	remove := st.OnChange(func(session.Session, bool) { reload() })
	reload()
	return remove
}

// Status resolves q against the current set.
func (g *Gate) Status(q Query) Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.loaded {
		return Loading
	}
	if Resolve(q, g.set) {
		return Granted
	}
	return Denied
}

// Set returns the loaded set, or false while loading.
func (g *Gate) Set() (Set, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.loaded {
		return Set{}, false
	}
	return g.set.Clone(), true
}

// OnChange registers fn to run whenever the gate enters or leaves Loading.
func (g *Gate) OnChange(fn func()) (remove func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

func (g *Gate) changed() {
	g.mu.Lock()
	fns := make([]func(), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Guard picks what to render for q: children when granted, fallback when
// denied, and the zero value while loading. The status is returned so
// callers can tell an empty render from a pending one.
func Guard[T any](g *Gate, q Query, children, fallback T) (T, Status) {
	switch st := g.Status(q); st {
	case Granted:
		return children, st
	case Denied:
		return fallback, st
	default:
		var zero T
		return zero, st
	}
}
