package listsync

import "sync/atomic"

// epoch is a monotonic generation counter.
//
// Long operations capture the epoch when they start and compare it when they
// finish. Teardown advances the epoch, so any result that arrives afterwards
// sees a mismatch and is dropped.
type epoch struct {
	n atomic.Uint64
}

// current returns the epoch without advancing it.
func (e *epoch) current() uint64 {
	return e.n.Load()
}

// advance invalidates every operation started before the call.
func (e *epoch) advance() uint64 {
	return e.n.Add(1)
}

// valid reports whether an operation started at gen may still commit.
func (e *epoch) valid(gen uint64) bool {
	return e.n.Load() == gen
}
