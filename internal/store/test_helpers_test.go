package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []record.ChangeEvent
}

func (p *recordingPublisher) Publish(ev record.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []record.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]record.ChangeEvent(nil), p.events...)
}

func labels(recs []record.Record, field string) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.String(field)
	}
	return out
}
