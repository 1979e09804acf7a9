package testutil

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// MemorySource is an in-memory listsync.Source for tests.
//
// Tables are seeded directly; Emit both mutates the table and fans the event
// out to open streams, so a resync after Drop sees the emitted changes.
// Events are stamped with Seq from a DeterministicClock.
//
// Thread-safety: all methods are safe for concurrent use.
type MemorySource struct {
	mu           sync.Mutex
	tables       map[string]map[int64]record.Record
	streams      []*MemoryStream
	selectErr    error
	subscribeErr error
	gate         chan struct{}
	selects      int
	clock        *DeterministicClock
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		tables: make(map[string]map[int64]record.Record),
		clock:  NewDeterministicClock(),
	}
}

// Seed stores records in table, replacing rows with the same ID.
func (m *MemorySource) Seed(table string, records ...record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.table(table)
	for _, r := range records {
		rows[r.ID] = r.Clone()
	}
}

// FailSelect makes every Select return err until called again with nil.
func (m *MemorySource) FailSelect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectErr = err
}

// FailSubscribe makes every Subscribe return err until called again with nil.
func (m *MemorySource) FailSubscribe(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// HoldSelect blocks subsequent Select calls until release is called.
func (m *MemorySource) HoldSelect() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Selects returns how many Select calls were made.
func (m *MemorySource) Selects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selects
}

// Select implements listsync.Source. Order is ignored; callers sort.
func (m *MemorySource) Select(ctx context.Context, table string, filter record.Filter, _ []record.SortKey) ([]record.Record, error) {
	m.mu.Lock()
	m.selects++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	ids := slices.Sorted(maps.Keys(m.tables[table]))
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		r := m.tables[table][id]
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Subscribe implements listsync.Source.
func (m *MemorySource) Subscribe(ctx context.Context, table string, mask record.EventMask) (listsync.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	st := &MemoryStream{
		table:  table,
		mask:   mask,
		events: make(chan record.ChangeEvent, 256),
	}
	m.streams = append(m.streams, st)
	return st, nil
}

// Subscribers returns the number of open streams on table.
func (m *MemorySource) Subscribers(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.streams {
		if st.table == table && st.open() {
			n++
		}
	}
	return n
}

// Emit applies ev to the stored table and delivers it to matching streams.
func (m *MemorySource) Emit(ev record.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.Seq = m.clock.Next()
	rows := m.table(ev.Table)
	switch ev.Kind {
	case record.Inserted, record.Updated:
		if ev.Record != nil {
			rows[ev.Record.ID] = ev.Record.Clone()
		}
	case record.Deleted:
		delete(rows, ev.ID)
	}

	live := m.streams[:0]
	for _, st := range m.streams {
		if !st.open() {
			continue
		}
		live = append(live, st)
		if st.table == ev.Table && st.mask.Has(ev.Kind) {
			st.send(ev)
		}
	}
	m.streams = live
}

// Deliver sends ev to matching streams without touching stored rows. Use it
// to simulate duplicated or stale deliveries.
func (m *MemorySource) Deliver(ev record.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.streams {
		if st.table == ev.Table && st.mask.Has(ev.Kind) {
			st.send(ev)
		}
	}
}

// Drop ends every open stream with err, simulating a transport failure.
func (m *MemorySource) Drop(err error) {
	if err == nil {
		err = ErrDropped
	}
	m.mu.Lock()
	streams := m.streams
	m.streams = nil
	m.mu.Unlock()
	for _, st := range streams {
		st.end(err)
	}
}

// ErrDropped is the default error passed to streams ended by Drop.
var ErrDropped = errors.New("connection dropped")

func (m *MemorySource) table(name string) map[int64]record.Record {
	rows, ok := m.tables[name]
	if !ok {
		rows = make(map[int64]record.Record)
		m.tables[name] = rows
	}
	return rows
}

// MemoryStream is the listsync.Stream returned by MemorySource.
type MemoryStream struct {
	table  string
	mask   record.EventMask
	events chan record.ChangeEvent

	mu     sync.Mutex
	closed bool
	err    error
}

// Events implements listsync.Stream.
func (s *MemoryStream) Events() <-chan record.ChangeEvent {
	return s.events
}

// Err implements listsync.Stream.
func (s *MemoryStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements listsync.Stream.
func (s *MemoryStream) Close() error {
	s.end(nil)
	return nil
}

func (s *MemoryStream) open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *MemoryStream) send(ev record.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *MemoryStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}
