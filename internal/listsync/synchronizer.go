package listsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Default reconnect backoff bounds.
const (
	DefaultReconnectMin = 250 * time.Millisecond
	DefaultReconnectMax = 30 * time.Second
)

// Synchronizer mirrors one backend table as an ordered in-memory Collection.
//
// Thread-safety model:
//   - Run(): call from exactly one goroutine; it is the only writer
//   - Initialize(): safe to call directly when Run is not in use
//   - Snapshot(), Loading(), OnChange(), Close(): safe from any goroutine
//
// Listeners registered with OnChange are invoked on the writer goroutine after
// every committed change and must not block.
type Synchronizer struct {
	source Source
	schema record.Schema
	cmp    *record.Comparator
	filter record.Filter
	mask   record.EventMask

	sink   notify.Sink
	msgs   *notify.Messages
	logger *slog.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration

	gen epoch

	mu        sync.RWMutex
	coll      Collection
	loading   bool
	closed    bool
	cancelRun context.CancelFunc
	listeners map[int]func(Collection)
	nextID    int
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithComparator overrides the comparator derived from the schema.
func WithComparator(cmp *record.Comparator) Option {
	return func(s *Synchronizer) { s.cmp = cmp }
}

// WithFilter restricts the mirrored rows to those matching f. String
// values are normalized like stored fields.
func WithFilter(f record.Filter) Option {
	return func(s *Synchronizer) { s.filter = f }
}

// WithMask restricts the subscribed event kinds. Default: MaskAll.
func WithMask(m record.EventMask) Option {
	return func(s *Synchronizer) { s.mask = m }
}

// WithNotifier sets the sink for user-visible notifications.
func WithNotifier(sink notify.Sink) Option {
	return func(s *Synchronizer) { s.sink = sink }
}

// WithMessages sets the localized message catalog.
func WithMessages(m *notify.Messages) Option {
	return func(s *Synchronizer) { s.msgs = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithReconnect sets the exponential backoff bounds used by Run after the
// change stream drops.
func WithReconnect(lo, hi time.Duration) Option {
	return func(s *Synchronizer) {
		s.reconnectMin = lo
		s.reconnectMax = hi
	}
}

// New creates a Synchronizer for schema backed by source.
//
// The collection starts empty and in the loading state.
func New(source Source, schema record.Schema, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source:       source,
		schema:       schema,
		mask:         record.MaskAll,
		sink:         notify.Discard,
		reconnectMin: DefaultReconnectMin,
		reconnectMax: DefaultReconnectMax,
		loading:      true,
		listeners:    make(map[int]func(Collection)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cmp == nil {
		s.cmp = record.ComparatorFor(record.NewCollator(record.DefaultLocale), schema)
	}
	if s.msgs == nil {
		s.msgs = notify.NewMessages(record.DefaultLocale)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.reconnectMax < s.reconnectMin {
		s.reconnectMax = s.reconnectMin
	}
	s.logger = s.logger.With("table", schema.Name)
	if len(s.filter) > 0 {
		norm, err := record.NormalizeFields(s.filter)
		if err != nil {
			s.logger.Warn("filter not normalized", "error", err)
		} else {
			s.filter = record.Filter(norm)
		}
	}
	return s
}

// Schema returns the mirrored table's schema.
func (s *Synchronizer) Schema() record.Schema {
	return s.schema
}

// Snapshot returns the current collection.
func (s *Synchronizer) Snapshot() Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll
}

// Loading reports whether the first fetch has not completed yet.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// OnChange registers fn to receive every committed collection. The returned
// function unregisters it.
func (s *Synchronizer) OnChange(fn func(Collection)) (remove func()) {
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

// Initialize performs the bulk fetch and replaces the collection.
//
// On transport failure the collection becomes empty, an error notification is
// raised and a *FetchError is returned. A fetch that completes after Close is
// discarded and reported as ErrClosed.
func (s *Synchronizer) Initialize(ctx context.Context) (Collection, error) {
	return s.initialize(ctx, true)
}

func (s *Synchronizer) initialize(ctx context.Context, report bool) (Collection, error) {
	gen := s.gen.current()
	if s.isClosed() {
		return Collection{}, ErrClosed
	}

	records, err := s.source.Select(ctx, s.schema.Name, s.filter, s.schema.SortKeys)
	if !s.gen.valid(gen) {
		s.logger.Debug("discarding fetch after teardown")
		return Collection{}, ErrClosed
	}
	if err != nil {
		if ctx.Err() != nil {
			return Collection{}, ctx.Err()
		}
		s.logger.Warn("initial fetch failed", "error", err)
		if !s.commit(gen, Collection{}) {
			return Collection{}, ErrClosed
		}
		if report {
			s.notify(s.msgs.FetchFailed(s.schema.Title))
		}
		return Collection{}, &FetchError{Table: s.schema.Name, Err: err}
	}

	coll := NewCollection(s.cmp, records)
	if !s.commit(gen, coll) {
		return Collection{}, ErrClosed
	}
	s.logger.Debug("collection loaded", "records", coll.Len())
	return coll, nil
}

// Subscribe opens the change stream and delivers events to onEvent on a
// dedicated goroutine. Cancel on the returned Subscription detaches it.
//
// Failure to open raises an error notification and returns *SubscriptionError.
func (s *Synchronizer) Subscribe(ctx context.Context, onEvent func(record.ChangeEvent)) (*Subscription, error) {
	return s.subscribe(ctx, onEvent, true)
}

func (s *Synchronizer) subscribe(ctx context.Context, onEvent func(record.ChangeEvent), report bool) (*Subscription, error) {
	stream, err := s.source.Subscribe(ctx, s.schema.Name, s.mask)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("subscribe failed", "error", err)
		if report {
			s.notify(s.msgs.SubscribeFailed(s.schema.Title))
		}
		return nil, &SubscriptionError{Table: s.schema.Name, Err: err}
	}
	return newSubscription(stream, onEvent), nil
}

// Run drives the mount lifecycle: fetch, subscribe, fold events.
//
// When the stream drops, Run raises a warning, waits with exponential backoff
// and starts over with a fresh fetch, so missed or duplicated events never
// leave the collection permanently stale. The subscription is released on
// every exit path. Run returns ctx.Err() on cancellation and nil after Close.
func (s *Synchronizer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelRun = cancel
	s.mu.Unlock()

	// Only the first failure of a retry streak is reported to the user.
	delay := s.reconnectMin
	report := true
	for {
		subscribed, err := s.runOnce(ctx, report)
		if ctx.Err() != nil {
			if s.isClosed() {
				return nil
			}
			return ctx.Err()
		}
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if subscribed {
			delay = s.reconnectMin
			s.logger.Warn("change stream ended, resyncing", "error", err, "backoff", delay)
			s.notify(s.msgs.Resyncing(s.schema.Title))
		} else {
			s.logger.Info("retrying", "error", err, "backoff", delay)
		}
		report = subscribed

		if err := sleepContext(ctx, delay); err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		if !subscribed {
			delay = min(delay*2, s.reconnectMax)
		}
	}
}

// runOnce performs one fetch-subscribe-fold cycle. It returns when ctx is
// done or the stream ends.
func (s *Synchronizer) runOnce(ctx context.Context, report bool) (subscribed bool, err error) {
	if _, err := s.initialize(ctx, report); err != nil {
		return false, err
	}

	queue := newEventQueue()
	defer queue.Close()

	sub, err := s.subscribe(ctx, func(ev record.ChangeEvent) { queue.Enqueue(ev) }, report)
	if err != nil {
		return false, err
	}
	defer sub.Cancel()

	for {
		if ev, ok := queue.TryDequeue(); ok {
			s.Handle(ev)
			continue
		}

		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-queue.Wait():
		case <-sub.Done():
			for {
				ev, ok := queue.TryDequeue()
				if !ok {
					break
				}
				s.Handle(ev)
			}
			if err := sub.Err(); err != nil {
				return true, err
			}
			return true, errStreamEnded
		}
	}
}

var errStreamEnded = errors.New("change stream ended")

// Handle folds one event into the collection and raises its notification.
// It reports whether the collection changed.
//
// Run calls Handle for every delivered event. Callers that drive events
// themselves must call it from a single goroutine.
func (s *Synchronizer) Handle(ev record.ChangeEvent) bool {
	if ev.Table != s.schema.Name {
		s.logger.Debug("ignoring event for other table", "event_table", ev.Table)
		return false
	}
	if err := ev.Validate(); err != nil {
		s.logger.Warn("ignoring malformed event", "error", err)
		return false
	}
	if ev.Record != nil && s.filter != nil && !s.filter.Matches(*ev.Record) {
		if ev.Kind != record.Updated {
			return false
		}
		// Moved out of the filtered view.
		ev = record.DeletedEvent(ev.Table, ev.Record.ID)
	}

	gen := s.gen.current()
	prev := s.Snapshot()
	next, changed := Apply(prev, ev, s.schema, s.cmp)
	if !changed {
		s.logger.Debug("event left collection unchanged", "kind", ev.Kind, "id", ev.ID)
		return false
	}
	if !s.commit(gen, next) {
		return false
	}

	switch ev.Kind {
	case record.Inserted:
		s.notify(s.msgs.Inserted(s.schema.Title, s.schema.Label(*ev.Record)))
	case record.Updated:
		s.notify(s.msgs.Updated(s.schema.Title, s.schema.Label(*ev.Record)))
	case record.Deleted:
		old, _ := prev.Get(ev.ID)
		s.notify(s.msgs.Deleted(s.schema.Title, s.schema.Label(old)))
	}
	return true
}

// Close tears the synchronizer down. In-flight fetches are discarded and a
// running Run returns. Safe to call more than once.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.gen.advance()
	cancel := s.cancelRun
	s.cancelRun = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Synchronizer) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// commit publishes coll unless the generation moved on.
func (s *Synchronizer) commit(gen uint64, coll Collection) bool {
	s.mu.Lock()
	if !s.gen.valid(gen) {
		s.mu.Unlock()
		return false
	}
	s.coll = coll
	s.loading = false
	listeners := make([]func(Collection), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(coll)
	}
	return true
}

// notify delivers n. Sink failures are logged and never affect state.
func (s *Synchronizer) notify(n notify.Notification) {
	if err := s.sink.Notify(n); err != nil {
		s.logger.Warn("notification not delivered", "kind", n.Kind, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
