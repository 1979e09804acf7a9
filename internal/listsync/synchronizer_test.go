package listsync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/testutil"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func comisionesSchema(t *testing.T) record.Schema {
	t.Helper()
	schema, ok := record.DefaultRegistry().Lookup(record.TableComisiones)
	require.True(t, ok)
	return schema
}

func comision(id int64, tipo, nombre string) record.Record {
	return record.MustNew(id, map[string]any{"tipo": tipo, "nombre": nombre})
}

func nombres(c listsync.Collection) []string {
	out := make([]string, 0, c.Len())
	for _, r := range c.Records() {
		out = append(out, r.String("nombre"))
	}
	return out
}

func newTestSynchronizer(t *testing.T, src listsync.Source, opts ...listsync.Option) (*listsync.Synchronizer, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	base := []listsync.Option{
		listsync.WithNotifier(rec),
		listsync.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		listsync.WithReconnect(time.Millisecond, 5*time.Millisecond),
	}
	s := listsync.New(src, comisionesSchema(t), append(base, opts...)...)
	t.Cleanup(s.Close)
	return s, rec
}

func seeded() *testutil.MemorySource {
	src := testutil.NewMemorySource()
	src.Seed(record.TableComisiones,
		comision(1, "Senado", "Hacienda"),
		comision(2, "Senado", "Educación"),
	)
	return src
}

func startRun(t *testing.T, s *listsync.Synchronizer) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(waitFor):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestInitialize_SortsFetchedRecords(t *testing.T) {
	s, rec := newTestSynchronizer(t, seeded())
	assert.True(t, s.Loading())

	coll, err := s.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Educación", "Hacienda"}, nombres(coll))
	assert.False(t, s.Loading())
	assert.True(t, s.Snapshot().Equal(coll))
	assert.Empty(t, rec.Notifications())
}

func TestInitialize_FetchFailureYieldsEmptyAndNotifies(t *testing.T) {
	src := seeded()
	src.FailSelect(errors.New("network unreachable"))
	s, rec := newTestSynchronizer(t, src)

	coll, err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, listsync.IsFetchError(err))
	assert.Equal(t, 0, coll.Len())
	assert.False(t, s.Loading())

	got := rec.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, notify.KindError, got[0].Kind)
	assert.Contains(t, got[0].Message, "Comisiones")
}

func TestInitialize_LateFetchAfterCloseIsDiscarded(t *testing.T) {
	src := seeded()
	release := src.HoldSelect()
	s, _ := newTestSynchronizer(t, src)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Initialize(context.Background())
		errCh <- err
	}()

	require.Eventually(t, func() bool { return src.Selects() == 1 }, waitFor, tick)
	s.Close()
	release()

	err := <-errCh
	assert.ErrorIs(t, err, listsync.ErrClosed)
	assert.Equal(t, 0, s.Snapshot().Len())
	assert.True(t, s.Loading(), "discarded fetch must not commit")
}

func TestSubscribe_FailureNotifies(t *testing.T) {
	src := seeded()
	src.FailSubscribe(errors.New("refused"))
	s, rec := newTestSynchronizer(t, src)

	sub, err := s.Subscribe(context.Background(), func(record.ChangeEvent) {})
	require.Error(t, err)
	assert.Nil(t, sub)
	assert.True(t, listsync.IsSubscriptionError(err))
	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, notify.KindError, rec.Notifications()[0].Kind)
}

func TestSubscription_CancelIsSynchronous(t *testing.T) {
	src := seeded()
	s, _ := newTestSynchronizer(t, src)

	var mu sync.Mutex
	var seen []int64
	sub, err := s.Subscribe(context.Background(), func(ev record.ChangeEvent) {
		mu.Lock()
		seen = append(seen, ev.ID)
		mu.Unlock()
	})
	require.NoError(t, err)

	src.Emit(record.InsertedEvent(record.TableComisiones, comision(3, "Cámara", "Agricultura")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, waitFor, tick)

	sub.Cancel()
	sub.Cancel()
	src.Emit(record.DeletedEvent(record.TableComisiones, 3))

	<-sub.Done()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{3}, seen)
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, src.Subscribers(record.TableComisiones))
}

func TestRun_FoldsEventsAndNotifies(t *testing.T) {
	src := seeded()
	s, rec := newTestSynchronizer(t, src)
	stop := startRun(t, s)

	require.Eventually(t, func() bool { return src.Subscribers(record.TableComisiones) == 1 }, waitFor, tick)

	src.Emit(record.InsertedEvent(record.TableComisiones, comision(3, "Cámara", "Agricultura")))
	src.Emit(record.DeletedEvent(record.TableComisiones, 2))
	src.Emit(record.UpdatedEvent(record.TableComisiones, comision(1, "Senado", "Hacienda y Presupuesto")))
	src.Emit(record.InsertedEvent(record.TableExpresiones, record.MustNew(9, map[string]any{"numero": int64(1), "titulo": "Otra tabla"})))

	require.Eventually(t, func() bool { return len(rec.Notifications()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"Agricultura", "Hacienda y Presupuesto"}, nombres(s.Snapshot()))

	got := rec.Notifications()
	assert.Equal(t, notify.KindSuccess, got[0].Kind)
	assert.Contains(t, got[0].Message, "Agricultura")
	assert.Equal(t, notify.KindDefault, got[1].Kind)
	assert.Contains(t, got[1].Message, "Educación", "delete label comes from the removed record")
	assert.Equal(t, notify.KindInfo, got[2].Kind)

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Equal(t, 0, src.Subscribers(record.TableComisiones), "subscription released on exit")
}

func TestRun_DuplicateDeliveryNotifiesOnce(t *testing.T) {
	src := seeded()
	s, rec := newTestSynchronizer(t, src)
	stop := startRun(t, s)
	defer stop()

	require.Eventually(t, func() bool { return src.Subscribers(record.TableComisiones) == 1 }, waitFor, tick)

	ev := record.InsertedEvent(record.TableComisiones, comision(3, "Cámara", "Agricultura"))
	src.Emit(ev)
	src.Deliver(ev)
	src.Deliver(record.DeletedEvent(record.TableComisiones, 42))
	src.Emit(record.DeletedEvent(record.TableComisiones, 1))

	require.Eventually(t, func() bool { return slices.Equal(s.Snapshot().IDs(), []int64{3, 2}) }, waitFor, tick)
	assert.Len(t, rec.Notifications(), 2)
}

func TestRun_ResyncsAfterStreamDrops(t *testing.T) {
	src := seeded()
	s, rec := newTestSynchronizer(t, src)
	stop := startRun(t, s)
	defer stop()

	require.Eventually(t, func() bool { return src.Subscribers(record.TableComisiones) == 1 }, waitFor, tick)
	assert.Equal(t, 1, src.Selects())

	// A change whose event never arrives: only a fresh fetch can see it.
	src.Seed(record.TableComisiones, comision(4, "Cámara", "Turismo"))
	src.Drop(nil)

	require.Eventually(t, func() bool { return src.Subscribers(record.TableComisiones) == 1 && src.Selects() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return s.Snapshot().Len() == 3 }, waitFor, tick)
	assert.Equal(t, []string{"Turismo", "Educación", "Hacienda"}, nombres(s.Snapshot()))

	kinds := make([]notify.Kind, 0)
	for _, n := range rec.Notifications() {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, notify.KindWarning)
}

func TestRun_RetriesFailedFetch(t *testing.T) {
	src := seeded()
	src.FailSelect(errors.New("timeout"))
	s, _ := newTestSynchronizer(t, src)
	stop := startRun(t, s)
	defer stop()

	require.Eventually(t, func() bool { return src.Selects() >= 2 }, waitFor, tick)
	src.FailSelect(nil)

	require.Eventually(t, func() bool { return s.Snapshot().Len() == 2 }, waitFor, tick)
}

func TestRun_NotifiesOnlyFirstFailureOfRetryStreak(t *testing.T) {
	src := seeded()
	src.FailSelect(errors.New("backend down"))
	s, rec := newTestSynchronizer(t, src)
	stop := startRun(t, s)
	defer stop()

	require.Eventually(t, func() bool { return src.Selects() >= 4 }, waitFor, tick)
	src.FailSelect(nil)
	require.Eventually(t, func() bool { return s.Snapshot().Len() == 2 }, waitFor, tick)

	errorsRaised := 0
	for _, n := range rec.Notifications() {
		if n.Kind == notify.KindError {
			errorsRaised++
		}
	}
	assert.Equal(t, 1, errorsRaised)
}

func TestWithFilter_NormalizesValues(t *testing.T) {
	src := testutil.NewMemorySource()
	s, _ := newTestSynchronizer(t, src, listsync.WithFilter(record.Filter{"nombre": "Educacio\u0301n"}))

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	// Events carry NFC text.
	assert.True(t, s.Handle(record.InsertedEvent(record.TableComisiones, comision(2, "Senado", "Educación"))))
	assert.Equal(t, []int64{2}, s.Snapshot().IDs())
}

func TestRun_CloseStopsRun(t *testing.T) {
	src := seeded()
	s, _ := newTestSynchronizer(t, src)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	require.Eventually(t, func() bool { return src.Subscribers(record.TableComisiones) == 1 }, waitFor, tick)

	s.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after Close")
	}
	assert.ErrorIs(t, s.Run(context.Background()), listsync.ErrClosed)
}

func TestWithFilter_UpdateOutOfViewRemoves(t *testing.T) {
	src := seeded()
	src.Seed(record.TableComisiones, comision(3, "Cámara", "Agricultura"))
	s, _ := newTestSynchronizer(t, src, listsync.WithFilter(record.Filter{"tipo": "Senado"}))

	coll, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, coll.IDs())

	assert.False(t, s.Handle(record.InsertedEvent(record.TableComisiones, comision(5, "Cámara", "Ética"))))
	assert.True(t, s.Handle(record.UpdatedEvent(record.TableComisiones, comision(1, "Cámara", "Hacienda"))))
	assert.Equal(t, []int64{2}, s.Snapshot().IDs())
}

func TestOnChange_ReceivesCommits(t *testing.T) {
	s, _ := newTestSynchronizer(t, seeded())

	var got []int
	remove := s.OnChange(func(c listsync.Collection) { got = append(got, c.Len()) })

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	s.Handle(record.DeletedEvent(record.TableComisiones, 1))
	remove()
	s.Handle(record.DeletedEvent(record.TableComisiones, 2))

	assert.Equal(t, []int{2, 1}, got)
}

func TestNotificationFailureDoesNotBlockState(t *testing.T) {
	failing := notify.SinkFunc(func(notify.Notification) error { return notify.ErrDropped })
	s, _ := newTestSynchronizer(t, seeded(), listsync.WithNotifier(failing))

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Handle(record.InsertedEvent(record.TableComisiones, comision(3, "Cámara", "Agricultura"))))
	assert.Equal(t, 3, s.Snapshot().Len())
}
