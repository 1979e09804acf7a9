package listsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for id := int64(1); id <= 3; id++ {
		require.True(t, q.Enqueue(record.DeletedEvent(record.TableComisiones, id)))
	}
	assert.Equal(t, 3, q.Len())

	for want := int64(1); want <= 3; want++ {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.ID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_SignalsAndCloses(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(record.DeletedEvent(record.TableComisiones, 1))
	q.Enqueue(record.DeletedEvent(record.TableComisiones, 2))

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected signal after enqueue")
	}

	q.Close()
	q.Close()
	assert.False(t, q.Enqueue(record.DeletedEvent(record.TableComisiones, 3)))

	_, ok := <-q.Wait()
	assert.False(t, ok, "signal channel closed")
	assert.Equal(t, 2, q.Len(), "queued events survive Close")
}

func TestEpoch_AdvanceInvalidatesEarlierGenerations(t *testing.T) {
	var e epoch
	gen := e.current()
	assert.True(t, e.valid(gen))
	e.advance()
	assert.False(t, e.valid(gen))
	assert.True(t, e.valid(e.current()))
}
