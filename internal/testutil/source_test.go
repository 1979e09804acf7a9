package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

func TestMemorySource_SelectFiltersAndCopies(t *testing.T) {
	src := NewMemorySource()
	src.Seed("comisiones",
		record.MustNew(2, map[string]any{"tipo": "Senado"}),
		record.MustNew(1, map[string]any{"tipo": "Cámara"}),
	)

	all, err := src.Select(context.Background(), "comisiones", nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)

	all[0].Fields["tipo"] = "mutated"
	again, err := src.Select(context.Background(), "comisiones", record.Filter{"tipo": "Cámara"}, nil)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "Cámara", again[0].String("tipo"))
	assert.Equal(t, 2, src.Selects())
}

func TestMemorySource_EmitRespectsMaskAndTable(t *testing.T) {
	src := NewMemorySource()
	ctx := context.Background()

	deletes, err := src.Subscribe(ctx, "comisiones", record.MaskDelete)
	require.NoError(t, err)
	other, err := src.Subscribe(ctx, "expresiones", record.MaskAll)
	require.NoError(t, err)

	src.Emit(record.InsertedEvent("comisiones", record.MustNew(1, nil)))
	src.Emit(record.DeletedEvent("comisiones", 1))

	ev := <-deletes.Events()
	assert.Equal(t, record.Deleted, ev.Kind)
	assert.Equal(t, int64(2), ev.Seq)
	assert.Len(t, other.Events(), 0)
}

func TestMemorySource_DropEndsStreams(t *testing.T) {
	src := NewMemorySource()
	st, err := src.Subscribe(context.Background(), "comisiones", record.MaskAll)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Subscribers("comisiones"))

	src.Drop(nil)
	_, ok := <-st.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, st.Err(), ErrDropped)
	assert.Equal(t, 0, src.Subscribers("comisiones"))
	require.NoError(t, st.Close())
}

func TestMemorySource_Failures(t *testing.T) {
	src := NewMemorySource()
	boom := errors.New("boom")
	src.FailSelect(boom)
	src.FailSubscribe(boom)

	_, err := src.Select(context.Background(), "comisiones", nil, nil)
	assert.ErrorIs(t, err, boom)
	_, err = src.Subscribe(context.Background(), "comisiones", record.MaskAll)
	assert.ErrorIs(t, err, boom)
}

func TestMemorySource_HoldSelectHonorsContext(t *testing.T) {
	src := NewMemorySource()
	release := src.HoldSelect()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Select(ctx, "comisiones", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
