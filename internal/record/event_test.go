package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_TextRoundTrip(t *testing.T) {
	for _, k := range []EventKind{Inserted, Updated, Deleted} {
		b, err := k.MarshalText()
		require.NoError(t, err)

		var got EventKind
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, k, got)
	}

	_, err := EventKind(0).MarshalText()
	assert.Error(t, err)
}

func TestEventMask(t *testing.T) {
	m := MaskOf(Inserted, Deleted)

	assert.True(t, m.Has(Inserted))
	assert.False(t, m.Has(Updated))
	assert.True(t, m.Has(Deleted))
	assert.Equal(t, "INSERT,DELETE", m.String())

	parsed, err := ParseEventMask("insert, delete")
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	all, err := ParseEventMask("")
	require.NoError(t, err)
	assert.Equal(t, MaskAll, all)

	_, err = ParseEventMask("TRUNCATE")
	assert.Error(t, err)
}

func TestChangeEvent_JSONWireShape(t *testing.T) {
	ev := InsertedEvent(TableComisiones, MustNew(3, map[string]any{"nombre": "Agricultura"}))
	ev.Seq = 17

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"INSERT","table":"comisiones","seq":17,"id":3,"record":{"id":3,"fields":{"nombre":"Agricultura"}}}`,
		string(b))

	var decoded ChangeEvent
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, Inserted, decoded.Kind)
	require.NotNil(t, decoded.Record)
	assert.Equal(t, "Agricultura", decoded.Record.String("nombre"))
}

func TestChangeEvent_Validate(t *testing.T) {
	assert.NoError(t, DeletedEvent(TableComisiones, 2).Validate())
	assert.NoError(t, UpdatedEvent(TableComisiones, MustNew(2, nil)).Validate())

	assert.Error(t, ChangeEvent{Kind: Inserted, Table: TableComisiones, ID: 1}.Validate())
	assert.Error(t, ChangeEvent{Kind: Deleted, ID: 1}.Validate())

	bad := UpdatedEvent(TableComisiones, MustNew(2, nil))
	bad.ID = 3
	assert.Error(t, bad.Validate())
}
