package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

func TestInsert_AllocatesIDsPerTable(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	a, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"tipo": "Senado", "nombre": "Hacienda"})
	require.NoError(t, err)
	b, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"tipo": "Senado", "nombre": "Educación"})
	require.NoError(t, err)
	l, err := s.Insert(ctx, "ana", record.TableLegisladores, map[string]any{"apellido": "Ruiz"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.Equal(t, int64(1), l.ID)
}

func TestInsert_IDsNeverReused(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	a, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": "Hacienda"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "ana", record.TableComisiones, a.ID))

	b, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": "Salud"})
	require.NoError(t, err)
	assert.Equal(t, a.ID+1, b.ID)
}

func TestInsert_NormalizesFields(t *testing.T) {
	s := createTestStore(t)

	rec, err := s.Insert(t.Context(), "ana", record.TableExpresiones, map[string]any{
		"numero": 12,
		"titulo": "Educación",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), rec.Fields["numero"])
	assert.Equal(t, "Educación", rec.Fields["titulo"])

	got, err := s.Get(t.Context(), record.TableExpresiones, rec.ID)
	require.NoError(t, err)
	assert.True(t, rec.Equal(got))
}

func TestInsert_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"bogus": "x"})
	assert.ErrorIs(t, err, record.ErrUnknownColumn)

	_, err = s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": 1.5})
	assert.ErrorIs(t, err, ErrInvalidFields)

	_, err = s.Insert(ctx, "ana", record.TableAuditoria, map[string]any{"accion": "INSERT"})
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = s.Insert(ctx, "ana", "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestUpdate_MergesPatch(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	rec, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"tipo": "Senado", "nombre": "Hacienda", "presidente": "Ruiz"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "ana", record.TableComisiones, rec.ID, map[string]any{"nombre": "Hacienda y Finanzas", "presidente": nil})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"tipo": "Senado", "nombre": "Hacienda y Finanzas", "presidente": nil}, updated.Fields)
	got, err := s.Get(ctx, record.TableComisiones, rec.ID)
	require.NoError(t, err)
	assert.True(t, updated.Equal(got))
}

func TestUpdate_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Update(t.Context(), "ana", record.TableComisiones, 42, map[string]any{"nombre": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.Delete(t.Context(), "ana", record.TableComisiones, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutations_PublishAfterCommit(t *testing.T) {
	pub := &recordingPublisher{}
	s := createTestStore(t, WithPublisher(pub))
	ctx := t.Context()

	rec, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"tipo": "Senado", "nombre": "Hacienda"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "ana", record.TableComisiones, rec.ID, map[string]any{"nombre": "Salud"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "ana", record.TableComisiones, rec.ID))

	events := pub.Events()
	require.Len(t, events, 6)

	var kinds []record.EventKind
	var seqs []int64
	for _, ev := range events {
		if ev.Table != record.TableComisiones {
			continue
		}
		kinds = append(kinds, ev.Kind)
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []record.EventKind{record.Inserted, record.Updated, record.Deleted}, kinds)
	assert.Equal(t, []int64{1, 2, 3}, seqs)

	assert.Equal(t, record.TableAuditoria, events[1].Table)
	assert.Equal(t, events[0].Seq, events[1].ID)
}

func TestMutations_FailedWriteIsNotPublished(t *testing.T) {
	pub := &recordingPublisher{}
	s := createTestStore(t, WithPublisher(pub))

	err := s.Delete(t.Context(), "ana", record.TableComisiones, 5)
	require.Error(t, err)
	assert.Empty(t, pub.Events())
}

func TestMutations_WriteAuditRows(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	rec, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": "Hacienda"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "", record.TableComisiones, rec.ID))

	audit, err := s.Select(ctx, record.TableAuditoria, nil, nil)
	require.NoError(t, err)
	require.Len(t, audit, 2)

	// newest first
	assert.Equal(t, map[string]any{
		"fecha":       "2025-03-01T09:00:02.000Z",
		"tabla":       record.TableComisiones,
		"accion":      "DELETE",
		"registro_id": rec.ID,
		"actor":       SystemActor,
	}, audit[0].Fields)
	assert.Equal(t, "INSERT", audit[1].Fields["accion"])
	assert.Equal(t, "ana", audit[1].Fields["actor"])
}

func TestDeleteCascade_RemovesRelationsFirst(t *testing.T) {
	pub := &recordingPublisher{}
	s := createTestStore(t, WithPublisher(pub))
	ctx := t.Context()

	com, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": "Hacienda"})
	require.NoError(t, err)
	other, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": "Salud"})
	require.NoError(t, err)
	for _, exp := range []int64{10, 11} {
		_, err := s.Insert(ctx, "ana", record.TableExpresionComisiones, map[string]any{"expresion_id": exp, "comision_id": com.ID})
		require.NoError(t, err)
	}
	_, err = s.Insert(ctx, "ana", record.TableExpresionComisiones, map[string]any{"expresion_id": 10, "comision_id": other.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCascade(ctx, "ana", record.TableComisiones, com.ID))

	links, err := s.Select(ctx, record.TableExpresionComisiones, nil, nil)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, other.ID, links[0].Fields["comision_id"])

	_, err = s.Get(ctx, record.TableComisiones, com.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var deleted []string
	for _, ev := range pub.Events() {
		if ev.Kind == record.Deleted {
			deleted = append(deleted, ev.Table)
		}
	}
	assert.Equal(t, []string{record.TableExpresionComisiones, record.TableExpresionComisiones, record.TableComisiones}, deleted)
}

func TestDeleteCascade_FailedStepKeepsParent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	com, err := s.Insert(ctx, "ana", record.TableComisiones, map[string]any{"nombre": "Hacienda"})
	require.NoError(t, err)
	first, err := s.Insert(ctx, "ana", record.TableExpresionComisiones, map[string]any{"expresion_id": 10, "comision_id": com.ID})
	require.NoError(t, err)
	locked, err := s.Insert(ctx, "ana", record.TableExpresionComisiones, map[string]any{"expresion_id": 11, "comision_id": com.ID})
	require.NoError(t, err)

	_, err = s.db.Exec(fmt.Sprintf(`
		CREATE TRIGGER lock_row BEFORE DELETE ON records
		WHEN old.tbl = 'expresion_comisiones' AND old.id = %d
		BEGIN SELECT RAISE(ABORT, 'row is locked'); END
	`, locked.ID))
	require.NoError(t, err)

	err = s.DeleteCascade(ctx, "ana", record.TableComisiones, com.ID)
	require.Error(t, err)
	assert.True(t, IsMutationError(err))
	assert.ErrorIs(t, err, ErrSkipped)

	var me *MutationError
	require.True(t, errors.As(err, &me))
	require.Len(t, me.Steps, 2)
	assert.Equal(t, locked.ID, me.Steps[0].ID)
	assert.Equal(t, record.TableComisiones, me.Steps[1].Table)

	// The first relation row is gone; the parent and the locked row remain.
	_, err = s.Get(ctx, record.TableExpresionComisiones, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, record.TableExpresionComisiones, locked.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, record.TableComisiones, com.ID)
	assert.NoError(t, err)
}

func TestDeleteCascade_MissingParent(t *testing.T) {
	s := createTestStore(t)

	err := s.DeleteCascade(t.Context(), "ana", record.TableComisiones, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsMutationError(err))
}
