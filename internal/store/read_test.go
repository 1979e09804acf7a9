package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

func seedLegisladores(t *testing.T, s *Store) {
	t.Helper()
	rows := []map[string]any{
		{"apellido": "Zapata", "nombre": "Luis", "partido": "PNP", "camara": "senado"},
		{"apellido": "Álvarez", "nombre": "Marta", "partido": "PPD", "camara": "camara"},
		{"apellido": "Ñúñez", "nombre": "Rosa", "partido": "PNP", "camara": "senado"},
		{"apellido": "Navarro", "nombre": "Iván", "partido": nil, "camara": "camara"},
		{"apellido": "Ortiz", "nombre": "Juan", "partido": "PPD", "camara": "senado"},
	}
	for _, r := range rows {
		_, err := s.Insert(t.Context(), "ana", record.TableLegisladores, r)
		require.NoError(t, err)
	}
}

func TestSelect_OrdersBySchemaKeysWithCollation(t *testing.T) {
	s := createTestStore(t)
	seedLegisladores(t, s)

	got, err := s.Select(t.Context(), record.TableLegisladores, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Álvarez", "Navarro", "Ñúñez", "Ortiz", "Zapata"}, labels(got, "apellido"))
}

func TestSelect_MatchesInMemoryComparator(t *testing.T) {
	s := createTestStore(t)
	seedLegisladores(t, s)
	sch, _ := s.Registry().Lookup(record.TableLegisladores)

	got, err := s.Select(t.Context(), record.TableLegisladores, nil, nil)
	require.NoError(t, err)

	cmp := record.ComparatorFor(record.NewCollator(record.DefaultLocale), sch)
	for i := 1; i < len(got); i++ {
		assert.True(t, cmp.Less(got[i-1], got[i]), "%s before %s", got[i-1].String("apellido"), got[i].String("apellido"))
	}
}

func TestSelect_ExplicitOrder(t *testing.T) {
	s := createTestStore(t)
	seedLegisladores(t, s)

	got, err := s.Select(t.Context(), record.TableLegisladores, nil, []record.SortKey{{Field: "apellido", Desc: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{"Zapata", "Ortiz", "Ñúñez", "Navarro", "Álvarez"}, labels(got, "apellido"))
}

func TestSelect_Filter(t *testing.T) {
	s := createTestStore(t)
	seedLegisladores(t, s)

	got, err := s.Select(t.Context(), record.TableLegisladores, record.Filter{"camara": "senado", "partido": "PNP"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ñúñez", "Zapata"}, labels(got, "apellido"))

	got, err = s.Select(t.Context(), record.TableLegisladores, record.Filter{"partido": nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Navarro"}, labels(got, "apellido"))
}

func TestSelect_FilterBoolAndInt(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	_, err := s.Insert(ctx, "", record.TableComisiones, map[string]any{"tipo": "Senado", "nombre": "Hacienda", "activa": true})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "", record.TableComisiones, map[string]any{"tipo": "Senado", "nombre": "Salud", "activa": false})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "", record.TableExpresionComisiones, map[string]any{"expresion_id": 7, "comision_id": 1})
	require.NoError(t, err)

	active, err := s.Select(ctx, record.TableComisiones, record.Filter{"activa": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hacienda"}, labels(active, "nombre"))
	assert.Equal(t, true, active[0].Fields["activa"])

	links, err := s.Select(ctx, record.TableExpresionComisiones, record.Filter{"comision_id": 1}, nil)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(7), links[0].Fields["expresion_id"])
}

func TestSelect_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.Select(t.Context(), record.TableComisiones, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelect_Errors(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Select(t.Context(), "nope", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, err = s.Select(t.Context(), record.TableComisiones, record.Filter{"bogus": 1}, nil)
	assert.ErrorIs(t, err, record.ErrUnknownColumn)

	_, err = s.Select(t.Context(), record.TableComisiones, nil, []record.SortKey{{Field: "bogus"}})
	assert.ErrorIs(t, err, record.ErrUnknownColumn)
}

func TestGet(t *testing.T) {
	s := createTestStore(t)
	rec, err := s.Insert(t.Context(), "ana", record.TableComisiones, map[string]any{"tipo": "Cámara", "nombre": "Agricultura"})
	require.NoError(t, err)

	got, err := s.Get(t.Context(), record.TableComisiones, rec.ID)
	require.NoError(t, err)
	assert.True(t, rec.Equal(got))

	_, err = s.Get(t.Context(), record.TableComisiones, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
