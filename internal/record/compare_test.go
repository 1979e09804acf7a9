package record

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func comisionesComparator() *Comparator {
	s, _ := DefaultRegistry().Lookup(TableComisiones)
	return ComparatorFor(NewCollator(language.Spanish), s)
}

func TestComparator_TipoThenNombre(t *testing.T) {
	cmp := comisionesComparator()

	hacienda := MustNew(1, map[string]any{"tipo": "Senado", "nombre": "Hacienda"})
	educacion := MustNew(2, map[string]any{"tipo": "Senado", "nombre": "Educación"})
	agricultura := MustNew(3, map[string]any{"tipo": "Cámara", "nombre": "Agricultura"})

	recs := []Record{hacienda, educacion, agricultura}
	slices.SortFunc(recs, cmp.Compare)

	var names []string
	for _, r := range recs {
		names = append(names, r.String("nombre"))
	}
	assert.Equal(t, []string{"Agricultura", "Educación", "Hacienda"}, names)
}

func TestComparator_LocaleDiffersFromBinary(t *testing.T) {
	col := NewCollator(language.Spanish)

	// Binary order puts "á" (U+00E1) after every ASCII letter.
	assert.Positive(t, strings.Compare("árbol", "banco"))
	assert.Negative(t, col.CompareStrings("árbol", "banco"))
}

func TestComparator_IDBreaksTies(t *testing.T) {
	cmp := comisionesComparator()

	a := MustNew(1, map[string]any{"tipo": "Senado", "nombre": "Hacienda"})
	b := MustNew(2, map[string]any{"tipo": "Senado", "nombre": "Hacienda"})

	assert.Negative(t, cmp.Compare(a, b))
	assert.Positive(t, cmp.Compare(b, a))
	assert.Zero(t, cmp.Compare(a, a))
}

func TestComparator_Descending(t *testing.T) {
	cmp := NewComparator(NewCollator(language.Spanish), []SortKey{{Field: "fecha", Desc: true}})

	older := MustNew(1, map[string]any{"fecha": "2026-01-01T00:00:00Z"})
	newer := MustNew(2, map[string]any{"fecha": "2026-02-01T00:00:00Z"})

	assert.True(t, cmp.Less(newer, older))
}

func TestComparator_MixedTypes(t *testing.T) {
	cmp := NewComparator(NewCollator(language.Spanish), []SortKey{{Field: "v"}})

	null := MustNew(1, map[string]any{"v": nil})
	num := MustNew(2, map[string]any{"v": 5})
	str := MustNew(3, map[string]any{"v": "cinco"})
	missing := MustNew(4, nil)

	assert.True(t, cmp.Less(null, num))
	assert.True(t, cmp.Less(num, str))
	assert.True(t, cmp.Less(null, missing), "missing compares as null, ID breaks the tie")
}

func TestComparator_Integers(t *testing.T) {
	cmp := NewComparator(NewCollator(language.Spanish), []SortKey{{Field: "numero"}})

	two := MustNew(1, map[string]any{"numero": 2})
	ten := MustNew(2, map[string]any{"numero": 10})

	assert.True(t, cmp.Less(two, ten))
}
