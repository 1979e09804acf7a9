package listsync

import (
	"slices"
	"sort"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Collection is an immutable ordered sequence of records, unique by ID.
// The zero value is an empty collection.
type Collection struct {
	items []record.Record
}

// NewCollection sorts records with cmp. When IDs repeat, the last one wins.
func NewCollection(cmp *record.Comparator, records []record.Record) Collection {
	byID := make(map[int64]int, len(records))
	items := make([]record.Record, 0, len(records))
	for _, r := range records {
		if i, ok := byID[r.ID]; ok {
			items[i] = r.Clone()
			continue
		}
		byID[r.ID] = len(items)
		items = append(items, r.Clone())
	}
	slices.SortFunc(items, cmp.Compare)
	return Collection{items: items}
}

// Len returns the number of records.
func (c Collection) Len() int {
	return len(c.items)
}

// At returns the record at position i.
func (c Collection) At(i int) record.Record {
	return c.items[i]
}

// Records returns a copy of the records in order.
func (c Collection) Records() []record.Record {
	return slices.Clone(c.items)
}

// IDs returns record IDs in order.
func (c Collection) IDs() []int64 {
	ids := make([]int64, len(c.items))
	for i, r := range c.items {
		ids[i] = r.ID
	}
	return ids
}

// IndexOf returns the position of id, or -1.
func (c Collection) IndexOf(id int64) int {
	for i, r := range c.items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the record with id.
func (c Collection) Get(id int64) (record.Record, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c.items[i], true
	}
	return record.Record{}, false
}

// IsSorted reports whether the collection is strictly ordered by cmp.
func (c Collection) IsSorted(cmp *record.Comparator) bool {
	for i := 1; i < len(c.items); i++ {
		if cmp.Compare(c.items[i-1], c.items[i]) >= 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both collections hold equal records in the same order.
func (c Collection) Equal(other Collection) bool {
	return slices.EqualFunc(c.items, other.items, record.Record.Equal)
}

func (c Collection) insertSorted(cmp *record.Comparator, r record.Record) Collection {
	pos := sort.Search(len(c.items), func(i int) bool {
		return cmp.Compare(c.items[i], r) > 0
	})
	items := make([]record.Record, 0, len(c.items)+1)
	items = append(items, c.items[:pos]...)
	items = append(items, r)
	items = append(items, c.items[pos:]...)
	return Collection{items: items}
}

func (c Collection) replaceAt(i int, r record.Record) Collection {
	items := slices.Clone(c.items)
	items[i] = r
	return Collection{items: items}
}

func (c Collection) removeAt(i int) Collection {
	items := make([]record.Record, 0, len(c.items)-1)
	items = append(items, c.items[:i]...)
	items = append(items, c.items[i+1:]...)
	return Collection{items: items}
}
