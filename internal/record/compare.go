package record

import (
	"cmp"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultLocale is the collation locale used when none is configured.
var DefaultLocale = language.Spanish

// Collator compares strings under a locale's collation rules.
//
// Thread-safety: collate.Collator keeps internal buffers, so every comparison
// is serialized behind a mutex. A Collator is safe for concurrent use.
type Collator struct {
	mu  sync.Mutex
	tag language.Tag
	col *collate.Collator
}

// NewCollator creates a collator for tag.
func NewCollator(tag language.Tag) *Collator {
	return &Collator{tag: tag, col: collate.New(tag)}
}

// Tag returns the collation locale.
func (c *Collator) Tag() language.Tag {
	return c.tag
}

// CompareStrings returns -1, 0 or +1.
func (c *Collator) CompareStrings(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.CompareString(a, b)
}

// Comparator orders records by a list of sort keys, then by ID.
// The trailing ID comparison makes the order total, so two distinct records
// never compare equal.
type Comparator struct {
	col  *Collator
	keys []SortKey
}

// NewComparator creates a comparator for keys using collator col.
func NewComparator(col *Collator, keys []SortKey) *Comparator {
	return &Comparator{col: col, keys: append([]SortKey(nil), keys...)}
}

// ComparatorFor builds a comparator for a schema's sort keys.
func ComparatorFor(col *Collator, s Schema) *Comparator {
	return NewComparator(col, s.SortKeys)
}

// Compare returns -1 if a sorts before b, +1 if after, 0 only when IDs match
// and every key is equal.
func (c *Comparator) Compare(a, b Record) int {
	for _, k := range c.keys {
		r := c.compareValues(a.Fields[k.Field], b.Fields[k.Field])
		if k.Desc {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Less reports whether a sorts strictly before b.
func (c *Comparator) Less(a, b Record) bool {
	return c.Compare(a, b) < 0
}

// typeRank orders values of different types: null, bool, int, string.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func (c *Comparator) compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch va := a.(type) {
	case string:
		return c.col.CompareStrings(va, b.(string))
	case int64:
		return cmp.Compare(va, b.(int64))
	case bool:
		vb := b.(bool)
		switch {
		case va == vb:
			return 0
		case !va:
			return -1
		default:
			return 1
		}
	default:
		return 0
	}
}
