package listsync

import "github.com/jgarciait/osl-app-ct-sub002/internal/record"

// Apply folds ev into c and reports whether the collection changed.
//
// The input collection is never modified. Events for an absent ID that cannot
// be applied (Updated, Deleted) return c unchanged with changed == false.
// Updated re-sorts only when a sort-key field changed; otherwise the record is
// replaced in place.
func Apply(c Collection, ev record.ChangeEvent, schema record.Schema, cmp *record.Comparator) (next Collection, changed bool) {
	switch ev.Kind {
	case record.Inserted:
		if ev.Record == nil {
			return c, false
		}
		r := ev.Record.Clone()
		if i := c.IndexOf(r.ID); i >= 0 {
			return replace(c, i, r, schema, cmp)
		}
		return c.insertSorted(cmp, r), true

	case record.Updated:
		if ev.Record == nil {
			return c, false
		}
		r := ev.Record.Clone()
		i := c.IndexOf(r.ID)
		if i < 0 {
			return c, false
		}
		return replace(c, i, r, schema, cmp)

	case record.Deleted:
		i := c.IndexOf(ev.ID)
		if i < 0 {
			return c, false
		}
		return c.removeAt(i), true

	default:
		return c, false
	}
}

func replace(c Collection, i int, r record.Record, schema record.Schema, cmp *record.Comparator) (Collection, bool) {
	old := c.items[i]
	if old.Equal(r) {
		return c, false
	}
	if schema.SortKeysEqual(old, r) {
		return c.replaceAt(i, r), true
	}
	return c.removeAt(i).insertSorted(cmp, r), true
}
