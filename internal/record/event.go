package record

import (
	"fmt"
	"strings"
)

// EventKind tags a ChangeEvent.
type EventKind int

const (
	// Inserted carries a new record.
	Inserted EventKind = iota + 1
	// Updated carries the full replacement record.
	Updated
	// Deleted carries only the record ID.
	Deleted
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "INSERT"
	case Updated:
		return "UPDATE"
	case Deleted:
		return "DELETE"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ParseEventKind parses a wire name, case-insensitively.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSERT":
		return Inserted, nil
	case "UPDATE":
		return Updated, nil
	case "DELETE":
		return Deleted, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	switch k {
	case Inserted, Updated, Deleted:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EventMask selects which kinds a subscription receives.
type EventMask uint8

const (
	MaskInsert EventMask = 1 << iota
	MaskUpdate
	MaskDelete

	MaskAll = MaskInsert | MaskUpdate | MaskDelete
)

// MaskOf builds a mask from kinds.
func MaskOf(kinds ...EventKind) EventMask {
	var m EventMask
	for _, k := range kinds {
		switch k {
		case Inserted:
			m |= MaskInsert
		case Updated:
			m |= MaskUpdate
		case Deleted:
			m |= MaskDelete
		}
	}
	return m
}

// Has reports whether the mask admits kind k.
func (m EventMask) Has(k EventKind) bool {
	return m&MaskOf(k) != 0
}

// String renders the mask as a comma-separated list of kinds.
func (m EventMask) String() string {
	var parts []string
	for _, k := range []EventKind{Inserted, Updated, Deleted} {
		if m.Has(k) {
			parts = append(parts, k.String())
		}
	}
	return strings.Join(parts, ",")
}

// ParseEventMask parses a comma-separated list of kinds. Empty means MaskAll.
func ParseEventMask(s string) (EventMask, error) {
	if strings.TrimSpace(s) == "" {
		return MaskAll, nil
	}
	var m EventMask
	for _, part := range strings.Split(s, ",") {
		k, err := ParseEventKind(part)
		if err != nil {
			return 0, err
		}
		m |= MaskOf(k)
	}
	return m, nil
}

// ChangeEvent is one insert, update or delete notification for a table.
//
// Seq is the backend's commit sequence when known. Events arrive in delivery
// order only and may be delayed, duplicated or dropped by the transport.
type ChangeEvent struct {
	Kind   EventKind `json:"type"`
	Table  string    `json:"table"`
	Seq    int64     `json:"seq,omitempty"`
	ID     int64     `json:"id"`
	Record *Record   `json:"record,omitempty"`
}

// InsertedEvent builds an Inserted event for r.
func InsertedEvent(table string, r Record) ChangeEvent {
	rc := r.Clone()
	return ChangeEvent{Kind: Inserted, Table: table, ID: r.ID, Record: &rc}
}

// UpdatedEvent builds an Updated event for r.
func UpdatedEvent(table string, r Record) ChangeEvent {
	rc := r.Clone()
	return ChangeEvent{Kind: Updated, Table: table, ID: r.ID, Record: &rc}
}

// DeletedEvent builds a Deleted event for id.
func DeletedEvent(table string, id int64) ChangeEvent {
	return ChangeEvent{Kind: Deleted, Table: table, ID: id}
}

// Validate checks that the event carries what its kind requires.
func (e ChangeEvent) Validate() error {
	switch e.Kind {
	case Inserted, Updated:
		if e.Record == nil {
			return fmt.Errorf("%s event for %s without record", e.Kind, e.Table)
		}
		if e.Record.ID != e.ID {
			return fmt.Errorf("%s event id %d does not match record id %d", e.Kind, e.ID, e.Record.ID)
		}
	case Deleted:
	default:
		return fmt.Errorf("invalid event kind %d", int(e.Kind))
	}
	if e.Table == "" {
		return fmt.Errorf("%s event without table", e.Kind)
	}
	return nil
}
