// Package record provides the foundation types shared by the store, the
// realtime transport and the list synchronizer.
//
// This package imports nothing internal. Every other internal package may
// import record; record never imports them back.
//
// Key constraints:
//   - Field values are string, int64, bool or nil. Floats are rejected.
//   - Strings are NFC normalized when they enter a Record.
//   - Ordering is total: the schema sort keys under a locale collator, then ID.
//   - ChangeEvents carry no delivery guarantee beyond arrival order.
package record
