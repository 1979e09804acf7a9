// Package store provides the SQLite backend for synchronized tables.
//
// All registry tables share one physical table keyed by (tbl, id), with the
// fields of a record stored as a JSON object. Every committed mutation:
//   - appends a row to the changes log, whose seq becomes the event Seq
//   - writes an auditoria record describing the change
//   - is published to the configured Publisher after commit
//
// # Ordering
//
// Select orders rows by the schema's sort keys with the "locale" collation,
// registered on every connection through the driver's ConnectHook, then by
// id. This is the same order the in-memory record.Comparator produces, so a
// fetched collection is already sorted.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
