// Package listsync mirrors a backend table as an ordered in-memory Collection.
//
// A Synchronizer performs one bulk fetch, then folds every ChangeEvent from a
// standing subscription into its Collection without re-fetching. Each applied
// change raises a user notification.
//
// # Invariants
//
//   - A Collection is unique by record ID and always sorted by the schema's
//     sort keys (locale collation, ID as final tie-break).
//   - Apply is pure: it never mutates its input Collection.
//   - Inserted for a present ID replaces (duplicate delivery is idempotent).
//   - Updated and Deleted for an absent ID are no-ops.
//   - After Subscription.Cancel returns, no further event reaches the handler.
//   - A fetch that completes after teardown is discarded (epoch check).
//
// # Threading
//
// All writes to a Synchronizer's Collection happen on one goroutine at a time:
// the Run goroutine during (re)initialization, the subscription's dispatch
// goroutine between them. Readers receive immutable snapshots.
//
// # Reconnect
//
// When the subscription drops, Run notifies the user, waits with exponential
// backoff, re-runs Initialize and subscribes again. Events lost or duplicated
// while disconnected therefore cannot leave the Collection permanently stale.
package listsync
