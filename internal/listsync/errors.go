package listsync

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when a Synchronizer was torn down while an operation
// was in flight. Results of such operations are discarded.
var ErrClosed = errors.New("synchronizer closed")

// FetchError reports that the initial bulk load failed.
//
// The Synchronizer presents an empty Collection and an error notification;
// the caller never crashes on it.
type FetchError struct {
	// Table is the table that failed to load.
	Table string

	// Err is the transport error.
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Table, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubscriptionError reports that the standing change channel could not open.
type SubscriptionError struct {
	Table string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.Table, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// IsFetchError returns true if err wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsSubscriptionError returns true if err wraps a SubscriptionError.
func IsSubscriptionError(err error) bool {
	var se *SubscriptionError
	return errors.As(err, &se)
}
