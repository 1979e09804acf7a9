package listsync

import (
	"context"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Source is the backend capability a Synchronizer consumes.
//
// Implemented by realtime.LocalSource (in-process store + hub) and
// realtime.Client (remote server over HTTP and WebSocket).
type Source interface {
	// Select returns the records of table matching filter in the given order.
	Select(ctx context.Context, table string, filter record.Filter, order []record.SortKey) ([]record.Record, error)

	// Subscribe opens a standing channel of changes to table restricted to mask.
	Subscribe(ctx context.Context, table string, mask record.EventMask) (Stream, error)
}

// Stream is an open change channel.
type Stream interface {
	// Events delivers changes in arrival order. It is closed when the stream
	// ends, either through Close or because the transport dropped.
	Events() <-chan record.ChangeEvent

	// Err reports why Events was closed. Nil after a local Close.
	Err() error

	// Close detaches the stream. It must not block on unread events and is
	// safe to call more than once.
	Close() error
}
