package realtime

import (
	"context"

	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Selector reads rows from a backend. Implemented by *store.Store.
type Selector interface {
	Select(ctx context.Context, table string, filter record.Filter, order []record.SortKey) ([]record.Record, error)
}

// LocalSource serves synchronizers from an in-process backend and hub.
type LocalSource struct {
	rows Selector
	hub  *Hub
}

// NewLocalSource pairs a backend with the hub its mutations publish to.
func NewLocalSource(rows Selector, hub *Hub) *LocalSource {
	return &LocalSource{rows: rows, hub: hub}
}

// Select implements listsync.Source.
func (s *LocalSource) Select(ctx context.Context, table string, filter record.Filter, order []record.SortKey) ([]record.Record, error) {
	return s.rows.Select(ctx, table, filter, order)
}

// Subscribe implements listsync.Source.
func (s *LocalSource) Subscribe(ctx context.Context, table string, mask record.EventMask) (listsync.Stream, error) {
	return s.hub.Subscribe(ctx, table, mask)
}
