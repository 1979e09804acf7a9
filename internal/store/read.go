package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Select returns the rows of table matching filter, ordered by order with
// ties broken by ascending id. A nil order uses the schema's sort keys.
//
// Returns an empty slice (not nil) if no rows match.
func (s *Store) Select(ctx context.Context, table string, filter record.Filter, order []record.SortKey) ([]record.Record, error) {
	sch, err := s.schema(table)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	filter, err = sch.CheckFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w: %w", table, ErrInvalidFields, err)
	}
	if order == nil {
		order = sch.SortKeys
	}

	query, args, err := buildSelect(sch, filter, order)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w: %w", table, ErrInvalidFields, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Get returns one row by id.
func (s *Store) Get(ctx context.Context, table string, id int64) (record.Record, error) {
	if _, err := s.schema(table); err != nil {
		return record.Record{}, fmt.Errorf("get %s %d: %w", table, id, err)
	}
	rec, err := getRecord(ctx, s.db, table, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("get %s %d: %w", table, id, err)
	}
	return rec, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getRecord(ctx context.Context, q queryer, table string, id int64) (record.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT id, fields FROM records WHERE tbl = ? AND id = ?`, table, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, ErrNotFound
	}
	return rec, err
}

// buildSelect renders the SELECT for a validated filter. Field names only
// reach the statement as bound json paths.
func buildSelect(sch record.Schema, filter record.Filter, order []record.SortKey) (string, []any, error) {
	var b strings.Builder
	args := []any{sch.Name}
	b.WriteString("SELECT id, fields FROM records WHERE tbl = ?")

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := filter[k]
		if v == nil {
			b.WriteString(" AND json_type(fields, ?) = 'null'")
			args = append(args, jsonPath(k))
			continue
		}
		b.WriteString(" AND json_extract(fields, ?) = ?")
		args = append(args, jsonPath(k), sqlValue(v))
	}

	b.WriteString(" ORDER BY ")
	for _, key := range order {
		if !sch.HasColumn(key.Field) {
			return "", nil, fmt.Errorf("order by %q: %w", key.Field, record.ErrUnknownColumn)
		}
		b.WriteString("json_extract(fields, ?) COLLATE " + CollationName)
		if key.Desc {
			b.WriteString(" DESC")
		}
		b.WriteString(", ")
		args = append(args, jsonPath(key.Field))
	}
	b.WriteString("id ASC")
	return b.String(), args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.Record, error) {
	var (
		id     int64
		fields string
	)
	if err := row.Scan(&id, &fields); err != nil {
		return record.Record{}, err
	}
	decoded, err := unmarshalFields(fields)
	if err != nil {
		return record.Record{}, fmt.Errorf("record %d: %w", id, err)
	}
	return record.Record{ID: id, Fields: decoded}, nil
}
