package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// timeLayout is fixed-width so audit timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Insert stores a new row in table and returns it with its allocated id.
// Identifiers are allocated per table and never reused.
func (s *Store) Insert(ctx context.Context, actor, table string, fields map[string]any) (record.Record, error) {
	sch, err := s.writable(table)
	if err != nil {
		return record.Record{}, fmt.Errorf("insert %s: %w", table, err)
	}
	norm, err := sch.CheckFields(fields)
	if err != nil {
		return record.Record{}, fmt.Errorf("insert %s: %w: %w", table, ErrInvalidFields, err)
	}
	data, err := marshalFields(norm)
	if err != nil {
		return record.Record{}, fmt.Errorf("insert %s: %w", table, err)
	}

	var rec record.Record
	events, err := s.inTx(ctx, func(tx *sql.Tx) ([]record.ChangeEvent, error) {
		var id int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO id_sequences (tbl, last_id) VALUES (?, 1)
			ON CONFLICT(tbl) DO UPDATE SET last_id = last_id + 1
			RETURNING last_id
		`, table).Scan(&id); err != nil {
			return nil, fmt.Errorf("allocate id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (tbl, id, fields) VALUES (?, ?, ?)`,
			table, id, data,
		); err != nil {
			return nil, fmt.Errorf("write record: %w", err)
		}
		rec = record.Record{ID: id, Fields: norm}
		return s.logChange(ctx, tx, actor, record.InsertedEvent(table, rec))
	})
	if err != nil {
		return record.Record{}, fmt.Errorf("insert %s: %w", table, err)
	}

	s.publish(events)
	return rec, nil
}

// Update merges patch into the row and returns the full replacement.
// A nil patch value sets the field to null.
func (s *Store) Update(ctx context.Context, actor, table string, id int64, patch map[string]any) (record.Record, error) {
	sch, err := s.writable(table)
	if err != nil {
		return record.Record{}, fmt.Errorf("update %s %d: %w", table, id, err)
	}
	norm, err := sch.CheckFields(patch)
	if err != nil {
		return record.Record{}, fmt.Errorf("update %s %d: %w: %w", table, id, ErrInvalidFields, err)
	}

	var rec record.Record
	events, err := s.inTx(ctx, func(tx *sql.Tx) ([]record.ChangeEvent, error) {
		current, err := getRecord(ctx, tx, table, id)
		if err != nil {
			return nil, err
		}
		rec = current.Merge(norm)
		data, err := marshalFields(rec.Fields)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET fields = ? WHERE tbl = ? AND id = ?`,
			data, table, id,
		); err != nil {
			return nil, fmt.Errorf("write record: %w", err)
		}
		return s.logChange(ctx, tx, actor, record.UpdatedEvent(table, rec))
	})
	if err != nil {
		return record.Record{}, fmt.Errorf("update %s %d: %w", table, id, err)
	}

	s.publish(events)
	return rec, nil
}

// Delete removes one row. Related rows are left untouched; see DeleteCascade.
func (s *Store) Delete(ctx context.Context, actor, table string, id int64) error {
	if _, err := s.writable(table); err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, err)
	}

	events, err := s.inTx(ctx, func(tx *sql.Tx) ([]record.ChangeEvent, error) {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE tbl = ? AND id = ?`, table, id)
		if err != nil {
			return nil, fmt.Errorf("delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("delete record: %w", err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return s.logChange(ctx, tx, actor, record.DeletedEvent(table, id))
	})
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, err)
	}

	s.publish(events)
	return nil
}

// DeleteCascade deletes the rows that reference the target through the
// schema's relations, then the target itself.
//
// Each step is its own transaction and applied steps are not rolled back.
// If any relation row cannot be deleted the target is kept, so a failure never
// leaves rows pointing at a missing parent. Failures are reported together in
// a *MutationError.
func (s *Store) DeleteCascade(ctx context.Context, actor, table string, id int64) error {
	sch, err := s.writable(table)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, err)
	}
	if _, err := s.Get(ctx, table, id); err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, err)
	}

	var steps []StepError
	for _, rel := range sch.Relations {
		children, err := s.Select(ctx, rel.Table, record.Filter{rel.Field: id}, nil)
		if err != nil {
			steps = append(steps, StepError{Table: rel.Table, Err: err})
			continue
		}
		for _, child := range children {
			err := s.Delete(ctx, actor, rel.Table, child.ID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				steps = append(steps, StepError{Table: rel.Table, ID: child.ID, Err: err})
			}
		}
	}

	if len(steps) > 0 {
		steps = append(steps, StepError{Table: table, ID: id, Err: ErrSkipped})
		s.logger.Warn("cascade delete incomplete",
			"table", table,
			"id", id,
			"failed_steps", len(steps)-1,
		)
		return &MutationError{Op: "delete", Table: table, ID: id, Steps: steps}
	}

	return s.Delete(ctx, actor, table, id)
}

func (s *Store) writable(table string) (record.Schema, error) {
	sch, err := s.schema(table)
	if err != nil {
		return record.Schema{}, err
	}
	if sch.ReadOnly {
		return record.Schema{}, ErrReadOnly
	}
	return sch, nil
}

// inTx runs fn in a transaction and returns the events to publish once the
// transaction has committed.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) ([]record.ChangeEvent, error)) ([]record.ChangeEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	events, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return events, nil
}

// logChange appends ev to the change log and writes its audit row. It
// returns ev and the audit insert, both stamped with the change seq.
func (s *Store) logChange(ctx context.Context, tx *sql.Tx, actor string, ev record.ChangeEvent) ([]record.ChangeEvent, error) {
	if actor == "" {
		actor = SystemActor
	}
	at := s.now().UTC().Format(timeLayout)

	var fields any
	if ev.Record != nil {
		data, err := marshalFields(ev.Record.Fields)
		if err != nil {
			return nil, err
		}
		fields = data
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (tbl, kind, record_id, fields, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.Table, ev.Kind.String(), ev.ID, fields, actor, at)
	if err != nil {
		return nil, fmt.Errorf("write change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("write change: %w", err)
	}
	ev.Seq = seq

	audit := record.Record{ID: seq, Fields: map[string]any{
		"fecha":       at,
		"tabla":       ev.Table,
		"accion":      ev.Kind.String(),
		"registro_id": ev.ID,
		"actor":       actor,
	}}
	data, err := marshalFields(audit.Fields)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (tbl, id, fields) VALUES (?, ?, ?)`,
		record.TableAuditoria, audit.ID, data,
	); err != nil {
		return nil, fmt.Errorf("write audit: %w", err)
	}
	auditEv := record.InsertedEvent(record.TableAuditoria, audit)
	auditEv.Seq = seq

	return []record.ChangeEvent{ev, auditEv}, nil
}

func (s *Store) publish(events []record.ChangeEvent) {
	for _, ev := range events {
		s.publisher.Publish(ev)
	}
}
