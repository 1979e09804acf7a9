package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on changes(tbl, seq)
const currentSchemaVersion = 1

// SystemActor is recorded on mutations that carry no user.
const SystemActor = "system"

// Publisher receives change events after their transaction commits.
type Publisher interface {
	Publish(ev record.ChangeEvent)
}

type discardPublisher struct{}

func (discardPublisher) Publish(record.ChangeEvent) {}

// Store is the durable backend for every table in a registry.
type Store struct {
	db        *sql.DB
	registry  *record.Registry
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	locale    language.Tag
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the table schemas. Defaults to record.DefaultRegistry().
func WithRegistry(r *record.Registry) Option {
	return func(s *Store) { s.registry = r }
}

// WithPublisher sets the receiver of committed change events.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source for change log and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocale sets the collation locale used for ordering text columns.
func WithLocale(tag language.Tag) Option {
	return func(s *Store) { s.locale = tag }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		registry:  record.DefaultRegistry(),
		publisher: discardPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
		locale:    record.DefaultLocale,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open(driverFor(s.locale), path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	s.logger.Debug("store opened", "path", path, "locale", s.locale.String())
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Registry returns the table schemas served by the store.
func (s *Store) Registry() *record.Registry {
	return s.registry
}

// SetPublisher replaces the event receiver. It must be called before the
// store is shared between goroutines.
func (s *Store) SetPublisher(p Publisher) {
	if p == nil {
		p = discardPublisher{}
	}
	s.publisher = p
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) schema(table string) (record.Schema, error) {
	sch, ok := s.registry.Lookup(table)
	if !ok {
		return record.Schema{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return sch, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the change log for per-table reads.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_changes_tbl_seq
		ON changes(tbl, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
