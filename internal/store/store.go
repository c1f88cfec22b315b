// Package store is the canonical persistence layer: an embedded DuckDB
// database holding the provider-superset tables, the compiled read views,
// and the read-only query boundary.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned by account lookups with no match.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransactionNotFound is returned by transaction lookups with no match.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Store wraps the embedded database. One Store per data directory; all
// engines (migration, reconciliation, plugins) share its *sql.DB.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path. An empty path opens
// an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("Open: creating connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// FromDB wraps an already opened handle. Used when another component owns
// the connection lifecycle.
func FromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for the migration engine and plugins.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compact forces a checkpoint, flushing the WAL into the main file.
func (s *Store) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CHECKPOINT`); err != nil {
		return fmt.Errorf("Compact: %w", err)
	}
	return nil
}

// Conversion helpers. Values cross the driver boundary as VARCHAR: decimals,
// dates, timestamps, uuids and arrays are cast in the SELECT and parsed here,
// which keeps scanning independent of driver-native types.

const (
	dateLayout = "2006-01-02"
	// tagSeparator joins tag arrays in SELECTs. Unit separator, cannot
	// appear in user tags.
	tagSeparator = "\x1f"
)

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05.999999999-07",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parseTimestamp: unrecognized format %q", s)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parseDate: %w", err)
	}
	return t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parseDecimal: %w", err)
	}
	return d, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parseUUID: %w", err)
	}
	return id, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}

// tagsLiteral renders a tag slice as a DuckDB list literal. Tags go through
// literal SQL because the driver does not bind slice parameters.
func tagsLiteral(tags []string) string {
	if len(tags) == 0 {
		return "[]::VARCHAR[]"
	}
	parts := make([]string, len(tags))
	for i, tag := range tags {
		parts[i] = "'" + strings.ReplaceAll(tag, "'", "''") + "'"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.999999")
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// nullable maps empty strings to NULL on the way in, so absent provider
// fields stay NULL rather than ''.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
