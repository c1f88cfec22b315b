package plugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgerstore/internal/migrate"
	"github.com/dvloznov/ledgerstore/internal/store"
)

// ErrPermissionDenied is returned for any statement reaching outside the
// plugin's grants. The statement is rejected before execution; nothing
// partial ever runs.
var ErrPermissionDenied = errors.New("plugin permission denied")

// Session is a plugin's only path to the database. Every statement is
// checked against the manifest before it runs.
type Session struct {
	db         *sql.DB
	manifest   *Manifest
	schema     string
	readTables map[string]bool
}

// Activate provisions the plugin's schema, runs its migration steps in the
// plugin's own version space, and returns a checked session. A migration
// failure disables this plugin only; the core and other plugins are
// untouched.
func Activate(ctx context.Context, db *sql.DB, m *Manifest, steps []migrate.Step) (*Session, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("Activate: plugin %s: %w", m.ID, err)
	}

	engine := migrate.NewEngine(db, m.Schema(), steps)
	if _, err := engine.Run(ctx); err != nil {
		return nil, fmt.Errorf("Activate: plugin %s migrations: %w", m.ID, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("plugin", m.ID).
		Str("schema", m.Schema()).
		Msg("plugin activated")

	reads := make(map[string]bool, len(m.Permissions.Read))
	for _, table := range m.Permissions.Read {
		reads[strings.ToLower(table)] = true
	}
	return &Session{db: db, manifest: m, schema: m.Schema(), readTables: reads}, nil
}

// Manifest returns the activating manifest.
func (s *Session) Manifest() *Manifest {
	return s.manifest
}

var (
	sessionLiteralRe = regexp.MustCompile(`'(?:[^']|'')*'`)
	tableRefRe       = regexp.MustCompile(`(?i)\b(from|join|into|update|table)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	sessionWordRe    = regexp.MustCompile(`[a-zA-Z_]+`)
)

// Statement kinds a session may never run, read or write. A bare SET
// statement is already excluded by the first-keyword check; the word itself
// stays legal so UPDATE ... SET can run.
var sessionForbidden = map[string]bool{
	"attach": true, "detach": true, "copy": true, "export": true,
	"import": true, "install": true, "load": true, "call": true,
	"pragma": true, "reset": true, "use": true,
	"checkpoint": true, "vacuum": true, "grant": true, "revoke": true,
}

// Query runs a read-only statement. Referenced tables must be either
// qualified with the plugin's own schema or declared in the manifest's read
// list.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*store.QueryResult, error) {
	if err := store.ValidateReadOnly(query); err != nil {
		return nil, fmt.Errorf("Query: plugin %s: %w: %w", s.manifest.ID, ErrPermissionDenied, err)
	}
	if err := s.checkReadRefs(query); err != nil {
		return nil, fmt.Errorf("Query: plugin %s: %w", s.manifest.ID, err)
	}
	res, err := store.Collect(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: plugin %s: %w", s.manifest.ID, err)
	}
	return res, nil
}

// Exec runs a write statement. The mutation target must be qualified with
// the plugin's own schema; reads folded into the write (subselects, joins)
// may additionally touch declared read views.
func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	cleaned := sessionLiteralRe.ReplaceAllString(query, "''")
	if strings.Contains(strings.TrimRight(strings.TrimSpace(cleaned), ";"), ";") {
		return fmt.Errorf("Exec: plugin %s: multiple statements: %w", s.manifest.ID, ErrPermissionDenied)
	}

	lower := strings.ToLower(cleaned)
	first := sessionWordRe.FindString(lower)
	switch first {
	case "insert", "update", "delete", "merge", "create", "drop", "alter", "truncate":
	default:
		return fmt.Errorf("Exec: plugin %s: statement kind %q: %w", s.manifest.ID, first, ErrPermissionDenied)
	}
	for _, word := range sessionWordRe.FindAllString(lower, -1) {
		if sessionForbidden[word] {
			return fmt.Errorf("Exec: plugin %s: forbidden keyword %q: %w", s.manifest.ID, word, ErrPermissionDenied)
		}
	}
	if err := s.checkWriteRefs(cleaned, first); err != nil {
		return fmt.Errorf("Exec: plugin %s: %w", s.manifest.ID, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Exec: plugin %s: %w", s.manifest.ID, err)
	}
	return nil
}

// checkReadRefs scans every table reference in a read statement. Each must
// be either qualified with the plugin schema or a declared read view.
func (s *Session) checkReadRefs(query string) error {
	cleaned := sessionLiteralRe.ReplaceAllString(query, "''")
	for _, match := range tableRefRe.FindAllStringSubmatch(cleaned, -1) {
		ref := strings.ToLower(match[2])
		if schema, _, ok := strings.Cut(ref, "."); ok {
			if schema != s.schema {
				return fmt.Errorf("references %s outside schema %s: %w", ref, s.schema, ErrPermissionDenied)
			}
			continue
		}
		if !s.readTables[ref] {
			return fmt.Errorf("read of undeclared table %s: %w", ref, ErrPermissionDenied)
		}
	}
	return nil
}

// checkWriteRefs distinguishes mutation targets (INTO, UPDATE, TABLE, and
// the FROM of a DELETE) from plain read references. Targets must live in the
// plugin schema; read references follow the read rules.
func (s *Session) checkWriteRefs(cleaned, stmtKind string) error {
	sawTarget := false
	for _, match := range tableRefRe.FindAllStringSubmatch(cleaned, -1) {
		keyword := strings.ToLower(match[1])
		ref := strings.ToLower(match[2])

		isTarget := keyword == "into" || keyword == "update" || keyword == "table"
		if stmtKind == "delete" && keyword == "from" && !sawTarget {
			isTarget = true
		}
		if isTarget {
			sawTarget = true
		}

		schema, _, qualified := strings.Cut(ref, ".")
		switch {
		case isTarget && (!qualified || schema != s.schema):
			return fmt.Errorf("write target %s must live in schema %s: %w", ref, s.schema, ErrPermissionDenied)
		case !isTarget && qualified && schema != s.schema:
			return fmt.Errorf("references %s outside schema %s: %w", ref, s.schema, ErrPermissionDenied)
		case !isTarget && !qualified && !s.readTables[ref]:
			return fmt.Errorf("read of undeclared table %s: %w", ref, ErrPermissionDenied)
		}
	}
	if !sawTarget {
		return fmt.Errorf("no mutation target found: %w", ErrPermissionDenied)
	}
	return nil
}
