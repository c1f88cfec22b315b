package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrNotReadOnly is returned by the query boundary for statements that could
// mutate state.
var ErrNotReadOnly = errors.New("query must be a read-only SELECT or WITH statement")

// QueryResult is an ordered result set with named columns. Values are plain
// Go types (string, int64, float64, bool, time.Time, nil).
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

var (
	stringLiteralRe = regexp.MustCompile(`'(?:[^']|'')*'`)
	wordRe          = regexp.MustCompile(`[a-zA-Z_]+`)
)

// Statement kinds that mutate state or reach outside the database. Matched
// as whole words anywhere in the statement, not just the first keyword,
// to cover WITH ... INSERT and similar nesting.
var forbiddenKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true,
	"create": true, "drop": true, "alter": true, "truncate": true,
	"attach": true, "detach": true, "copy": true, "export": true,
	"import": true, "install": true, "load": true, "call": true,
	"pragma": true, "set": true, "reset": true, "begin": true,
	"commit": true, "rollback": true, "vacuum": true, "checkpoint": true,
	"grant": true, "revoke": true, "use": true,
}

// ValidateReadOnly rejects any statement that is not a single SELECT or WITH
// query. String literals are blanked before the keyword scan, so searching
// for the text 'update' is fine.
func ValidateReadOnly(query string) error {
	cleaned := stringLiteralRe.ReplaceAllString(query, "''")
	trimmed := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(cleaned), ";"))
	if trimmed == "" {
		return fmt.Errorf("ValidateReadOnly: empty query: %w", ErrNotReadOnly)
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("ValidateReadOnly: multiple statements: %w", ErrNotReadOnly)
	}

	lower := strings.ToLower(trimmed)
	first := wordRe.FindString(lower)
	if first != "select" && first != "with" && first != "describe" && first != "show" {
		return fmt.Errorf("ValidateReadOnly: statement kind %q: %w", first, ErrNotReadOnly)
	}
	for _, word := range wordRe.FindAllString(lower, -1) {
		if forbiddenKeywords[word] {
			return fmt.Errorf("ValidateReadOnly: forbidden keyword %q: %w", word, ErrNotReadOnly)
		}
	}
	return nil
}

// Query runs a read-only statement against the views and tables and collects
// the full result. This is the only query path exposed to external callers.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	res, err := Collect(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	return res, nil
}

// Collect runs a statement and materializes the result set. It performs no
// permission checks; callers gate access.
func Collect(ctx context.Context, db *sql.DB, query string, args ...any) (*QueryResult, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Collect: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("Collect: columns: %w", err)
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("Collect: scan: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Collect: iterate: %w", err)
	}
	return result, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}
