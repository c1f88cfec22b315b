package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Step is a single schema migration for one scope. Statements run in order
// inside one transaction together with the version record, so a step either
// fully applies or leaves no trace.
type Step struct {
	Version    int
	Name       string
	Statements []string
}

// Applied is a migration row already recorded in a scope's sys_migrations.
type Applied struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// Result summarizes one Run.
type Result struct {
	Scope          string
	AppliedCount   int
	SkippedCount   int
	CurrentVersion int
}

// Engine applies declared migration steps to a single schema scope.
// The core store and each plugin get their own Engine, each with its own
// sys_migrations table, so version numbering is independent per scope.
type Engine struct {
	db     *sql.DB
	schema string
	steps  []Step

	// AfterApply runs once after any step applied, outside the step
	// transactions. Used to rebuild views over the changed tables.
	AfterApply func(ctx context.Context, db *sql.DB) error
}

// NewEngine creates an engine for the given schema scope. The schema name is
// substituted for the {{schema}} placeholder in every statement, so the same
// step list can provision any scope.
func NewEngine(db *sql.DB, schema string, steps []Step) *Engine {
	return &Engine{db: db, schema: schema, steps: steps}
}

// Run applies every declared step whose version is not yet recorded, in
// ascending version order. It fails fast: the first failing step aborts the
// run and its transaction rolls back, leaving prior steps applied.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	log := zerolog.Ctx(ctx)

	if err := validateSteps(e.steps); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	if err := e.bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("Run: bootstrap scope %s: %w", e.schema, err)
	}

	applied, err := e.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	appliedVersions := make(map[int]bool, len(applied))
	maxApplied := 0
	for _, am := range applied {
		appliedVersions[am.Version] = true
		if am.Version > maxApplied {
			maxApplied = am.Version
		}
	}

	res := &Result{Scope: e.schema, CurrentVersion: maxApplied}

	steps := make([]Step, len(e.steps))
	copy(steps, e.steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })

	for _, step := range steps {
		if appliedVersions[step.Version] {
			res.SkippedCount++
			continue
		}

		// A pending step below the recorded high-water mark means the
		// declared list and the database history have diverged.
		if step.Version < maxApplied {
			return nil, fmt.Errorf("Run: step %d %q is below already applied version %d in scope %s",
				step.Version, step.Name, maxApplied, e.schema)
		}

		log.Info().
			Str("scope", e.schema).
			Int("version", step.Version).
			Str("name", step.Name).
			Msg("applying migration")

		if err := e.applyStep(ctx, step); err != nil {
			return nil, fmt.Errorf("Run: apply step %d %q in scope %s: %w", step.Version, step.Name, e.schema, err)
		}

		res.AppliedCount++
		res.CurrentVersion = step.Version
		maxApplied = step.Version
	}

	if res.AppliedCount > 0 && e.AfterApply != nil {
		if err := e.AfterApply(ctx, e.db); err != nil {
			return nil, fmt.Errorf("Run: after apply in scope %s: %w", e.schema, err)
		}
	}

	log.Info().
		Str("scope", e.schema).
		Int("applied", res.AppliedCount).
		Int("skipped", res.SkippedCount).
		Int("version", res.CurrentVersion).
		Msg("migrations up to date")

	return res, nil
}

// AppliedMigrations returns the scope's recorded migrations in ascending
// version order. The scope must be bootstrapped first.
func (e *Engine) AppliedMigrations(ctx context.Context) ([]Applied, error) {
	q := fmt.Sprintf(`SELECT version, name, applied_at::VARCHAR FROM %s.sys_migrations ORDER BY version ASC`, e.schema)
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: query: %w", err)
	}
	defer rows.Close()

	var applied []Applied
	for rows.Next() {
		var am Applied
		var appliedAt string
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scan: %w", err)
		}
		am.AppliedAt, _ = parseTimestamp(appliedAt)
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AppliedMigrations: iterate: %w", err)
	}
	return applied, nil
}

// CurrentVersion returns the highest applied version, or 0 for a fresh scope.
func (e *Engine) CurrentVersion(ctx context.Context) (int, error) {
	applied, err := e.AppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, am := range applied {
		if am.Version > max {
			max = am.Version
		}
	}
	return max, nil
}

// bootstrap provisions the scope's schema and sys_migrations table.
func (e *Engine) bootstrap(ctx context.Context) error {
	if e.schema != "main" {
		if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, e.schema)); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.sys_migrations (
			version    INTEGER NOT NULL,
			name       VARCHAR NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`, e.schema)
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating sys_migrations: %w", err)
	}
	return nil
}

// applyStep runs a step's statements and its version record in one transaction.
func (e *Engine) applyStep(ctx context.Context, step Step) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range step.Statements {
		stmt = strings.ReplaceAll(stmt, "{{schema}}", e.schema)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}

	record := fmt.Sprintf(`INSERT INTO %s.sys_migrations (version, name, applied_at) VALUES (?, ?, current_timestamp)`, e.schema)
	if _, err := tx.ExecContext(ctx, record, step.Version, step.Name); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// validateSteps rejects duplicate or non-positive versions before anything runs.
func validateSteps(steps []Step) error {
	seen := make(map[int]string, len(steps))
	for _, s := range steps {
		if s.Version <= 0 {
			return fmt.Errorf("step %q has non-positive version %d", s.Name, s.Version)
		}
		if prev, ok := seen[s.Version]; ok {
			return fmt.Errorf("duplicate version %d (%q and %q)", s.Version, prev, s.Name)
		}
		if len(s.Statements) == 0 {
			return fmt.Errorf("step %d %q has no statements", s.Version, s.Name)
		}
		seen[s.Version] = s.Name
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05.999999999-07", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parseTimestamp: unrecognized format %q", s)
}
