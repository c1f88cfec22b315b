package plugin

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/dvloznov/ledgerstore/internal/migrate"
	"github.com/dvloznov/ledgerstore/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if _, err := migrate.NewEngine(db, migrate.CoreSchema, migrate.CoreSteps()).Run(ctx); err != nil {
		t.Fatalf("core migrations: %v", err)
	}
	return db
}

func budgetManifest() *Manifest {
	return &Manifest{
		ID:      "budget-tracker",
		Name:    "Budget Tracker",
		Version: "1.0.0",
		Permissions: Permissions{
			Read: []string{"transactions", "accounts"},
		},
	}
}

func budgetSteps() []migrate.Step {
	return []migrate.Step{
		{Version: 1, Name: "init", Statements: []string{
			`CREATE TABLE {{schema}}.budgets (id INTEGER, category VARCHAR, monthly_limit DECIMAL(15,2))`,
		}},
	}
}

func activateBudget(t *testing.T, db *sql.DB) *Session {
	t.Helper()
	session, err := Activate(context.Background(), db, budgetManifest(), budgetSteps())
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return session
}

func TestManifestSchema(t *testing.T) {
	m := budgetManifest()
	if got := m.Schema(); got != "plugin_budget_tracker" {
		t.Errorf("Expected plugin_budget_tracker, got %s", got)
	}

	m.Permissions.SchemaName = "custom_space"
	if got := m.Schema(); got != "custom_space" {
		t.Errorf("Expected custom_space, got %s", got)
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Manifest)
		wantErr  bool
	}{
		{"valid", func(m *Manifest) {}, false},
		{"empty id", func(m *Manifest) { m.ID = "" }, true},
		{"bad id chars", func(m *Manifest) { m.ID = "Bad Plugin!" }, true},
		{"schema collides with core", func(m *Manifest) { m.Permissions.SchemaName = "main" }, true},
		{"qualified read", func(m *Manifest) { m.Permissions.Read = []string{"main.transactions"} }, true},
		{"system table read", func(m *Manifest) { m.Permissions.Read = []string{"sys_transactions"} }, true},
		{"own-schema write", func(m *Manifest) { m.Permissions.Write = []string{"budgets", "plugin_budget_tracker.notes"} }, false},
		{"foreign-schema write", func(m *Manifest) { m.Permissions.Write = []string{"main.sys_accounts"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := budgetManifest()
			tt.mutate(m)
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	content := `{
		"id": "budget-tracker",
		"name": "Budget Tracker",
		"version": "1.0.0",
		"permissions": {"read": ["transactions"]}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.ID != "budget-tracker" || len(m.Permissions.Read) != 1 {
		t.Errorf("Unexpected manifest: %+v", m)
	}

	if _, err := LoadManifest(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestActivateProvisionsSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	session := activateBudget(t, db)

	if err := session.Exec(ctx, `INSERT INTO plugin_budget_tracker.budgets VALUES (1, 'food', 400.00)`); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	res, err := session.Query(ctx, `SELECT category FROM plugin_budget_tracker.budgets`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != "food" {
		t.Errorf("Unexpected rows: %+v", res.Rows)
	}

	// Re-activation reruns nothing and keeps data.
	session2, err := Activate(ctx, db, budgetManifest(), budgetSteps())
	if err != nil {
		t.Fatalf("Activate (second): %v", err)
	}
	res, err = session2.Query(ctx, `SELECT count(*) FROM plugin_budget_tracker.budgets`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Rows[0][0] != int64(1) && res.Rows[0][0] != int32(1) {
		t.Errorf("Expected data preserved, got %v", res.Rows[0][0])
	}
}

func TestActivateMigrationFailureDisablesPluginOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	bad := []migrate.Step{
		{Version: 1, Name: "broken", Statements: []string{`THIS IS NOT SQL`}},
	}
	if _, err := Activate(ctx, db, budgetManifest(), bad); err == nil {
		t.Fatal("Expected activation error")
	}

	// The core schema is untouched and still queryable.
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM main.sys_accounts`).Scan(&n); err != nil {
		t.Errorf("Expected core tables intact: %v", err)
	}
}

func TestPluginVersionSpaceIsIndependent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	activateBudget(t, db)

	other := &Manifest{ID: "net-worth", Permissions: Permissions{Read: []string{"accounts"}}}
	otherSteps := []migrate.Step{
		{Version: 1, Name: "init", Statements: []string{
			`CREATE TABLE {{schema}}.history (id INTEGER)`,
		}},
	}
	if _, err := Activate(ctx, db, other, otherSteps); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// Each scope has its own sys_migrations at version 1.
	for _, schema := range []string{"plugin_budget_tracker", "plugin_net_worth"} {
		var version int
		err := db.QueryRowContext(ctx,
			`SELECT max(version) FROM `+schema+`.sys_migrations`).Scan(&version)
		if err != nil {
			t.Fatalf("querying %s: %v", schema, err)
		}
		if version != 1 {
			t.Errorf("Expected %s at version 1, got %d", schema, version)
		}
	}
}

func TestSessionReadPermissions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Views must exist for declared reads.
	st := storeFor(t, db)
	if err := st.RebuildViews(ctx, store.SplitAsSplit); err != nil {
		t.Fatalf("RebuildViews: %v", err)
	}

	session := activateBudget(t, db)

	if _, err := session.Query(ctx, `SELECT * FROM transactions`); err != nil {
		t.Errorf("Expected declared read allowed: %v", err)
	}
	if _, err := session.Query(ctx, `SELECT t.id FROM transactions t JOIN accounts a ON a.id = t.account_id`); err != nil {
		t.Errorf("Expected declared join allowed: %v", err)
	}

	_, err := session.Query(ctx, `SELECT * FROM sys_transactions`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for undeclared table, got %v", err)
	}
	_, err = session.Query(ctx, `SELECT * FROM main.sys_accounts`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for qualified core table, got %v", err)
	}
	_, err = session.Query(ctx, `DROP TABLE plugin_budget_tracker.budgets`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for non-read statement, got %v", err)
	}
}

func TestSessionWritePermissions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	session := activateBudget(t, db)

	if err := session.Exec(ctx, `INSERT INTO plugin_budget_tracker.budgets VALUES (1, 'rent', 1200.00)`); err != nil {
		t.Errorf("Expected own-schema write allowed: %v", err)
	}
	if err := session.Exec(ctx, `UPDATE plugin_budget_tracker.budgets SET monthly_limit = 1300.00`); err != nil {
		t.Errorf("Expected own-schema update allowed: %v", err)
	}
	if err := session.Exec(ctx, `DELETE FROM plugin_budget_tracker.budgets WHERE id = 1`); err != nil {
		t.Errorf("Expected own-schema delete allowed: %v", err)
	}

	err := session.Exec(ctx, `INSERT INTO main.sys_transactions (id) VALUES ('x')`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for core write, got %v", err)
	}
	err = session.Exec(ctx, `UPDATE sys_accounts SET name = 'hacked'`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for unqualified target, got %v", err)
	}
	err = session.Exec(ctx, `DELETE FROM transactions`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for delete on read view, got %v", err)
	}
	err = session.Exec(ctx, `ATTACH 'evil.db'`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for attach, got %v", err)
	}
	err = session.Exec(ctx, `SET memory_limit = '1GB'`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for bare set statement, got %v", err)
	}
	err = session.Exec(ctx, `INSERT INTO plugin_budget_tracker.budgets VALUES (2, 'x', 1.00); DROP TABLE main.sys_accounts`)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for stacked statements, got %v", err)
	}
}

func storeFor(t *testing.T, db *sql.DB) *store.Store {
	t.Helper()
	// RebuildViews needs a Store handle over the same database.
	return store.FromDB(db)
}
