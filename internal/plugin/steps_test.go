package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSteps(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_add_limits.sql": `ALTER TABLE {{schema}}.budgets ADD COLUMN monthly_limit DECIMAL(15,2);`,
		"001_init.sql": `CREATE TABLE {{schema}}.budgets (id INTEGER);
CREATE TABLE {{schema}}.notes (id INTEGER);`,
		"manifest.json": `{}`,
		"README.md":     `ignored`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	steps, err := LoadSteps(dir)
	if err != nil {
		t.Fatalf("LoadSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(steps))
	}
	if steps[0].Version != 1 || steps[0].Name != "init" {
		t.Errorf("Unexpected first step: %+v", steps[0])
	}
	if len(steps[0].Statements) != 2 {
		t.Errorf("Expected 2 statements in init, got %d", len(steps[0].Statements))
	}
	if steps[1].Version != 2 || steps[1].Name != "add_limits" {
		t.Errorf("Unexpected second step: %+v", steps[1])
	}
}

func TestLoadStepsMissingDir(t *testing.T) {
	if _, err := LoadSteps(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing directory")
	}
}
