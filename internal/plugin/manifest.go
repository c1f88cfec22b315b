// Package plugin gives extensions an isolated schema with their own
// migration history, and a permission-checked session as their only path to
// the database.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Permissions declares what a plugin may touch. Read lists the core views
// the plugin may select from. Write lists tables inside the plugin's own
// schema; writes are never allowed outside it, so an entry qualified with
// any other schema is rejected at load time.
type Permissions struct {
	Read  []string `json:"read"`
	Write []string `json:"write,omitempty"`
	// SchemaName overrides the derived schema name.
	SchemaName string `json:"schema_name,omitempty"`
}

// Manifest is a plugin's declaration, loaded from its manifest.json.
type Manifest struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Permissions Permissions `json:"permissions"`
}

var pluginIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadManifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("LoadManifest: decoding %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("LoadManifest: %w", err)
	}
	return &m, nil
}

// Validate checks the manifest's structural rules.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("plugin id is required")
	}
	if !pluginIDRe.MatchString(m.ID) {
		return fmt.Errorf("plugin id %q must be lowercase alphanumeric with - or _", m.ID)
	}
	schema := m.Schema()
	if strings.EqualFold(schema, "main") {
		return fmt.Errorf("plugin schema cannot be the core schema")
	}
	for _, table := range m.Permissions.Read {
		if strings.Contains(table, ".") {
			return fmt.Errorf("read permission %q must be an unqualified view name", table)
		}
		if strings.HasPrefix(strings.ToLower(table), "sys_") {
			return fmt.Errorf("read permission %q targets a system table; declare the view instead", table)
		}
	}
	for _, table := range m.Permissions.Write {
		if schemaOf, _, ok := strings.Cut(table, "."); ok && schemaOf != schema {
			return fmt.Errorf("write permission %q reaches outside schema %s", table, schema)
		}
	}
	return nil
}

// Schema is the plugin's namespace: the declared override, or plugin_<id>
// with dashes folded to underscores.
func (m *Manifest) Schema() string {
	if m.Permissions.SchemaName != "" {
		return m.Permissions.SchemaName
	}
	return "plugin_" + strings.ReplaceAll(m.ID, "-", "_")
}
