package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/ledgerstore/internal/migrate"
)

var stepFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.sql$`)

// LoadSteps reads a plugin's migration directory. Files are named
// NNN_description.sql; each file is one version, with statements split on
// semicolons. Use {{schema}} inside statements to refer to the plugin
// schema.
func LoadSteps(dir string) ([]migrate.Step, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadSteps: %w", err)
	}

	var steps []migrate.Step
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := stepFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil || version < 1 {
			return nil, fmt.Errorf("LoadSteps: bad version in %s", e.Name())
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("LoadSteps: %w", err)
		}
		steps = append(steps, migrate.Step{
			Version:    version,
			Name:       m[2],
			Statements: splitStatements(string(data)),
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
