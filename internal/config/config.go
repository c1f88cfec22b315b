// Package config resolves where the data directory and database live.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvDataDir overrides the default data directory.
const EnvDataDir = "LEDGERSTORE_DIR"

// Config holds resolved filesystem locations.
type Config struct {
	DataDir      string
	DatabasePath string
	PluginsDir   string
}

// Load resolves the data directory (env override, else ~/.ledgerstore) and
// creates it if missing.
func Load() (*Config, error) {
	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("Load: resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ledgerstore")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("Load: creating data directory: %w", err)
	}
	return &Config{
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "ledgerstore.db"),
		PluginsDir:   filepath.Join(dataDir, "plugins"),
	}, nil
}
