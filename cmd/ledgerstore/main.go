// ledgerstore is the command line surface over the local finance store:
// schema migrations, provider sync, CSV import, read-only queries, health
// checks and plugin management.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgerstore/internal/config"
	"github.com/dvloznov/ledgerstore/internal/logger"
	"github.com/dvloznov/ledgerstore/internal/migrate"
	"github.com/dvloznov/ledgerstore/internal/store"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(subcommands.HelpCommand(), "")
	commander.Register(subcommands.CommandsCommand(), "")
	commander.Register(&migrateCmd{}, "database")
	commander.Register(&statusCmd{}, "database")
	commander.Register(&doctorCmd{}, "database")
	commander.Register(&queryCmd{}, "database")
	commander.Register(&compactCmd{}, "database")
	commander.Register(&syncCmd{}, "ingestion")
	commander.Register(&importCmd{}, "ingestion")
	commander.Register(&pluginCmd{}, "plugins")

	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)
	os.Exit(int(commander.Execute(ctx)))
}

// openStore opens the configured database and brings its schema current.
func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	engine := migrate.NewEngine(s.DB(), migrate.CoreSchema, migrate.CoreSteps())
	engine.AfterApply = func(ctx context.Context, _ *sql.DB) error {
		return s.RebuildViews(ctx, store.SplitAsSplit)
	}
	if _, err := engine.Run(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, cfg, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return subcommands.ExitFailure
}
