package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgerstore/internal/migrate"
)

type migrateCmd struct {
	list bool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "bring the database schema up to date" }
func (*migrateCmd) Usage() string {
	return `ledgerstore migrate [-list]

  Applies any pending schema migrations to the core scope and rebuilds the
  read views. With -list, shows the applied migration history instead.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "List applied migrations without changing anything.")
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, _, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	engine := migrate.NewEngine(s.DB(), migrate.CoreSchema, migrate.CoreSteps())
	if c.list {
		applied, err := engine.AppliedMigrations(ctx)
		if err != nil {
			return fail(err)
		}
		for _, m := range applied {
			fmt.Printf("%4d  %-30s  %s\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		return subcommands.ExitSuccess
	}

	// openStore already ran the migrations; report where we landed.
	version, err := engine.CurrentVersion(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Schema is up to date at version %d\n", version)
	return subcommands.ExitSuccess
}
