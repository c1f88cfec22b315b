package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgerstore/internal/config"
	"github.com/dvloznov/ledgerstore/internal/plugin"
)

type pluginCmd struct{}

func (*pluginCmd) Name() string     { return "plugin" }
func (*pluginCmd) Synopsis() string { return "list or activate plugins" }
func (*pluginCmd) Usage() string {
	return `ledgerstore plugin list
ledgerstore plugin activate <id>

  Plugins live under the plugins directory, one directory per plugin with
  a manifest.json and numbered migration files (001_init.sql ...).
  Activation provisions the plugin's schema and applies its pending
  migrations; a failing plugin never touches the core schema.
`
}
func (*pluginCmd) SetFlags(*flag.FlagSet) {}

func (c *pluginCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	switch f.Arg(0) {
	case "list":
		return c.list()
	case "activate":
		if f.NArg() != 2 {
			return fail(fmt.Errorf("usage: plugin activate <id>"))
		}
		return c.activate(ctx, f.Arg(1))
	default:
		return fail(fmt.Errorf("unknown plugin action %q", f.Arg(0)))
	}
}

func (c *pluginCmd) list() subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}
	entries, err := os.ReadDir(cfg.PluginsDir)
	if os.IsNotExist(err) {
		fmt.Println("no plugins installed")
		return subcommands.ExitSuccess
	}
	if err != nil {
		return fail(err)
	}

	found := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := plugin.LoadManifest(filepath.Join(cfg.PluginsDir, e.Name(), "manifest.json"))
		if err != nil {
			fmt.Printf("%-20s broken: %v\n", e.Name(), err)
			found = true
			continue
		}
		fmt.Printf("%-20s %s %s (schema %s)\n", m.ID, m.Name, m.Version, m.Schema())
		found = true
	}
	if !found {
		fmt.Println("no plugins installed")
	}
	return subcommands.ExitSuccess
}

func (c *pluginCmd) activate(ctx context.Context, id string) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}
	dir := filepath.Join(cfg.PluginsDir, id)
	m, err := plugin.LoadManifest(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return fail(err)
	}
	steps, err := plugin.LoadSteps(dir)
	if err != nil {
		return fail(err)
	}

	s, _, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	if _, err := plugin.Activate(ctx, s.DB(), m, steps); err != nil {
		return fail(err)
	}
	fmt.Printf("activated %s (schema %s)\n", m.ID, m.Schema())
	return subcommands.ExitSuccess
}
