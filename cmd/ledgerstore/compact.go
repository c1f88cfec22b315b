package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type compactCmd struct{}

func (*compactCmd) Name() string     { return "compact" }
func (*compactCmd) Synopsis() string { return "checkpoint the database and reclaim space" }
func (*compactCmd) Usage() string {
	return `ledgerstore compact

  Forces a checkpoint so the write-ahead log is folded into the database
  file.
`
}
func (*compactCmd) SetFlags(*flag.FlagSet) {}

func (c *compactCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, _, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	if err := s.Compact(ctx); err != nil {
		return fail(err)
	}
	fmt.Println("compacted")
	return subcommands.ExitSuccess
}
