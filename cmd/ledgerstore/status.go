package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type statusCmd struct{}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show row counts and database size" }
func (*statusCmd) Usage() string {
	return `ledgerstore status

  Prints account, transaction and snapshot counts, the transaction date
  range and the size of the database file.
`
}
func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, cfg, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	st, err := s.CollectStatus(ctx)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("database:     %s\n", cfg.DatabasePath)
	fmt.Printf("accounts:     %d\n", st.Accounts)
	fmt.Printf("transactions: %d (%d deleted)\n", st.Transactions, st.Deleted)
	fmt.Printf("snapshots:    %d\n", st.Snapshots)
	if st.OldestTxDate != nil && st.NewestTxDate != nil {
		fmt.Printf("date range:   %s to %s\n",
			st.OldestTxDate.Format("2006-01-02"), st.NewestTxDate.Format("2006-01-02"))
	}
	if st.DatabaseBytes > 0 {
		fmt.Printf("size:         %.1f MiB\n", float64(st.DatabaseBytes)/(1<<20))
	}
	return subcommands.ExitSuccess
}
