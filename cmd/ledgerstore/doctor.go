package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type doctorCmd struct{}

func (*doctorCmd) Name() string     { return "doctor" }
func (*doctorCmd) Synopsis() string { return "run consistency checks on the database" }
func (*doctorCmd) Usage() string {
	return `ledgerstore doctor

  Checks for orphaned rows, duplicate imports, implausible dates and
  missing fingerprints. Exits non-zero when a defect is found.
`
}
func (*doctorCmd) SetFlags(*flag.FlagSet) {}

func (c *doctorCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, _, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	report, err := s.Doctor(ctx)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("orphaned transactions: %d\n", report.OrphanedTransactions)
	fmt.Printf("orphaned snapshots:    %d\n", report.OrphanedSnapshots)
	fmt.Printf("orphaned splits:       %d\n", report.OrphanedSplits)
	fmt.Printf("duplicate csv rows:    %d\n", report.DuplicateCSVRows)
	fmt.Printf("future-dated:          %d\n", report.FutureDated)
	fmt.Printf("missing fingerprints:  %d\n", report.MissingFingerprints)
	fmt.Printf("untagged:              %d\n", report.Untagged)

	if !report.Healthy() {
		fmt.Println("\nstatus: defects found")
		return subcommands.ExitFailure
	}
	fmt.Println("\nstatus: ok")
	return subcommands.ExitSuccess
}
