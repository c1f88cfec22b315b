package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/dvloznov/ledgerstore/internal/provider"
	"github.com/dvloznov/ledgerstore/internal/reconcile"
)

type importCmd struct {
	file       string
	account    string
	dateCol    string
	descCol    string
	amountCol  string
	debitCol   string
	creditCol  string
	balanceCol string
	format     string
	skipRows   int
	flipSign   bool
	dryRun     bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a bank CSV export into an account" }
func (*importCmd) Usage() string {
	return `ledgerstore import -file <statement.csv> -account <account-id> [options]

  Imports a CSV statement into an existing account. Columns are auto-detected
  from common bank headers; use the column flags to override. Re-importing
  the same batch is a no-op, and the same rows in a new import are treated
  as new transactions.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "CSV file to import (required).")
	f.StringVar(&c.account, "account", "", "Target account id (required).")
	f.StringVar(&c.dateCol, "date-col", "", "Header of the date column.")
	f.StringVar(&c.descCol, "desc-col", "", "Header of the description column.")
	f.StringVar(&c.amountCol, "amount-col", "", "Header of the amount column.")
	f.StringVar(&c.debitCol, "debit-col", "", "Header of the debit column.")
	f.StringVar(&c.creditCol, "credit-col", "", "Header of the credit column.")
	f.StringVar(&c.balanceCol, "balance-col", "", "Header of the running balance column.")
	f.StringVar(&c.format, "number-format", "us", "Number convention: us, eu or eu-space.")
	f.IntVar(&c.skipRows, "skip-rows", 0, "Preamble lines to drop before the header.")
	f.BoolVar(&c.flipSign, "flip-sign", false, "Negate every amount.")
	f.BoolVar(&c.dryRun, "dry-run", false, "Decide every record but write nothing.")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" || c.account == "" {
		return fail(fmt.Errorf("-file and -account are required"))
	}
	accountID, err := uuid.Parse(c.account)
	if err != nil {
		return fail(fmt.Errorf("parsing account id: %w", err))
	}

	var format provider.NumberFormat
	switch c.format {
	case "us":
		format = provider.NumberUS
	case "eu":
		format = provider.NumberEU
	case "eu-space":
		format = provider.NumberEUSpace
	default:
		return fail(fmt.Errorf("unknown number format %q", c.format))
	}

	file, err := os.Open(c.file)
	if err != nil {
		return fail(err)
	}
	defer file.Close()

	batch, err := provider.ImportCSV(file, accountID, provider.ImportOptions{
		Mappings: provider.ColumnMappings{
			Date:        c.dateCol,
			Description: c.descCol,
			Amount:      c.amountCol,
			Debit:       c.debitCol,
			Credit:      c.creditCol,
			Balance:     c.balanceCol,
		},
		SkipRows:     c.skipRows,
		NumberFormat: format,
		FlipSign:     c.flipSign,
	})
	if err != nil {
		return fail(err)
	}

	s, _, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	result, err := reconcile.New(s).ImportCSVBatch(ctx, accountID, batch, reconcile.SyncOptions{DryRun: c.dryRun})
	if err != nil {
		return fail(err)
	}
	printSyncResult(result)
	return subcommands.ExitSuccess
}
