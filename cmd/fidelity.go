package cmd

import (
	"context"
	"flag"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/fidelity"
	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"
)

// --- import-fidelity-positions ---

type importFidelityPositionsCmd struct {
	currency string
}

func (*importFidelityPositionsCmd) Name() string { return "import-fidelity-positions" }
func (*importFidelityPositionsCmd) Synopsis() string {
	return "Converts a Fidelity positions CSV export to JSONL."
}
func (*importFidelityPositionsCmd) Usage() string {
	return `bkr import-fidelity-positions [-currency USD] <positions.csv>

  Reads a Fidelity positions export and outputs holdings in JSONL format to stdout.
  Example: bkr import-fidelity-positions positions.csv > positions.jsonl
`
}

func (c *importFidelityPositionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "USD", "account base currency")
}

func (c *importFidelityPositionsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Error("expected exactly one positions file")
		return subcommands.ExitUsageError
	}
	cur, err := brokerage.ParseCurrency(c.currency)
	if err != nil {
		log.WithError(err).Error("invalid -currency flag")
		return subcommands.ExitUsageError
	}
	positions, err := fidelity.ParsePositions(f.Arg(0), fidelity.WithCurrency(cur))
	if err != nil {
		log.WithError(err).Error("cannot parse positions export")
		return subcommands.ExitFailure
	}
	return emitJSONL(positions)
}

// --- import-fidelity-transactions ---

type importFidelityTransactionsCmd struct {
	currency string
}

func (*importFidelityTransactionsCmd) Name() string { return "import-fidelity-transactions" }
func (*importFidelityTransactionsCmd) Synopsis() string {
	return "Converts a Fidelity transaction-history CSV export to JSONL."
}
func (*importFidelityTransactionsCmd) Usage() string {
	return `bkr import-fidelity-transactions [-currency USD] <transactions.csv>

  Reads a Fidelity transaction-history export and outputs trades in JSONL format to stdout.
  Example: bkr import-fidelity-transactions history.csv > trades.jsonl
`
}

func (c *importFidelityTransactionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "USD", "account base currency")
}

func (c *importFidelityTransactionsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Error("expected exactly one transactions file")
		return subcommands.ExitUsageError
	}
	cur, err := brokerage.ParseCurrency(c.currency)
	if err != nil {
		log.WithError(err).Error("invalid -currency flag")
		return subcommands.ExitUsageError
	}
	trades, err := fidelity.ParseTransactions(f.Arg(0), fidelity.WithCurrency(cur))
	if err != nil {
		log.WithError(err).Error("cannot parse transactions export")
		return subcommands.ExitFailure
	}
	return emitJSONL(trades)
}
