package cmd

import (
	"context"
	"flag"

	"github.com/etnz/brokerage/ibkr"
	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"
)

// --- import-ibkr-trades ---

type importIBKRTradesCmd struct{}

func (*importIBKRTradesCmd) Name() string { return "import-ibkr-trades" }
func (*importIBKRTradesCmd) Synopsis() string {
	return "Converts the trade confirmations of a flex-query XML export to JSONL."
}
func (*importIBKRTradesCmd) Usage() string {
	return `bkr import-ibkr-trades <flex.xml>

  Reads a flex-query export and outputs trade confirmations in JSONL format to stdout.
  Example: bkr import-ibkr-trades flex.xml > trades.jsonl
`
}

func (*importIBKRTradesCmd) SetFlags(f *flag.FlagSet) {}

func (*importIBKRTradesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Error("expected exactly one flex-query file")
		return subcommands.ExitUsageError
	}
	trades, err := ibkr.ParseTrades(f.Arg(0))
	if err != nil {
		log.WithError(err).Error("cannot parse flex-query export")
		return subcommands.ExitFailure
	}
	return emitJSONL(trades)
}

// --- import-ibkr-positions ---

type importIBKRPositionsCmd struct{}

func (*importIBKRPositionsCmd) Name() string { return "import-ibkr-positions" }
func (*importIBKRPositionsCmd) Synopsis() string {
	return "Converts the open positions of a flex-query XML export to JSONL."
}
func (*importIBKRPositionsCmd) Usage() string {
	return `bkr import-ibkr-positions <flex.xml>

  Reads a flex-query export and outputs open positions in JSONL format to stdout.
  Example: bkr import-ibkr-positions flex.xml > positions.jsonl
`
}

func (*importIBKRPositionsCmd) SetFlags(f *flag.FlagSet) {}

func (*importIBKRPositionsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Error("expected exactly one flex-query file")
		return subcommands.ExitUsageError
	}
	positions, err := ibkr.ParsePositions(f.Arg(0))
	if err != nil {
		log.WithError(err).Error("cannot parse flex-query export")
		return subcommands.ExitFailure
	}
	return emitJSONL(positions)
}
