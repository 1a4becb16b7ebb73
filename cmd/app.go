// Package cmd implements the CLI commands to import custodian exports and
// emit them as JSONL.
package cmd

import (
	"encoding/json"
	"os"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on
// the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&importFidelityPositionsCmd{}, "fidelity")
	c.Register(&importFidelityTransactionsCmd{}, "fidelity")
	c.Register(&importIBKRTradesCmd{}, "ibkr")
	c.Register(&importIBKRPositionsCmd{}, "ibkr")
}

// emitJSONL writes one JSON object per record to stdout.
func emitJSONL[T any](records []T) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			log.WithError(err).Error("cannot encode record")
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
