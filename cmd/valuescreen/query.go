package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/ternarybob/valuescreen/internal/models"
)

type queryCmd struct {
	minMargin float64
	limit     int
	asJSON    bool
}

func (*queryCmd) Name() string     { return "query" }
func (*queryCmd) Synopsis() string { return "list scored records above a margin of safety" }
func (*queryCmd) Usage() string {
	return `valuescreen [-config <file>] query [-min <percent>] [-n <limit>] [-json]

  Prints stored records whose margin of safety is at least -min, highest
  margin first. Skipped records are never listed.
`
}

func (c *queryCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.minMargin, "min", 20, "Minimum margin of safety, in percent.")
	f.IntVar(&c.limit, "n", 50, "Maximum number of rows (0 for all).")
	f.BoolVar(&c.asJSON, "json", false, "Print records as JSON.")
}

func (c *queryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	config, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return subcommands.ExitFailure
	}

	application, err := openApp(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return subcommands.ExitFailure
	}
	defer application.Close()

	records, err := application.StorageManager.StockStorage().QueryByMinMarginOfSafety(ctx, c.minMargin)
	if err != nil {
		logger.Error().Err(err).Msg("Query failed")
		return subcommands.ExitFailure
	}
	if c.limit > 0 && len(records) > c.limit {
		records = records[:c.limit]
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	printRecords(os.Stdout, records)
	return subcommands.ExitSuccess
}

func printRecords(out io.Writer, records []models.StockRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tFAIR VALUE\tMARGIN %\tSAFETY\tVALUE\tVERDICT\tUPDATED\t")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.0f\t%.0f\t%s\t%s\t\n",
			r.Symbol,
			r.Price,
			r.Metrics.FairValue,
			r.MarginOfSafety,
			r.Metrics.SafetyScore,
			r.Metrics.ValueScore,
			r.Metrics.Verdict,
			r.LastUpdated.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()
}
