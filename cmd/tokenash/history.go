package main

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/tokenash/pkg/models"
)

func newHistoryCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the stored daily usage ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, flush, err := setup(cmd)
			if err != nil {
				return err
			}
			defer flush()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records := store.Load(ctx).LastN(days)
			if len(records) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			providers := providerColumns(records)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprint(w, "DATE")
			for _, p := range providers {
				fmt.Fprintf(w, "\t%s", p)
			}
			fmt.Fprintln(w, "\tTOTAL")
			for _, r := range records {
				fmt.Fprint(w, r.Day)
				for _, p := range providers {
					fmt.Fprintf(w, "\t%s", humanize.Comma(r.Providers[p]))
				}
				fmt.Fprintf(w, "\t%s\n", humanize.Comma(r.Total()))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of trailing days to show")
	return cmd
}

// providerColumns returns every provider seen in records, sorted by name.
func providerColumns(records []models.UsageRecord) []string {
	var names []string
	for _, r := range records {
		for p := range r.Providers {
			if !slices.Contains(names, p) {
				names = append(names, p)
			}
		}
	}
	slices.Sort(names)
	return names
}
