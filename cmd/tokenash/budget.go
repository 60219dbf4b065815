package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/tokenash/pkg/budget"
)

func newBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect token budgets",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, flush, err := setup(cmd)
			if err != nil {
				return err
			}
			defer flush()

			if len(cfg.Budget.Policies) == 0 {
				fmt.Println("No budget policies configured.")
				return nil
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			statuses := budget.New(cfg.Budget.Policies).Status(store.Load(ctx), time.Now().UTC())

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tPERIOD\tSINCE\tMAX TOKENS\tUSED\tREMAINING\t")
			for _, s := range statuses {
				flag := ""
				if s.Exceeded() {
					flag = "EXCEEDED"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.Policy.Provider, s.Policy.Period, s.Since,
					humanize.Comma(s.Policy.MaxTokens), humanize.Comma(s.Used), humanize.Comma(s.Remaining), flag)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}
