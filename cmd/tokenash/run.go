package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/tokenash/pkg/chart"
	"github.com/pario-ai/tokenash/pkg/logger"
	"github.com/pario-ai/tokenash/pkg/metrics"
	"github.com/pario-ai/tokenash/pkg/runner"
)

func newRunCmd() *cobra.Command {
	var (
		days     int
		backfill int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch today's usage, update the ledger and regenerate the chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, flush, err := setup(cmd)
			if err != nil {
				return err
			}
			defer flush()
			log := logger.FromContext(ctx)

			if cmd.Flags().Changed("days") {
				cfg.Chart.Days = days
			}
			if cmd.Flags().Changed("backfill") {
				cfg.Fetch.BackfillDays = backfill
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			opts := []runner.Option{runner.WithMetrics(metrics.New())}
			if cfg.Chart.DownloadImage {
				c, err := newCache(cfg)
				if err != nil {
					log.Warn("chart cache unavailable", zap.Error(err))
				} else {
					defer func() { _ = c.Close() }()
					opts = append(opts, runner.WithImageCache(c))
				}
			}

			r, err := runner.New(cfg, store, opts...)
			if err != nil {
				return err
			}

			res, err := r.Run(ctx)
			if err != nil {
				return err
			}
			if res.Spec == nil {
				fmt.Print(chart.NoDataMarkdown)
				return nil
			}
			fmt.Print(res.Markdown)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of days to chart")
	cmd.Flags().IntVar(&backfill, "backfill", 0, "also fetch the previous N days")
	return cmd
}
