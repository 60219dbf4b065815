package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pario-ai/tokenash/pkg/chart"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CC834B"))
	statStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10A37F"))
)

func newShowCmd() *cobra.Command {
	var (
		days   int
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Plot the stored ledger in the terminal",
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

			if !cmd.Flags().Changed("days") {
				days = cfg.Chart.Days
			}
			spec := chart.Build(store.Load(ctx).LastN(days), cfg.Chart.Title)
			if spec == nil {
				fmt.Println("No usage data available.")
				return nil
			}

			fmt.Println(titleStyle.Render(fmt.Sprintf("Token Consumption (last %d days)", len(spec.Labels))))
			fmt.Println(statStyle.Render(fmt.Sprintf("Total: %s | Avg: %s/day | Peak: %s",
				chart.FormatTokens(spec.Summary.Sum),
				chart.FormatTokens(spec.Summary.Mean),
				chart.FormatTokens(spec.Summary.Max))))
			fmt.Println()
			fmt.Println(chart.RenderTerminal(spec, width, height))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of days to plot")
	cmd.Flags().IntVar(&width, "width", 60, "plot width in columns")
	cmd.Flags().IntVar(&height, "height", 12, "plot height in rows")
	return cmd
}
