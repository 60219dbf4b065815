package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tokenash/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "tokenash",
		Short:         "Daily LLM token usage charts for your profile README",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", config.DefaultPath, "path to config file")

	root.AddCommand(
		newRunCmd(),
		newShowCmd(),
		newHistoryCmd(),
		newBudgetCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
