package commands

import (
	"context"
	"fmt"
	"os"

	"price-tracker/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "price-tracker",
	Short: "price-tracker watches a product page and messages you once the price drops to your target.",
	// With no subcommand the tracker watches, like the original script.
	RunE:          runWatch,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
