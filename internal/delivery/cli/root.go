package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tentens-tech/rental-deposit/internal/delivery"
)

var rootCmd = &cobra.Command{
	Use:   "rental-deposit",
	Short: "rental deposit escrow server and client",
}

func Execute(ctx context.Context) error {
	initCommands(rootCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return err
	}

	return nil
}

func initCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		delivery.NewServe(),
		NewLease(),
		NewAccount(),
	)
}
