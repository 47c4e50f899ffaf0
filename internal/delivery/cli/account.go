package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func NewAccount() *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and fund account balances",
	}
	flags.register(cmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "balance [ACCOUNT]",
			Short: "Print an account balance (defaults to --account)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				account := flags.account
				if len(args) == 1 {
					account = args[0]
				}

				balance, err := flags.client().Balance(cmd.Context(), account)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", account, FormatAmount(balance, flags.decimals))
				return nil
			},
		},
		&cobra.Command{
			Use:   "fund ACCOUNT AMOUNT",
			Short: "Mint value into an account (server faucet must be enabled)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid amount %q: %w", args[1], err)
				}

				balance, err := flags.client().Fund(cmd.Context(), args[0], amount)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], FormatAmount(balance, flags.decimals))
				return nil
			},
		},
	)

	return cmd
}
