package cli

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/tentens-tech/rental-deposit/internal/application"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/delivery/client"
)

const (
	DefaultServerURL = "http://localhost:8080"
	DefaultDecimals  = 18
)

type clientFlags struct {
	server   string
	account  string
	decimals int32
}

func (f *clientFlags) register(cmd *cobra.Command) {
	server := DefaultServerURL
	if value, ok := os.LookupEnv("RENTAL_DEPOSIT_SERVER_URL"); ok {
		server = value
	}

	cmd.PersistentFlags().StringVar(&f.server, "server", server, "rental-deposit server URL")
	cmd.PersistentFlags().StringVar(&f.account, "account", os.Getenv("RENTAL_DEPOSIT_ACCOUNT"), "caller account identity")
	cmd.PersistentFlags().Int32Var(&f.decimals, "decimals", DefaultDecimals, "decimals used to display amounts")
}

func (f *clientFlags) client() *client.Client {
	return client.New(f.server, f.account)
}

func NewLease() *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Manage escrowed lease deposits",
	}
	flags.register(cmd)

	cmd.AddCommand(
		newLeaseCreate(flags),
		newLeaseAction(flags, "approve", "Approve the deposit return (landlord)", (*client.Client).ApproveDepositReturn),
		newLeaseAction(flags, "withdraw", "Withdraw the deposit after the term ended (landlord)", (*client.Client).WithdrawDeposit),
		newLeaseAction(flags, "return", "Reclaim the approved deposit after the term ended (tenant)", (*client.Client).ReturnDeposit),
		newLeaseShow(flags),
		newLeaseList(flags),
		newLeaseCount(flags),
	)

	return cmd
}

func newLeaseCreate(flags *clientFlags) *cobra.Command {
	var (
		landlord string
		deposit  uint64
		value    uint64
		start    string
		end      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a lease and lock its deposit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDate, err := parseDate(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endDate, err := parseDate(end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			if !cmd.Flags().Changed("value") {
				value = deposit
			}

			leaseID, err := flags.client().CreateLease(cmd.Context(), application.CreateLeaseRequest{
				Landlord:      escrow.Account(landlord),
				DepositAmount: deposit,
				StartDate:     startDate,
				EndDate:       endDate,
				AttachedValue: value,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Lease %d created\n", leaseID)
			return nil
		},
	}

	cmd.Flags().StringVar(&landlord, "landlord", "", "landlord account")
	cmd.Flags().Uint64Var(&deposit, "deposit", 0, "deposit amount in the smallest currency unit")
	cmd.Flags().Uint64Var(&value, "value", 0, "value attached to the call (defaults to --deposit)")
	cmd.Flags().StringVar(&start, "start", "", "term start, RFC3339 or unix seconds")
	cmd.Flags().StringVar(&end, "end", "", "term end, RFC3339 or unix seconds")
	_ = cmd.MarkFlagRequired("landlord")
	_ = cmd.MarkFlagRequired("deposit")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func newLeaseAction(flags *clientFlags, use, short string, action func(*client.Client, context.Context, uint64) (escrow.Lease, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " LEASE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leaseID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lease id %q: %w", args[0], err)
			}

			lease, err := action(flags.client(), cmd.Context(), leaseID)
			if err != nil {
				return err
			}

			return printLeases(cmd.OutOrStdout(), flags.decimals, lease)
		},
	}
}

func newLeaseShow(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show LEASE_ID",
		Short: "Show one lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leaseID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lease id %q: %w", args[0], err)
			}

			lease, err := flags.client().LeaseDetails(cmd.Context(), leaseID)
			if err != nil {
				return err
			}

			return printLeases(cmd.OutOrStdout(), flags.decimals, lease)
		},
	}
}

func newLeaseList(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every lease",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			leases, err := flags.client().ListLeases(cmd.Context())
			if err != nil {
				return err
			}

			return printLeases(cmd.OutOrStdout(), flags.decimals, leases...)
		},
	}
}

func newLeaseCount(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of leases ever created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			count, err := flags.client().LeaseCount(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func printLeases(out io.Writer, decimals int32, leases ...escrow.Lease) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLANDLORD\tTENANT\tDEPOSIT\tSTART\tEND\tACTIVE\tAPPROVED")
	for _, lease := range leases {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
			lease.ID,
			lease.Landlord,
			lease.Tenant,
			FormatAmount(lease.DepositAmount, decimals),
			formatDate(lease.StartDate),
			formatDate(lease.EndDate),
			lease.IsActive,
			lease.LandlordApproved,
		)
	}
	return w.Flush()
}

// FormatAmount renders a smallest-unit amount in whole units.
func FormatAmount(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}

func formatDate(seconds uint64) string {
	return time.Unix(int64(seconds), 0).UTC().Format(time.RFC3339)
}

func parseDate(value string) (uint64, error) {
	if seconds, err := strconv.ParseUint(value, 10, 64); err == nil {
		return seconds, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, err
	}
	if t.Unix() < 0 {
		return 0, fmt.Errorf("date %v is before the unix epoch", value)
	}
	return uint64(t.Unix()), nil
}
