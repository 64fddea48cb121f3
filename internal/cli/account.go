package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/barterdeck/barterdeck/internal/daemon"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// ─── Account Commands ───────────────────────────────────────────────────────
// Direct store access for operators: create accounts, check balances,
// inspect a transaction's ledger trail. These open the same database
// the daemon uses — run them against a stopped daemon or accept WAL
// coordination.

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userBalanceCmd)
	rootCmd.AddCommand(ledgerCmd)

	userAddCmd.Flags().String("contact", "", "Contact address for payment collection")
	userAddCmd.Flags().Int64("coins", 0, "Starting coin balance")
}

func openStore() (*sqlite.DB, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.StoreDir())
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add USER_ID",
	Short: "Create or update a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contact, _ := cmd.Flags().GetString("contact")
		coins, _ := cmd.Flags().GetInt64("coins")

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.UpsertUser(context.Background(), args[0], contact, coins); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "user %s ready\n", args[0])
		return nil
	},
}

var userBalanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Show a user's coin balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		coins, err := db.Balance(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d coins\n", coins)
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger TXN_ID",
	Short: "Show the ledger trail of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.EntriesByTxn(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stdout, "no ledger entries")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tROLE\tDIR\tSTATUS\tAMOUNT\tBALANCE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
				e.Account, e.DeductionFrom, e.Direction, e.Status, e.Amount, e.Balance)
		}
		return w.Flush()
	},
}
