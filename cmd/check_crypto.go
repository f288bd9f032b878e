package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var checkCryptoCmd = &cobra.Command{
	Use:   "check-crypto <invoice-id>",
	Short: "Ask the bot backend to check a CryptoBot invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.check_crypto")
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.withTransports(ctx, func(ctx context.Context) error {
			if err := a.store.CheckCryptoPayment(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Payment check requested for %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(checkCryptoCmd)
}
