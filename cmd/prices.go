package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"premiumshop/pkg/shop"

	"github.com/spf13/cobra"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Load prices from the bot backend and print the subscription tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		a, err := newApp("cmd.prices")
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.withTransports(ctx, func(ctx context.Context) error {
			a.store.Init(ctx)
			return nil
		}); err != nil {
			return err
		}

		printStorefront(cmd.OutOrStdout(), a.store)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pricesCmd)
}

func printStorefront(w io.Writer, store *shop.Store) {
	source := "default prices"
	if !store.PricesLoadedAt().IsZero() {
		source = "prices from bot"
	}
	fmt.Fprintf(w, "Telegram Premium (%s)\n", source)

	for _, tier := range store.Tiers() {
		line := fmt.Sprintf("  %-9s  %9s  (official %s)", tier.Name, shop.FormatPrice(tier.Price), shop.FormatPrice(tier.OfficialPrice))
		if savings := tier.SavingsText(); savings != "" {
			line += "  " + savings
		}
		if tier.Popular {
			line += "  [popular]"
		}
		fmt.Fprintln(w, line)
	}

	user := store.User()
	fmt.Fprintf(w, "Bonus balance: %s\n", shop.FormatPrice(int(user.BonusBalance)))
	fmt.Fprintf(w, "Referrals: %d\n", user.ReferralsCount)
	fmt.Fprintf(w, "Referral link: %s\n", store.ReferralLink())
}
