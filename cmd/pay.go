package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"premiumshop/pkg/shop"

	"github.com/spf13/cobra"
)

var (
	payPeriod         string
	payMethod         string
	payScreenshot     string
	payScreenshotType string
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Open a checkout for a subscription and optionally submit a payment screenshot",
	Long: `Loads prices, selects a subscription and prints what the payment page shows
for the chosen method. For yoomoney and sbp, --screenshot sends the proof of
transfer to the bot backend for review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		method, err := shop.ParseMethod(payMethod)
		if err != nil {
			return err
		}

		shot, err := readScreenshot(payScreenshot, payScreenshotType)
		if err != nil {
			return err
		}
		if shot != nil && !method.TakesScreenshot() {
			return fmt.Errorf("%w: %s", shop.ErrScreenshotMethod, method)
		}

		a, err := newApp("cmd.pay")
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.withTransports(ctx, func(ctx context.Context) error {
			a.store.Init(ctx)

			if _, err := a.store.SelectTier(shop.Period(strings.TrimSpace(payPeriod))); err != nil {
				return err
			}

			checkout, err := a.store.Checkout(method)
			if err != nil {
				return err
			}
			printCheckout(cmd.OutOrStdout(), checkout)

			if shot == nil {
				return nil
			}
			if err := a.store.SubmitScreenshot(ctx, checkout.Order, *shot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Screenshot %s (%s) sent for review\n", shot.Name, shop.FormatFileSize(int64(len(shot.Data))))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(payCmd)
	payCmd.Flags().StringVar(&payPeriod, "period", string(shop.PeriodTwelveMonths), "subscription period: 3months, 6months or 12months")
	payCmd.Flags().StringVarP(&payMethod, "method", "m", "", "payment method: yoomoney, sbp, cryptobot or cloudtips")
	payCmd.Flags().StringVar(&payScreenshot, "screenshot", "", "path to the payment screenshot (yoomoney and sbp)")
	payCmd.Flags().StringVar(&payScreenshotType, "screenshot-type", "", "screenshot content type; sniffed when empty")
	_ = payCmd.MarkFlagRequired("method")
}

// readScreenshot returns nil when no path is given.
func readScreenshot(path string, contentType string) (*shop.Screenshot, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	if info.Size() > shop.MaxScreenshotSize {
		return nil, shop.ErrScreenshotTooBig
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}

	shot := &shop.Screenshot{Name: filepath.Base(path), ContentType: contentType, Data: data}
	if err := shot.Validate(); err != nil {
		return nil, err
	}
	return shot, nil
}

func printCheckout(w io.Writer, checkout shop.Checkout) {
	order := checkout.Order
	fmt.Fprintf(w, "Order #%d: %s for %s via %s\n", order.ID, order.Tier.Name, shop.FormatPrice(order.Amount()), order.Method)

	switch order.Method {
	case shop.MethodYooMoney:
		fmt.Fprintf(w, "YooMoney wallet: %s\n", checkout.Requisites.Wallet)
		fmt.Fprintf(w, "Comment: order #%d\n", order.ID)
	case shop.MethodSBP:
		fmt.Fprintf(w, "SBP phone: %s\n", checkout.Requisites.Phone)
		if checkout.Requisites.Receiver != "" {
			fmt.Fprintf(w, "Receiver: %s\n", checkout.Requisites.Receiver)
		}
	case shop.MethodCryptoBot:
		if checkout.Invoice != nil {
			fmt.Fprintf(w, "Invoice: %s (%s USDT)\n", checkout.Invoice.ID, checkout.Invoice.AmountUSDT)
		}
		fmt.Fprintf(w, "Pay: %s\n", checkout.PayURL)
	case shop.MethodCloudTips:
		fmt.Fprintf(w, "Pay: %s\n", checkout.PayURL)
	}
}
