package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"premiumshop/pkg/gateway"
	"premiumshop/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront bridge with health, readiness and metrics endpoints",
	Long:  "Runs the host transports, keeps prices fresh from the bot backend and serves /healthz, /readyz, /metrics and /bridge/inbound.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		a, err := newApp("cmd.serve")
		if err != nil {
			return err
		}
		defer a.close()

		gin.SetMode(gin.ReleaseMode)

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(a.cfg, a.bus, a.store, metrics.New(), a.transports, a.log)
		if err != nil {
			a.log.Error("Failed to initialize gateway service", "error", err)
			return err
		}

		userID, _ := a.session.UserID()
		a.log.Info("Storefront started", "transports", enabledTransportNames(a.transports), "user_id", userID, "timeout", a.bridge.Timeout())
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			a.log.Error("Storefront runtime failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
