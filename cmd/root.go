/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var dryRun bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "premiumshop",
	Short: "Telegram Premium storefront backend bridge",
	Long: `PremiumShop runs the storefront side of a Telegram Mini-App that sells
Telegram Premium subscriptions. It talks to the bot backend through a
request/response bridge over a one-way host transport.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "use the in-process loopback transport with a canned backend")
}
