package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "market-sync",
	Short: "Portfolio market data synchronization backend",
	Long: `A backend that keeps the market data of portfolio holdings fresh.

Features:
• One call refreshes price, volume and change for every stock in a portfolio
• Bounded concurrent quote fetching with per-stock timeouts
• Alpha Vantage and Yahoo Finance quote providers
• Optional Redis quote cache, InfluxDB quote history and NATS sync events
• Uniform {success, data|error} JSON envelope on every endpoint`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
