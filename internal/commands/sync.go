package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/market-sync/internal/app"
	"github.com/market-sync/pkg/config"
	"github.com/spf13/cobra"
)

var syncPortfolioID int64

// syncCmd refreshes one portfolio from the command line
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh a portfolio's market data once",
	Long: `Fetch fresh quotes for every stock of a portfolio, persist them and print
the sync result as JSON. Exits non-zero when the portfolio does not exist or
every stock failed.

Examples:
  market-sync sync --portfolio 1
  market-sync sync --portfolio 1 --verbose`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Int64VarP(&syncPortfolioID, "portfolio", "P", 0, "Portfolio ID to synchronize")
	syncCmd.MarkFlagRequired("portfolio")
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncPortfolioID <= 0 {
		return fmt.Errorf("invalid portfolio id: %d", syncPortfolioID)
	}

	cfg, log, err := loadRuntime(config.Load)
	if err != nil {
		return err
	}

	application := app.New(cfg, log)
	if err := application.Initialize(); err != nil {
		return err
	}
	defer application.Stop()

	ctx := application.GetContext()

	portfolio, err := application.GetMySQL().GetPortfolio(ctx, syncPortfolioID)
	if err != nil {
		return fmt.Errorf("failed to get portfolio: %w", err)
	}
	if portfolio == nil {
		return errors.New("portfolio not found")
	}

	result, syncErr := application.GetSynchronizer().SyncPortfolio(ctx, syncPortfolioID)
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to print result: %w", err)
		}
	}

	return syncErr
}
