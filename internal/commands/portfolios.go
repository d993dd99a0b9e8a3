package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/market-sync/internal/database"
	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/spf13/cobra"
)

var portfoliosCmd = &cobra.Command{
	Use:   "portfolios",
	Short: "Inspect portfolios",
	Long:  "Commands for viewing portfolios and the market data of their stocks",
}

var listPortfoliosCmd = &cobra.Command{
	Use:   "list",
	Short: "List all portfolios",
	RunE: func(cmd *cobra.Command, args []string) error {
		mysqlClient, err := connectStore()
		if err != nil {
			return err
		}
		defer mysqlClient.Close()

		portfolios, err := mysqlClient.ListPortfolios(cmd.Context())
		if err != nil {
			return err
		}

		printPortfolios(os.Stdout, portfolios)
		return nil
	},
}

var showPortfolioCmd = &cobra.Command{
	Use:   "show [portfolio_id]",
	Short: "Show a portfolio with its stocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid portfolio id: %s", args[0])
		}

		mysqlClient, err := connectStore()
		if err != nil {
			return err
		}
		defer mysqlClient.Close()

		portfolio, err := mysqlClient.GetPortfolio(cmd.Context(), id)
		if err != nil {
			return err
		}
		if portfolio == nil {
			return fmt.Errorf("portfolio %d not found", id)
		}

		portfolio.Stocks, err = mysqlClient.GetPortfolioStocks(cmd.Context(), id)
		if err != nil {
			return err
		}

		printPortfolio(os.Stdout, portfolio)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portfoliosCmd)
	portfoliosCmd.AddCommand(listPortfoliosCmd)
	portfoliosCmd.AddCommand(showPortfolioCmd)
}

func connectStore() (*database.MySQLClient, error) {
	cfg, log, err := loadRuntime(config.LoadForDatabase)
	if err != nil {
		return nil, err
	}

	mysqlClient, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return mysqlClient, nil
}

func printPortfolios(w io.Writer, portfolios []*models.Portfolio) {
	fmt.Fprintf(w, "%-8s %-30s %s\n", "ID", "Name", "Updated")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, p := range portfolios {
		fmt.Fprintf(w, "%-8d %-30s %s\n", p.ID, p.Name, p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(w, "\nTotal: %d portfolios\n", len(portfolios))
}

func printPortfolio(w io.Writer, p *models.Portfolio) {
	fmt.Fprintf(w, "Portfolio %d: %s\n\n", p.ID, p.Name)
	fmt.Fprintf(w, "%-10s %12s %12s %10s %14s  %-20s %s\n",
		"Symbol", "Shares", "Price", "Change %", "Value", "As Of", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	var total float64
	for _, s := range p.Stocks {
		asOf := "-"
		if s.PriceAsOf != nil {
			asOf = s.PriceAsOf.Format("2006-01-02 15:04:05")
		}
		source := s.DataSource
		if source == "" {
			source = "-"
		}

		value := s.MarketValue()
		total += value

		fmt.Fprintf(w, "%-10s %12.4f %12.4f %10.2f %14.2f  %-20s %s\n",
			s.Symbol, s.Shares, s.LastPrice, s.ChangePercent, value, asOf, source)
	}

	fmt.Fprintf(w, "\nStocks: %d  Market value: %.2f\n", len(p.Stocks), total)
}
