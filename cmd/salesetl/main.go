// Command salesetl runs the sales CSV pipeline: fetch the dataset, clean it,
// split it into customers, products and orders, and load them into Postgres.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesetl/internal/config"
	"github.com/JonMunkholm/salesetl/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errRunFailed signals a failed run whose summary was already printed.
var errRunFailed = errors.New("run failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "salesetl",
		Short: "Batch ETL for the e-commerce sales dataset",
		Long: `salesetl extracts the sales CSV, removes duplicates and invalid rows,
reconciles line and order totals, normalizes the result into customers,
products and orders, and loads them into PostgreSQL in one transaction.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newStatusCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "salesetl", version)
		},
	}
}

// loadConfig reads .env (overwriting existing variables), loads the
// configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}
