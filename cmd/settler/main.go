package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "settler",
		Short:        "NAV accrual and redemption settlement engine",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("store", "postgres", "ledger store (postgres, memory)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("rpc", "", "EVM RPC URL")
	flags.String("execution-mode", "mock", "chain execution mode (mock, live)")
	flags.String("relayer-key", "", "relayer private key (hex)")
	flags.String("pool-contract", "", "pool contract address")
	flags.Uint64("chain-id", 0, "expected chain id, 0 means take it from the RPC")
	flags.Uint64("receipt-confirmations", 1, "blocks to wait after inclusion")
	flags.Duration("exec-timeout", 2*time.Minute, "per-entry chain execution timeout")
	flags.Duration("swap-stale-after", 30*time.Minute, "age after which live swap requests are stale")
	flags.Duration("processing-stale-after", 15*time.Minute, "age after which PROCESSING entries are reconciled")
	flags.Int("settlement-batch-size", 10, "maximum entries settled per cycle")
	flags.Int64("management-fee-bps", 200, "default annual management fee in basis points")
	flags.Duration("fee-interval", 24*time.Hour, "fee period length")
	flags.String("results-out", "", "optional JSONL file for settlement results")
	flags.Int("max-retries", 5, "maximum retry attempts for receipt lookups")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the NAV, fee and settlement timers",
		RunE:  runServe,
	}
	runCmd.Flags().Duration("nav-interval", time.Hour, "NAV accrual interval")
	runCmd.Flags().Duration("settlement-interval", time.Hour, "settlement cycle interval")
	runCmd.Flags().Bool("nav-enabled", true, "enable the NAV timer")
	runCmd.Flags().Bool("fee-enabled", true, "enable the fee timer")
	runCmd.Flags().Bool("settlement-enabled", true, "enable the settlement timer")
	runCmd.Flags().Bool("run-on-start", true, "run each enabled job once at startup")
	runCmd.Flags().String("run-state", "", "optional JSON file for job run metadata")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "nav",
		Short: "Accrue NAV for all active pools once",
		RunE:  runNav,
	})
	root.AddCommand(&cobra.Command{
		Use:   "fees",
		Short: "Accrue management fees for the current period",
		RunE:  runFees,
	})
	root.AddCommand(&cobra.Command{
		Use:   "settle",
		Short: "Run one settlement cycle",
		RunE:  runSettle,
	})
	root.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Resolve redemptions left PROCESSING",
		RunE:  runReconcile,
	})
	root.AddCommand(&cobra.Command{
		Use:   "cleanup-swaps",
		Short: "Mark abandoned swap requests stale",
		RunE:  runCleanupSwaps,
	})
	root.AddCommand(&cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Return a FAILED redemption to the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runRetry,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply ledger schema migrations",
		RunE:  runMigrate,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
