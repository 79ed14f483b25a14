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
		Use:          "ammcore",
		Short:        "Constant-product AMM accounting core",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay JSONL commands through the exchange",
		RunE:  runReplay,
	}

	replayCmd.Flags().StringSlice("in", nil, "input command JSONL files (comma-separated, applied in order)")
	replayCmd.Flags().String("journal", "./data/operations.jsonl", "operation journal JSONL path")
	replayCmd.Flags().String("state-file", "", "optional JSON state file for markets and pools")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN (replaces the state file and journal)")
	replayCmd.Flags().Bool("ensure-schema", true, "create Postgres tables if missing")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote swaps, deposits and withdrawals against on-chain balances",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("rpc", "", "EVM RPC URL")
	quoteCmd.Flags().Uint64("block", 0, "block to read balances at, 0 means latest")
	quoteCmd.Flags().String("mint-a", "", "asset A token address")
	quoteCmd.Flags().String("mint-b", "", "asset B token address")
	quoteCmd.Flags().String("reserve-a", "", "account holding reserve A")
	quoteCmd.Flags().String("reserve-b", "", "account holding reserve B")
	quoteCmd.Flags().String("pool-mint", "", "pool share token address")
	quoteCmd.Flags().Uint64("fee-num", 1, "trading fee numerator (fraction of input that prices)")
	quoteCmd.Flags().Uint64("fee-denom", 1, "trading fee denominator")
	quoteCmd.Flags().Uint64("tip-num", 0, "protocol tip numerator")
	quoteCmd.Flags().Uint64("tip-denom", 1, "protocol tip denominator")
	quoteCmd.Flags().Uint64("amount-in", 0, "swap input of asset A")
	quoteCmd.Flags().Uint64("amount-a", 0, "deposit amount of asset A")
	quoteCmd.Flags().Uint64("amount-b", 0, "deposit amount of asset B")
	quoteCmd.Flags().Uint64("burn", 0, "shares to redeem")
	quoteCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	quoteCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate the operation journal into pool window stats",
		RunE:  runStats,
	}

	statsCmd.Flags().String("in", "./data/operations.jsonl", "operation journal JSONL path")
	statsCmd.Flags().String("out", "./data/pool_stats.jsonl", "pool stats JSONL path")
	statsCmd.Flags().String("pg-dsn", "", "Postgres DSN (reads the journal from and writes stats to Postgres)")
	statsCmd.Flags().String("window", "1h", "aggregation window (e.g. 5m, 1h, 24h)")
	statsCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	statsCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	statsCmd.Flags().Int("batch-size", 1000, "batch size for stats writes")
	statsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(statsCmd)

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
