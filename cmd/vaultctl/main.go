package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityVault/internal/vaultabi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vaultctl",
		Short:        "Liquidity vault simulator, signer and log pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted open/swap/collect/close scenario and write its logs",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().Uint("fee-bps", 30, "swap fee in basis points (max 100)")
	simulateCmd.Flags().String("token0", "", "token0 address")
	simulateCmd.Flags().String("token1", "", "token1 address")
	simulateCmd.Flags().String("factory", "", "factory address used to derive the vault address")
	simulateCmd.Flags().String("vault-address", "", "pin the vault to this address")
	simulateCmd.Flags().Uint64("chain-id", 1337, "chain id stamped on emitted logs")
	simulateCmd.Flags().Uint64("start-block", 1, "first block number")
	simulateCmd.Flags().String("out", "./data/sim_logs.jsonl", "output raw logs JSONL")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a sell order for the vault",
		RunE:  runSign,
	}

	signCmd.Flags().String("key", "", "hex private key (prefer VAULT_KEY)")
	signCmd.Flags().String("sell-token", "", "token sold")
	signCmd.Flags().String("buy-token", "", "token bought")
	signCmd.Flags().String("sell-amount", "", "exact sell amount")
	signCmd.Flags().String("min-buy", "0", "minimum accepted buy amount")
	signCmd.Flags().String("valid-to", "10m", "deadline (unix seconds, RFC3339, or duration from now)")
	signCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(signCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Fetch vault and factory logs over RPC",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().StringSlice("address", nil, "vault and factory addresses (comma-separated); \"factory\" selects the deployed factory")
	indexCmd.Flags().StringSlice("topic0", nil, "topic0 hashes or event names (comma-separated), defaults to vault events")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed vault events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "optional RPC URL for vault metadata lookups")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Project typed events into vault and position tables",
		RunE:  runProject,
	}

	projectCmd.Flags().String("in", "", "input typed events JSONL")
	projectCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	projectCmd.Flags().Uint64("chain-id", 0, "chain id used to load existing rows on resume")
	projectCmd.Flags().String("factory", vaultabi.DeployedFactory, "factory address recorded on vault rows")
	projectCmd.Flags().Int("batch-size", 1000, "events per DB flush")
	projectCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	projectCmd.Flags().String("state-name", "projector", "cursor name in projector_state")
	projectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(projectCmd)

	return root
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
