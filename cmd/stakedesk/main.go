package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "stakedesk",
		Short:        "LP staking desk for EVM testnets",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("contract", "", "staking contract address")
	root.PersistentFlags().String("wallet-kind", "keystore", "wallet kind (keystore, walletconnect)")
	root.PersistentFlags().String("keystore-dir", "./data/keystore", "keystore directory")
	root.PersistentFlags().String("keystore-password", "", "keystore passphrase")
	root.PersistentFlags().String("bridge-url", "", "walletconnect bridge websocket url")
	root.PersistentFlags().String("state-dir", "./data/state", "durable state directory")
	root.PersistentFlags().String("postgres-dsn", "", "optional Postgres DSN for durable state")
	root.PersistentFlags().Int64("chain-id", 0, "target chain id (defaults to the first configured network)")

	root.AddCommand(
		newConnectCmd(),
		newDisconnectCmd(),
		newStatusCmd(),
		newPairsCmd(),
		newStakeCmd(),
		newUnstakeCmd(),
		newClaimCmd(),
		newActionsCmd(),
		newExecuteCmd(),
		newNetworkCmd(),
		newWatchCmd(),
	)

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
