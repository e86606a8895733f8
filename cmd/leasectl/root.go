package main

import (
	"fmt"
	"os"

	"github.com/leaseforge/lease-engine/config"
	"github.com/leaseforge/lease-engine/logger"
	"github.com/leaseforge/lease-engine/store/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "0.3.0"

var (
	envFile  string
	cfg      *config.Config
	log      = zerolog.Nop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "leasectl",
	Short: "Lease contract calculator, billing API and admin tools",
	Long: `leasectl runs the lease engine API and the back-office tasks around it.

Contract forms are recalculated the same way everywhere: rent per month and
per year, rent-free deductions, tax, totals and the installment schedule.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = c

		l, closer, err := logger.Setup(logger.LogConfig{
			Level:  c.Log.Level,
			Format: c.Log.Format,
			Output: c.Log.Output,
		})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		log, closeLog = l, closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to load before reading the environment")
}

// openStore opens the configured database. dbFlag overrides DB_PATH.
func openStore(dbFlag string) (*sqlite.Store, error) {
	path := cfg.Database.Path
	if dbFlag != "" {
		path = dbFlag
	}
	store, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("database opened")
	return store, nil
}
