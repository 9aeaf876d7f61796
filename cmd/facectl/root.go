package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/facelog/internal/config"
	"github.com/your-org/facelog/internal/observability"
	"github.com/your-org/facelog/internal/storage"
)

// Version is the facectl release.
const Version = "0.1.0"

var (
	cfg        *config.Config
	configPath string
	db         *storage.PostgresStore
)

var rootCmd = &cobra.Command{
	Use:           "facectl",
	Short:         "Administer the facelog identity store and detection log",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		observability.SetupLogger(cfg.Logging.Level, "text")

		db, err = storage.NewPostgresStore(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (FACELOG_* env vars and .env are always applied)")
}
