package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/config"
	"github.com/your-org/punchclock/internal/observability"
	"github.com/your-org/punchclock/internal/registry"
	"github.com/your-org/punchclock/internal/storage"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Administer a punchclock station",
	Long: `kiosk manages the identity registry and prints attendance reports
straight from the configured storage backend, without the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		observability.SetupLogger(cfg.Logging.Level, "text")
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// openBackend loads the registry and ledger from the configured store.
func openBackend(ctx context.Context) (*registry.Registry, *attendance.Ledger, func(), error) {
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}
	reg, err := registry.New(ctx, store)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	loc, err := cfg.Attendance.Location()
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	ledger, err := attendance.NewLedger(ctx, store, attendance.Options{
		DuplicateWindow: cfg.Attendance.DuplicateWindow,
		Location:        loc,
	})
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return reg, ledger, closeStore, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), time.Minute)
}
