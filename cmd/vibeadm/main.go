// Command vibeadm is the operator CLI: seed sample data, reconcile stored
// aggregates and smoke-test the sentiment model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vibecheck/internal/adapters/observability"
	"vibecheck/internal/domain"
	"vibecheck/internal/shared"
	"vibecheck/internal/storage"
)

var (
	verbose bool
	cfg     shared.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "vibeadm",
	Short:         "VibeCheck operator tools",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = shared.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		log.Logger = observability.NewLogger("dev", level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(classifyCmd)
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, fn func(domain.Repository) error) error {
	repo, closeDB, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(repo)
}
