// Package cli implements the seqctl commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"seqnum/internal/app"
	"seqnum/internal/infrastructure/storage"
	"seqnum/pkg/logger"
)

// NewRootCmd creates the seqctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "seqctl",
		Short: "Inspect and check sequence number configuration and data",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				log, err := logger.New(logger.Config{Level: "debug", Development: true})
				if err != nil {
					return err
				}
				logger.SetDefault(log)
			} else {
				logger.SetDefault(logger.Nop())
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.Bool("verbose", false, "Enable debug logging")
	flags.String("config", os.Getenv("SEQUENCES_CONFIG"), "Sequences YAML file")
	flags.String("driver", envOr("DB_DRIVER", storage.DriverPostgres), "Database driver: postgres | sqlite | memory")
	flags.String("dsn", os.Getenv("DATABASE_URL"), "Database connection string")
	flags.String("format", "text", "Output format: text | json")

	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewVerifyCmd())
	root.AddCommand(NewNextCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewTokenCmd())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openApp opens the configured backend for commands that read data.
// opts adjust the storage configuration built from the flags.
func openApp(ctx context.Context, cmd *cobra.Command, opts ...func(*storage.Config)) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, exitError(exitValidation, "--config (or SEQUENCES_CONFIG) is required")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, exitError(exitFileNotFound, "file not found: %s", path)
	}

	cfg := storage.DefaultConfig()
	cfg.Driver, _ = cmd.Flags().GetString("driver")
	cfg.DSN, _ = cmd.Flags().GetString("dsn")
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := app.New(ctx, app.Config{SequencesFile: path, Storage: cfg})
	if err != nil {
		return nil, exitError(exitRuntime, "%s", err)
	}
	return a, nil
}

func wantJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("format")
	return format == "json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
