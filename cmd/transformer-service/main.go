// Command transformer-service consumes transform requests from RabbitMQ,
// converts each input file into a parquet result and reports progress to the
// coordinating service.
//
// Subcommands:
//
//	consume    run the queue worker (default deployment)
//	transform  transform a single file locally and exit
//	migrate    apply the job audit schema and exit
//	jobs       list recorded jobs of a request
//	status     print the cached status of one file
package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	// Sets GOMEMLIMIT from the cgroup memory limit so large tables trigger
	// GC before the OOM killer.
	_ "github.com/KimMachineGun/automemlimit"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pdfme/transformer-service/pkg/config"
	"github.com/pdfme/transformer-service/pkg/transform"
)

func main() {
	root := &cobra.Command{
		Use:           "transformer-service",
		Short:         "Queue driven file transformer",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		},
	}

	root.AddCommand(
		consumeCmd(),
		transformCmd(),
		migrateCmd(),
		jobsCmd(),
		statusCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg))
	return cfg, nil
}

// newTransformer builds the named transformer with the configured input options.
func newTransformer(cfg *config.Config, name string, mem memory.Allocator) (transform.Transformer, error) {
	return transform.New(name, mem,
		transform.WithComma(cfg.Comma()),
		transform.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
	)
}

// newLogger creates a slog.Logger based on the configured log level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
