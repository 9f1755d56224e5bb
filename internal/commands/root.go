// Package commands wires the statement importer CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/pkg/config"
	"github.com/FACorreiaa/statement-import/pkg/observability"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
	metrics    bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "importer",
		Short:   "Import bank and card statements as categorized transactions",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "serve Prometheus metrics while running")

	rootCmd.AddCommand(newProcessCommand(opts))
	rootCmd.AddCommand(newConfirmCommand(opts))
	rootCmd.AddCommand(newMigrateCommand(opts))

	return rootCmd
}

// session is the configuration and logger one command runs with.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	// stop shuts down the metrics server, if one was started.
	stop func()
}

// load resolves the configuration and builds a JSON logger writing to w.
// The metrics server, when enabled, stops with ctx or on session.stop.
func (o *rootOptions) load(ctx context.Context, w io.Writer) (*session, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.metrics {
		cfg.Metrics.Enabled = true
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	s := &session{cfg: cfg, logger: logger, stop: func() {}}
	if cfg.Metrics.Enabled {
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			runMetricsServer(ctx, cfg, logger)
		}()
		s.stop = func() {
			cancel()
			<-done
		}
	}
	return s, nil
}

// runMetricsServer serves /metrics on a separate port until ctx is done
func runMetricsServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	addr := fmt.Sprintf("localhost:%d", cfg.Metrics.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("metrics server started", "addr", addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
}
