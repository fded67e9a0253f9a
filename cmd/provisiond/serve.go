package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ai-content-creator/internal/config"
	"github.com/quinteroac/ai-content-creator/internal/fetcher"
	aicchttp "github.com/quinteroac/ai-content-creator/internal/http"
	"github.com/quinteroac/ai-content-creator/internal/jobstore"
	"github.com/quinteroac/ai-content-creator/internal/provision"
	"github.com/quinteroac/ai-content-creator/internal/registry"
	"github.com/quinteroac/ai-content-creator/internal/server"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the provisioning daemon",
		Long: `Start the HTTP API and serve provisioning requests until interrupted.

Orphaned temp files from a previous run are removed at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return &configError{err: err}
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServe(cfg, global.Verbose)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "",
		"address to listen on (default from config, :8085)")

	return cmd
}

func runServe(cfg config.Config, verbose bool) error {
	logger := newLogger(verbose)

	coord, err := buildCoordinator(cfg, slogAdapter{l: logger})
	if err != nil {
		return err
	}
	defer coord.Close()

	srv := server.New(cfg.ListenAddr, coord)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "models_dir", cfg.ModelsDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildCoordinator wires the full provisioning stack from config.
func buildCoordinator(cfg config.Config, logger provision.Logger) (*provision.Coordinator, error) {
	clientOpts := aicchttp.DefaultOptions()
	clientOpts.RetryAttempts = cfg.Retry.Attempts
	clientOpts.RetryBackoff = cfg.Retry.Backoff
	clientOpts.RetryMaxBackoff = cfg.Retry.MaxBackoff
	client := aicchttp.NewClient(clientOpts)

	resolver := registry.NewResolver(cfg.RegistryURL, client)
	store := jobstore.New(cfg.JobRetention)

	return provision.New(cfg, resolver, fetcher.New(client), store, logger)
}
