package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ai-content-creator/internal/config"
	"github.com/quinteroac/ai-content-creator/internal/fetcher"
	aicchttp "github.com/quinteroac/ai-content-creator/internal/http"
	"github.com/quinteroac/ai-content-creator/internal/layout"
	"github.com/quinteroac/ai-content-creator/internal/progress"
	"github.com/quinteroac/ai-content-creator/internal/registry"
)

func newPullCmd(global *globalOptions) *cobra.Command {
	var (
		version  string
		override string
	)

	cmd := &cobra.Command{
		Use:   "pull <model-id>",
		Short: "Download one model and exit",
		Long: `Resolve a model identifier against the registry, download its primary
file, and place it in the models directory subtree matching its type.

If the file is already present the command exits successfully without
downloading.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return &configError{err: err}
			}
			return runPull(cfg, args[0], version, override)
		},
	}

	cmd.Flags().StringVar(&version, "version", "",
		"specific model version identifier")
	cmd.Flags().StringVar(&override, "dest", "",
		"subdirectory under the models dir overriding type classification")

	return cmd
}

func runPull(cfg config.Config, identifier, version, override string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientOpts := aicchttp.DefaultOptions()
	clientOpts.RetryAttempts = cfg.Retry.Attempts
	clientOpts.RetryBackoff = cfg.Retry.Backoff
	clientOpts.RetryMaxBackoff = cfg.Retry.MaxBackoff
	client := aicchttp.NewClient(clientOpts)

	resolver := registry.NewResolver(cfg.RegistryURL, client)
	meta, err := resolver.Resolve(ctx, identifier, version, cfg.APIToken)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", identifier, err)
	}

	dest, err := layout.Resolve(cfg.ModelsDir, meta.Type, meta.FileName, override)
	if err != nil {
		return err
	}

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		fmt.Printf("Already present: %s\n", dest)
		return nil
	}

	size := "unknown size"
	if meta.SizeBytes > 0 {
		size = progress.FormatBytes(meta.SizeBytes)
	}
	fmt.Printf("Pulling %s (%s, %s) -> %s\n", meta.DisplayName, meta.FileName, size, dest)

	reporter := progress.NewReporter(progress.Options{
		TotalSize:      meta.SizeBytes,
		Name:           meta.FileName,
		UpdateInterval: cfg.ProgressInterval,
	})
	reporter.Start()
	defer reporter.Stop()

	err = fetcher.New(client).Fetch(ctx, meta.FileURL, dest, fetcher.Options{
		Token: cfg.APIToken,
		OnProgress: func(transferred, total int64) {
			reporter.Update(transferred)
		},
		ProgressInterval: cfg.ProgressInterval,
		StallTimeout:     cfg.StallTimeout,
		RetryAttempts:    cfg.TransferRetries,
		RetryBackoff:     cfg.Retry.Backoff,
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", meta.FileName, err)
	}

	reporter.Stop()
	fmt.Printf("Done: %s\n", dest)
	return nil
}
