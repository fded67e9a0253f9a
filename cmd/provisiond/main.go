package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ai-content-creator/internal/config"
	"github.com/quinteroac/ai-content-creator/internal/fetcher"
	"github.com/quinteroac/ai-content-creator/internal/registry"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitConfigError   = 3
	ExitResolveError  = 4
	ExitTransferError = 5
)

// globalOptions holds flags common to all commands.
type globalOptions struct {
	ConfigFile  string
	ModelsDir   string
	RegistryURL string
	Token       string
	Verbose     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		return exitCode(err)
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "provisiond",
		Short: "Model provisioning engine",
		Long: `provisiond resolves model identifiers against a registry, downloads
model files, and places them atomically into the directory tree an image
generation backend expects.

Run it as a daemon with "serve", or do a one-shot download with "pull".`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "",
		"path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.ModelsDir, "models-dir", "",
		"root of the models directory tree")
	cmd.PersistentFlags().StringVar(&opts.RegistryURL, "registry-url", "",
		"base URL of the model registry")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "",
		"registry access token")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newPullCmd(opts),
		newCleanupCmd(opts),
	)

	return cmd
}

// loadConfig builds the effective configuration: defaults, then config
// file, then environment, then command-line flags.
func loadConfig(opts *globalOptions) (config.Config, error) {
	cfg := config.Default()

	if opts.ConfigFile != "" {
		fileCfg, err := config.LoadFromFile(opts.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		ModelsDir:   opts.ModelsDir,
		RegistryURL: opts.RegistryURL,
		APIToken:    opts.Token,
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the process logger.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// slogAdapter bridges *slog.Logger to the coordinator's logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(msg string, keysAndValues ...any) { a.l.Debug(msg, keysAndValues...) }
func (a slogAdapter) Info(msg string, keysAndValues ...any)  { a.l.Info(msg, keysAndValues...) }
func (a slogAdapter) Warn(msg string, keysAndValues ...any)  { a.l.Warn(msg, keysAndValues...) }
func (a slogAdapter) Error(msg string, keysAndValues ...any) { a.l.Error(msg, keysAndValues...) }

// exitCode maps an error to a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case isConfigError(err):
		return ExitConfigError
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, registry.ErrNoFiles):
		return ExitResolveError
	case errors.Is(err, fetcher.ErrDiskFull),
		errors.Is(err, fetcher.ErrInterrupted),
		errors.Is(err, fetcher.ErrLocked):
		return ExitTransferError
	default:
		return ExitGeneralError
	}
}

func isConfigError(err error) bool {
	var cerr *configError
	return errors.As(err, &cerr)
}

// configError marks configuration problems so they map to a distinct
// exit code.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }
