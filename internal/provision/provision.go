package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/quinteroac/ai-content-creator/internal/config"
	"github.com/quinteroac/ai-content-creator/internal/fetcher"
	"github.com/quinteroac/ai-content-creator/internal/jobstore"
	"github.com/quinteroac/ai-content-creator/internal/layout"
	"github.com/quinteroac/ai-content-creator/internal/progress"
	"github.com/quinteroac/ai-content-creator/internal/registry"
)

var (
	// ErrEmptyIdentifier is returned by Submit when no model identifier
	// was given.
	ErrEmptyIdentifier = errors.New("provision: model identifier is required")

	// ErrInvalidIdentifier is returned by Submit when an identifier is not
	// a registry ID. Identifiers go straight into the registry URL path, so
	// anything non-numeric is rejected before the network call.
	ErrInvalidIdentifier = errors.New("provision: model identifier must be numeric")

	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("provision: coordinator is closed")
)

// Logger is the interface for diagnostic logging.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// Resolver translates a model identifier into transfer metadata.
type Resolver interface {
	Resolve(ctx context.Context, identifier, versionIdentifier, accessToken string) (registry.Metadata, error)
}

// Transferrer streams a URL to a destination path.
type Transferrer interface {
	Fetch(ctx context.Context, url, dest string, opts fetcher.Options) error
}

// Coordinator owns the provisioning lifecycle: it resolves identifiers,
// classifies destinations, coalesces concurrent requests for the same
// destination, and drives transfers to a terminal job state.
type Coordinator struct {
	cfg      config.Config
	resolver Resolver
	fetch    Transferrer
	store    *jobstore.Store

	// logger receives diagnostic messages. May be nil.
	logger Logger

	mu           sync.Mutex
	activeByDest map[string]string
	cancelByJob  map[string]context.CancelFunc
	closed       bool
	wg           sync.WaitGroup
}

// New creates a Coordinator. It removes orphaned temp files left under
// the models directory by a previous run before accepting work.
func New(cfg config.Config, resolver Resolver, fetch Transferrer, store *jobstore.Store, logger Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	removed, err := fetcher.CleanupOrphans(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("clean up orphaned temp files: %w", err)
	}
	if removed > 0 && logger != nil {
		logger.Info("removed orphaned temp files", "count", removed)
	}

	return &Coordinator{
		cfg:          cfg,
		resolver:     resolver,
		fetch:        fetch,
		store:        store,
		logger:       logger,
		activeByDest: make(map[string]string),
		cancelByJob:  make(map[string]context.CancelFunc),
	}, nil
}

// Submit provisions a model. It resolves the identifier against the
// registry, classifies the destination, and either starts a transfer,
// joins an in-flight one for the same destination, or skips when the
// file is already present. The returned job snapshot carries the ID to
// poll; resolution failures surface as a job in the failed state rather
// than an error. An error is returned only for invalid input or a
// closed coordinator.
func (c *Coordinator) Submit(ctx context.Context, req jobstore.Request) (jobstore.Job, error) {
	if req.Identifier == "" && req.VersionIdentifier == "" {
		return jobstore.Job{}, ErrEmptyIdentifier
	}
	if err := validIdentifier(req.Identifier); err != nil {
		return jobstore.Job{}, err
	}
	if err := validIdentifier(req.VersionIdentifier); err != nil {
		return jobstore.Job{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return jobstore.Job{}, ErrClosed
	}
	c.mu.Unlock()

	token := req.AccessToken
	if token == "" {
		token = c.cfg.APIToken
	}

	meta, err := c.resolver.Resolve(ctx, req.Identifier, req.VersionIdentifier, token)
	if err != nil {
		job := c.store.Create(req, "", jobstore.StateResolving)
		c.store.Fail(job.ID, err)
		if c.logger != nil {
			c.logger.Warn("resolution failed", "identifier", req.Identifier, "error", err)
		}
		return c.snapshot(job.ID)
	}

	destPath, err := layout.Resolve(c.cfg.ModelsDir, meta.Type, meta.FileName, req.DestinationOverride)
	if err != nil {
		return jobstore.Job{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return jobstore.Job{}, ErrClosed
	}

	// Coalesce: one transfer per destination, late callers join it.
	if id, ok := c.activeByDest[destPath]; ok {
		return c.snapshot(id)
	}

	if present(destPath) {
		job := c.store.Create(req, destPath, jobstore.StateSkippedAlreadyExists)
		if c.logger != nil {
			c.logger.Debug("destination already present", "path", destPath)
		}
		return job, nil
	}

	job := c.store.Create(req, destPath, jobstore.StateResolving)
	c.store.SetProgress(job.ID, 0, meta.SizeBytes)

	jobCtx, cancel := context.WithCancel(context.Background())
	c.activeByDest[destPath] = job.ID
	c.cancelByJob[job.ID] = cancel

	c.wg.Add(1)
	go c.run(jobCtx, job.ID, meta, destPath, token)

	return c.snapshot(job.ID)
}

// Status returns the current snapshot of a job.
func (c *Coordinator) Status(id string) (jobstore.Job, error) {
	return c.store.Get(id)
}

// Cancel stops an in-flight job. Cancelling a job that already reached
// a terminal state is a no-op.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	cancel, active := c.cancelByJob[id]
	c.mu.Unlock()

	if active {
		cancel()
		return nil
	}

	_, err := c.store.Get(id)
	return err
}

// Close cancels all in-flight jobs and waits for their goroutines to
// finish. Subsequent Submits fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, cancel := range c.cancelByJob {
		cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// run drives one transfer to a terminal state.
func (c *Coordinator) run(ctx context.Context, jobID string, meta registry.Metadata, destPath, token string) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.activeByDest, destPath)
		if cancel, ok := c.cancelByJob[jobID]; ok {
			cancel()
			delete(c.cancelByJob, jobID)
		}
		c.mu.Unlock()
	}()

	c.store.SetState(jobID, jobstore.StateTransferring)
	if c.logger != nil {
		c.logger.Info("transfer started",
			"job", jobID, "name", meta.DisplayName, "path", destPath)
	}

	onProgress := progress.Func(func(transferred, total int64) {
		c.store.SetProgress(jobID, transferred, total)
	})

	err := c.fetch.Fetch(ctx, meta.FileURL, destPath, fetcher.Options{
		Token:            token,
		OnProgress:       onProgress,
		ProgressInterval: c.cfg.ProgressInterval,
		StallTimeout:     c.cfg.StallTimeout,
		RetryAttempts:    c.cfg.TransferRetries,
		RetryBackoff:     c.cfg.Retry.Backoff,
	})

	switch {
	case err == nil:
		c.store.Complete(jobID)
		if c.logger != nil {
			c.logger.Info("transfer completed", "job", jobID, "path", destPath)
		}
	case errors.Is(err, context.Canceled):
		c.store.Cancel(jobID, err)
		if c.logger != nil {
			c.logger.Info("transfer cancelled", "job", jobID)
		}
	default:
		c.store.Fail(jobID, err)
		if c.logger != nil {
			c.logger.Error("transfer failed", "job", jobID, "error", err)
		}
	}
}

// snapshot reads back a job, tolerating the race where it was already
// swept from the store.
func (c *Coordinator) snapshot(id string) (jobstore.Job, error) {
	job, err := c.store.Get(id)
	if err != nil {
		return jobstore.Job{}, err
	}
	return job, nil
}

// validIdentifier accepts empty (optional field) or all-digit strings.
func validIdentifier(s string) error {
	for _, r := range s {
		if r < '0' || r > '9' {
			return ErrInvalidIdentifier
		}
	}
	return nil
}

// present reports whether a non-empty file exists at path. Empty files
// do not count: an interrupted run must not mask a real transfer.
func present(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
