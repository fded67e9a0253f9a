package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	aicchttp "github.com/quinteroac/ai-content-creator/internal/http"
	"github.com/quinteroac/ai-content-creator/internal/progress"
)

// partialSuffix marks in-flight temp files. They live next to the final
// destination so the finalize step is a same-filesystem rename.
const partialSuffix = ".partial"

// copyBufferSize is the read-chunk size. Cancellation and stall detection
// operate at this granularity.
const copyBufferSize = 256 * 1024

// Common errors.
var (
	// ErrDiskFull indicates the destination filesystem ran out of space.
	// Fatal: the transfer is not retried.
	ErrDiskFull = errors.New("fetcher: disk full")

	// ErrInterrupted indicates the stream broke mid-transfer. Retried
	// from byte zero up to the configured attempt bound.
	ErrInterrupted = errors.New("fetcher: transfer interrupted")

	// ErrLocked indicates another process is already transferring to the
	// same destination.
	ErrLocked = errors.New("fetcher: destination locked by another process")
)

// Options configures a single fetch.
type Options struct {
	// Token is an optional bearer token for the file host.
	Token string

	// OnProgress receives throttled progress updates. May be nil.
	OnProgress progress.Func

	// ProgressInterval bounds the progress emission rate.
	// Default: 500ms
	ProgressInterval time.Duration

	// StallTimeout is the maximum time to wait for a single read before
	// declaring the connection stalled. Applies per read, not to the
	// whole transfer.
	// Default: 30s
	StallTimeout time.Duration

	// RetryAttempts is how many times a broken transfer is restarted
	// from byte zero before surfacing the failure.
	// Default: 2
	RetryAttempts int

	// RetryBackoff is the pause between restart attempts.
	// Default: 1s
	RetryBackoff time.Duration
}

// Fetcher performs streaming transfers into the models directory.
type Fetcher struct {
	client *aicchttp.Client
}

// New creates a Fetcher that transfers over the given HTTP client.
func New(client *aicchttp.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads url into dest. The transfer streams into a colocated
// temp file and becomes visible at dest only through an atomic rename
// after the full body arrived. On any failure or cancellation the temp
// file is removed; nothing is ever left at dest.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, opts Options) error {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 30 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	tempPath := TempPath(dest)

	var lastErr error
	for attempt := 0; attempt <= opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.RetryBackoff):
			}
		}

		err := f.attempt(ctx, url, tempPath, dest, opts)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("transfer failed after %d attempts: %w", opts.RetryAttempts+1, lastErr)
}

// attempt performs one full transfer from byte zero. The temp file never
// survives a failed attempt.
func (f *Fetcher) attempt(ctx context.Context, url, tempPath, dest string, opts Options) (err error) {
	temp, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := lockExclusive(temp); err != nil {
		temp.Close()
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}

	defer func() {
		if err != nil {
			unlock(temp)
			temp.Close()
			os.Remove(tempPath)
		}
	}()

	stream, err := f.client.Open(ctx, url, opts.Token)
	if err != nil {
		return err
	}
	defer stream.Body.Close()
	defer stream.Cancel()

	total := stream.ContentLength
	meter := progress.NewMeter(opts.OnProgress, opts.ProgressInterval)

	// Stall watchdog: aborts the request when a single read takes longer
	// than the configured timeout. Reset on every read.
	var stalled atomic.Bool
	watchdog := time.AfterFunc(opts.StallTimeout, func() {
		stalled.Store(true)
		stream.Cancel()
	})
	defer watchdog.Stop()

	var written int64
	buf := make([]byte, copyBufferSize)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, readErr := stream.Body.Read(buf)
		watchdog.Reset(opts.StallTimeout)

		if n > 0 {
			if _, writeErr := temp.Write(buf[:n]); writeErr != nil {
				return classifyWriteError(writeErr)
			}
			written += int64(n)
			meter.Update(written, total)
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stalled.Load() {
				return fmt.Errorf("%w: stalled after %s", ErrInterrupted, opts.StallTimeout)
			}
			return fmt.Errorf("%w: %v", ErrInterrupted, readErr)
		}
	}

	if total > 0 && written != total {
		return fmt.Errorf("%w: got %d of %d bytes", ErrInterrupted, written, total)
	}

	if err := temp.Sync(); err != nil {
		return classifyWriteError(err)
	}
	unlock(temp)
	if err := temp.Close(); err != nil {
		return classifyWriteError(err)
	}

	// The only operation that makes the artifact visible.
	if err := os.Rename(tempPath, dest); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	meter.Finish(written, total)
	return nil
}

// TempPath returns the colocated temp path for a destination.
func TempPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+partialSuffix)
}

// CleanupOrphans removes temp files abandoned by a previous crash anywhere
// under root. Returns the number of files removed. Runs before new jobs
// are accepted so abandoned attempts cannot grow the disk unbounded.
func CleanupOrphans(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && strings.HasSuffix(name, partialSuffix) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("cleanup orphans: %w", err)
	}
	return removed, nil
}

// retryable reports whether a failed attempt is worth restarting.
// Disk exhaustion and client-side errors are not; broken streams and
// server errors are.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrDiskFull),
		errors.Is(err, ErrLocked),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrInterrupted),
		errors.Is(err, aicchttp.ErrServerError),
		errors.Is(err, aicchttp.ErrRateLimited):
		return true
	case errors.Is(err, aicchttp.ErrNotFound),
		errors.Is(err, aicchttp.ErrUnauthorized),
		errors.Is(err, aicchttp.ErrForbidden):
		return false
	default:
		// Unclassified transport errors (connection refused, reset) are
		// treated as interruptions.
		return true
	}
}

// classifyWriteError distinguishes disk exhaustion from other write
// failures.
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrDiskFull, err)
	}
	return fmt.Errorf("write temp file: %w", err)
}
