package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrRateLimited  = errors.New("http: rate limited")
	ErrServerError  = errors.New("http: server error")
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout for metadata requests (GetJSON, Head). Streaming requests
	// made with Open have no overall deadline.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             30 * time.Second,
		RetryAttempts:       3,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     30 * time.Second,
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	Size        int64
	ContentType string
}

// Stream is an open transfer returned by Open. The caller must close Body
// and should call Cancel to abort the underlying request early.
type Stream struct {
	Body          io.ReadCloser
	ContentLength int64
	Cancel        context.CancelFunc
}

// Client is an HTTP client for registry queries and artifact downloads.
type Client struct {
	meta   *http.Client // bounded timeout, metadata calls
	stream *http.Client // no overall timeout, streaming bodies
	opts   Options
}

// NewClient creates a new HTTP client with the given options. Zero
// fields are defaulted individually; RetryAttempts zero means no retries.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // raw bytes for large binary transfers
	}

	return &Client{
		meta: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		stream: &http.Client{
			Transport: transport,
		},
		opts: opts,
	}
}

// GetJSON performs a GET request and decodes the JSON response into v.
// Transient failures (network errors, 5xx, 429) are retried with backoff.
func (c *Client) GetJSON(ctx context.Context, url, token string, v any) error {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		setAuth(req, token)

		resp, err := c.meta.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if err := retryableStatus(resp.StatusCode, resp.Status); err != nil {
			resp.Body.Close()
			lastErr = err
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return err
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("get request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// Head performs a HEAD request to get file metadata.
func (c *Client) Head(ctx context.Context, url, token string) (*FileInfo, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		setAuth(req, token)

		resp, err := c.meta.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if err := retryableStatus(resp.StatusCode, resp.Status); err != nil {
			lastErr = err
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			return nil, err
		}

		return &FileInfo{
			Size:        resp.ContentLength,
			ContentType: resp.Header.Get("Content-Type"),
		}, nil
	}

	return nil, fmt.Errorf("head request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// Open starts a streaming GET request and returns the open body. No retry
// is performed here: a broken stream must be restarted from byte zero, and
// that decision belongs to the caller. The request runs on a context
// derived from ctx; Stream.Cancel aborts it.
func (c *Client) Open(ctx context.Context, url, token string) (*Stream, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	setAuth(req, token)

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode >= 500 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
	}
	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	return &Stream{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		Cancel:        cancel,
	}, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// retryableStatus returns a non-nil error for status codes that should be
// retried (5xx and 429), nil otherwise.
func retryableStatus(code int, status string) error {
	switch {
	case code >= 500:
		return fmt.Errorf("%w: %d %s", ErrServerError, code, status)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, status)
	default:
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// setAuth attaches a bearer token when one is present.
func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
