package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Func receives progress updates for a single transfer. total is -1 when
// the remote side did not report a size.
type Func func(transferred, total int64)

// Meter throttles progress emission to a bounded rate. Updates are dropped
// unless the configured interval has elapsed since the last emission; the
// final value reported through Finish is always emitted.
type Meter struct {
	fn       Func
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewMeter creates a meter that forwards throttled updates to fn.
// A nil fn yields a meter whose methods are no-ops.
func NewMeter(fn Func, interval time.Duration) *Meter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Meter{fn: fn, interval: interval}
}

// Update reports transfer progress, subject to throttling.
func (m *Meter) Update(transferred, total int64) {
	if m == nil || m.fn == nil {
		return
	}

	m.mu.Lock()
	now := time.Now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		m.mu.Unlock()
		return
	}
	m.last = now
	m.mu.Unlock()

	m.fn(transferred, total)
}

// Finish reports the final byte count, bypassing the throttle.
func (m *Meter) Finish(transferred, total int64) {
	if m == nil || m.fn == nil {
		return
	}
	m.fn(transferred, total)
}

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total size in bytes to transfer, or -1 if unknown.
	TotalSize int64

	// Name is the artifact being transferred (for display).
	Name string

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information for one transfer.
type Reporter struct {
	opts Options

	mu          sync.Mutex
	transferred atomic.Int64
	startTime   time.Time
	lastUpdate  time.Time
	lastBytes   int64
	stopCh      chan struct{}
	stopped     bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[provisiond] Downloading: %s\n", r.opts.Name)
	if r.opts.TotalSize > 0 {
		fmt.Fprintf(r.opts.Output, "[provisiond] Total size: %s\n", FormatBytes(r.opts.TotalSize))
	}

	go r.updateLoop()
}

// Stop stops the progress reporter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
}

// Update records the current transferred byte count.
func (r *Reporter) Update(transferred int64) {
	r.transferred.Store(transferred)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	transferred := r.transferred.Load()

	// Calculate speed
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	bytesThisPeriod := transferred - r.lastBytes
	speed := float64(bytesThisPeriod) / elapsed

	r.lastUpdate = now
	r.lastBytes = transferred

	if r.opts.TotalSize > 0 {
		percent := float64(transferred) / float64(r.opts.TotalSize) * 100
		eta := "calculating..."
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - transferred)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		}
		fmt.Fprintf(r.opts.Output, "\r[provisiond] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
			percent,
			FormatBytes(transferred),
			FormatBytes(r.opts.TotalSize),
			FormatBytes(int64(speed)),
			eta,
		)
		return
	}

	fmt.Fprintf(r.opts.Output, "\r[provisiond] Progress: %s | Speed: %s/s    ",
		FormatBytes(transferred),
		FormatBytes(int64(speed)),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	transferred := r.transferred.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(transferred) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[provisiond] Transferred: %s | Total time: %s | Average speed: %s/s    \n",
		FormatBytes(transferred),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
