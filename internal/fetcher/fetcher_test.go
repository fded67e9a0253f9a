package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	aicchttp "github.com/quinteroac/ai-content-creator/internal/http"
)

func newTestClient() *aicchttp.Client {
	opts := aicchttp.DefaultOptions()
	opts.RetryAttempts = 0
	opts.RetryBackoff = time.Millisecond
	return aicchttp.NewClient(opts)
}

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func testOptions() Options {
	return Options{
		ProgressInterval: time.Millisecond,
		StallTimeout:     5 * time.Second,
		RetryAttempts:    2,
		RetryBackoff:     10 * time.Millisecond,
	}
}

func TestFetchBasic(t *testing.T) {
	data := testData(1024 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "checkpoints", "model.safetensors")
	f := New(newTestClient())

	if err := f.Fetch(context.Background(), server.URL, dest, testOptions()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if len(got) != len(data) {
		t.Errorf("expected %d bytes, got %d", len(data), len(got))
	}

	if _, err := os.Stat(TempPath(dest)); !os.IsNotExist(err) {
		t.Error("temp file left behind after successful fetch")
	}
}

func TestFetchProgressFinalValue(t *testing.T) {
	data := testData(512 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer server.Close()

	var last atomic.Int64
	var prev int64
	monotonic := true

	opts := testOptions()
	opts.OnProgress = func(transferred, total int64) {
		if transferred < prev {
			monotonic = false
		}
		prev = transferred
		last.Store(transferred)
	}

	dest := filepath.Join(t.TempDir(), "model.safetensors")
	f := New(newTestClient())
	if err := f.Fetch(context.Background(), server.URL, dest, opts); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if last.Load() != int64(len(data)) {
		t.Errorf("final progress emission = %d, want %d", last.Load(), len(data))
	}
	if !monotonic {
		t.Error("progress emissions were not monotonic")
	}
}

func TestFetchInterruptedRetriesThenFails(t *testing.T) {
	attempts := 0
	data := testData(64 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		// Promise more bytes than delivered so the client sees a broken stream.
		w.Header().Set("Content-Length", strconv.Itoa(len(data)*2))
		w.Write(data)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.safetensors")
	f := New(newTestClient())
	err := f.Fetch(context.Background(), server.URL, dest, testOptions())
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("partial artifact visible at destination")
	}
	if _, err := os.Stat(TempPath(dest)); !os.IsNotExist(err) {
		t.Error("temp file left behind after failed fetch")
	}
}

func TestFetchRecoversOnRetry(t *testing.T) {
	attempts := 0
	data := testData(64 * 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)*2))
			w.Write(data[:1024])
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.safetensors")
	f := New(newTestClient())
	if err := f.Fetch(context.Background(), server.URL, dest, testOptions()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	got, err := os.ReadFile(dest)
	if err != nil || len(got) != len(data) {
		t.Errorf("destination incomplete: err=%v len=%d", err, len(got))
	}
}

func TestFetchNotFoundNoRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.safetensors")
	f := New(newTestClient())
	err := f.Fetch(context.Background(), server.URL, dest, testOptions())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for 404, got %d", attempts)
	}
}

func TestFetchCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.Write(make([]byte, 1024))
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	dest := filepath.Join(t.TempDir(), "model.safetensors")
	f := New(newTestClient())
	err := f.Fetch(ctx, server.URL, dest, testOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("artifact visible at destination after cancel")
	}
	if _, err := os.Stat(TempPath(dest)); !os.IsNotExist(err) {
		t.Error("temp file left behind after cancel")
	}
}

func TestDiskFullFatal(t *testing.T) {
	err := classifyWriteError(fmt.Errorf("write temp file: %w", syscall.ENOSPC))
	if !errors.Is(err, ErrDiskFull) {
		t.Fatalf("expected ErrDiskFull for ENOSPC, got %v", err)
	}
	if retryable(err) {
		t.Error("disk exhaustion must abort without retry")
	}
}

func TestClassifyWriteErrorOther(t *testing.T) {
	err := classifyWriteError(errors.New("short write"))
	if errors.Is(err, ErrDiskFull) {
		t.Errorf("non-ENOSPC write error misclassified as disk full: %v", err)
	}
}

func TestCleanupOrphans(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "checkpoints")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	orphan := filepath.Join(sub, ".model.safetensors.partial")
	keep := filepath.Join(sub, "model.safetensors")
	for _, p := range []string{orphan, keep} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := CleanupOrphans(root)
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan temp file not removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("finished artifact should not be removed")
	}
}

func TestCleanupOrphansMissingRoot(t *testing.T) {
	removed, err := CleanupOrphans(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("CleanupOrphans on missing root: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}

func TestTempPathColocated(t *testing.T) {
	dest := filepath.Join("/models", "loras", "style.safetensors")
	temp := TempPath(dest)
	if filepath.Dir(temp) != filepath.Dir(dest) {
		t.Errorf("temp path %q not colocated with destination %q", temp, dest)
	}
	if temp == dest {
		t.Error("temp path must differ from destination")
	}
}
