package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{256 * 1024 * 1024, "256.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMeterThrottles(t *testing.T) {
	var calls int
	meter := NewMeter(func(transferred, total int64) {
		calls++
	}, time.Hour)

	for i := 0; i < 100; i++ {
		meter.Update(int64(i), 100)
	}

	// Only the first update passes the throttle
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestMeterFinishAlwaysEmits(t *testing.T) {
	var last int64
	meter := NewMeter(func(transferred, total int64) {
		last = transferred
	}, time.Hour)

	meter.Update(10, 100)
	meter.Update(50, 100)
	meter.Finish(100, 100)

	if last != 100 {
		t.Errorf("expected final emission of 100, got %d", last)
	}
}

func TestMeterNilFunc(t *testing.T) {
	meter := NewMeter(nil, time.Second)
	meter.Update(1, 2) // must not panic
	meter.Finish(2, 2)
}

func TestMeterMonotonicEmissions(t *testing.T) {
	var seen []int64
	meter := NewMeter(func(transferred, total int64) {
		seen = append(seen, transferred)
	}, time.Millisecond)

	for i := int64(0); i <= 1000; i += 100 {
		meter.Update(i, 1000)
		time.Sleep(2 * time.Millisecond)
	}
	meter.Finish(1000, 1000)

	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("emissions not monotonic: %v", seen)
		}
	}
	if seen[len(seen)-1] != 1000 {
		t.Errorf("expected final value 1000, got %d", seen[len(seen)-1])
	}
}

func TestReporterStartStop(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(Options{
		TotalSize:      1024 * 1024,
		Name:           "model.safetensors",
		Output:         &buf,
		UpdateInterval: 10 * time.Millisecond,
	})

	reporter.Start()
	reporter.Update(256 * 1024)
	time.Sleep(50 * time.Millisecond)
	reporter.Update(1024 * 1024)
	reporter.Stop()

	time.Sleep(20 * time.Millisecond) // let the final status print

	out := buf.String()
	if !strings.Contains(out, "model.safetensors") {
		t.Errorf("expected artifact name in output, got %q", out)
	}
	if !strings.Contains(out, "Total size: 1.00 MB") {
		t.Errorf("expected total size in output, got %q", out)
	}
}
