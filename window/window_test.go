package window

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/store"
)

func TestRunWindowCollectsAllParts(t *testing.T) {
	sched := NewScheduler(4)
	parts := make([]Part, 10)
	for i := range parts {
		parts[i] = Part{Number: i + 1, Range: store.ByteRange{Start: int64(i) * planner.MiB, End: int64(i+1)*planner.MiB - 1}}
	}

	var bytesDone int64
	copy := func(_ context.Context, partNumber int, _ store.ByteRange) (string, error) {
		return "etag", nil
	}
	completed, metrics, err := sched.RunWindow(context.Background(), parts, copy, func(n int64) {
		atomic.AddInt64(&bytesDone, n)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(completed) != 10 {
		t.Fatalf("expected 10 completed parts, got %d", len(completed))
	}
	if bytesDone != 10*planner.MiB {
		t.Fatalf("expected progress callback to see all bytes, got %d", bytesDone)
	}
	if metrics.ThroughputMiBPerSec <= 0 {
		t.Fatalf("expected positive throughput, got %f", metrics.ThroughputMiBPerSec)
	}
}

func TestRunWindowSurfacesFirstError(t *testing.T) {
	sched := NewScheduler(2)
	parts := []Part{
		{Number: 1, Range: store.ByteRange{Start: 0, End: planner.MiB - 1}},
		{Number: 2, Range: store.ByteRange{Start: planner.MiB, End: 2*planner.MiB - 1}},
	}
	boom := errors.New("boom")
	copy := func(_ context.Context, partNumber int, _ store.ByteRange) (string, error) {
		if partNumber == 2 {
			return "", boom
		}
		return "etag", nil
	}
	_, _, err := sched.RunWindow(context.Background(), parts, copy, func(int64) {})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestRunWindowRespectsConcurrencyBound(t *testing.T) {
	sched := NewScheduler(3)
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	parts := make([]Part, 20)
	for i := range parts {
		parts[i] = Part{Number: i + 1, Range: store.ByteRange{Start: 0, End: 0}}
	}
	copy := func(_ context.Context, _ int, _ store.ByteRange) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		mu.Lock()
		inFlight--
		mu.Unlock()
		return "e", nil
	}
	_, _, err := sched.RunWindow(context.Background(), parts, copy, func(int64) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxInFlight > 3 {
		t.Fatalf("expected at most 3 in flight, saw %d", maxInFlight)
	}
}
