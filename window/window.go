// Package window implements the bounded-batch concurrent part-copy
// scheduler (C4, spec.md §4.4) and the pure concurrency adapter (C5,
// spec.md §4.5). Dispatch uses golang.org/x/sync/errgroup for fan-out/
// fan-in, grounded on this codebase's own use of errgroup.Group for bounded
// concurrent work (fs/walk.go, cmd/cli/commands/dsort.go in the teacher
// repository), gated by a rsema.Semaphore so target_concurrency can change
// between windows without rebuilding the worker pool.
package window

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/rsema"
	"github.com/NVIDIA/s3copy/store"
)

// Part is one unit of work the scheduler dispatches.
type Part struct {
	Number int
	Range  store.ByteRange
}

// Copier performs exactly one part's server-side copy.
type Copier func(ctx context.Context, partNumber int, rng store.ByteRange) (etag string, err error)

// OnPartDone is invoked exactly once per successfully completed part,
// before the scheduler reports the batch result (spec.md §4.4). The
// lifecycle passes a no-op here and reports progress from its own copier.
type OnPartDone func(bytesCopied int64)

// Scheduler dispatches bounded batches of concurrent part copies against a
// resizable semaphore shared across the whole copy.
type Scheduler struct {
	sema *rsema.Semaphore
}

func NewScheduler(initialConcurrency int) *Scheduler {
	return &Scheduler{sema: rsema.New(initialConcurrency)}
}

// Resize changes the in-flight concurrency bound for subsequent windows.
func (s *Scheduler) Resize(n int) { s.sema.SetSize(n) }

// RunWindow dispatches all parts in the batch concurrently (bounded by the
// scheduler's current semaphore size), collects per-part timings, and
// returns WindowMetrics plus the completed parts in arbitrary order. If any
// part fails, the first such error is returned; in-flight parts are allowed
// to finish (errgroup cancels the shared context, so any part that still
// checks ctx.Err() stops promptly, but none are force-killed).
func (s *Scheduler) RunWindow(ctx context.Context, parts []Part, copy Copier, onDone OnPartDone) ([]store.CompletedPart, Metrics, error) {
	if len(parts) == 0 {
		return nil, Metrics{}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	completed := make([]store.CompletedPart, len(parts))

	var mu sync.Mutex
	var totalElapsed float64
	var totalBytes int64
	windowStart := time.Now()

	for i, p := range parts {
		if gctx.Err() != nil {
			// A sibling part in this window already failed; per spec.md
			// §4.4 unstarted tasks in the batch are not issued.
			break
		}
		i, p := i, p
		s.sema.Acquire()
		g.Go(func() error {
			defer s.sema.Release()

			start := time.Now()
			etag, err := copy(gctx, p.Number, p.Range)
			elapsed := time.Since(start).Seconds()
			if err != nil {
				return err
			}

			mu.Lock()
			totalElapsed += elapsed
			totalBytes += p.Range.Count()
			mu.Unlock()

			completed[i] = store.CompletedPart{PartNumber: p.Number, ETag: etag}
			onDone(p.Range.Count())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Metrics{}, err
	}

	wallSeconds := time.Since(windowStart).Seconds()
	metrics := Metrics{
		AvgPartSeconds:       totalElapsed / float64(len(parts)),
		ThroughputMiBPerSec:  (float64(totalBytes) / float64(planner.MiB)) / nonZero(wallSeconds),
		HadRetryablePressure: false, // reserved for future use, spec.md §4.4 / §9
	}
	return completed, metrics, nil
}

func nonZero(f float64) float64 {
	if f <= 0 {
		return 1e-9
	}
	return f
}
