// Package probe implements the warm-up probe controller (C3, spec.md
// §4.3): a short serial burst used to measure throughput before the window
// scheduler starts scaling concurrency. Grounded on the reference
// implementation's tune_part_size_from_probe (original_source/src/auto.rs),
// re-expressed so the cost floor (C1's OptimizeForCost) and the provider
// clamp (C2) are both always applied to the tuned size -- REDESIGN FLAG /
// Open Question 3 in spec.md §9, which the buggy source skipped.
package probe

import (
	"context"
	"time"

	"github.com/NVIDIA/s3copy/planner"
	"github.com/NVIDIA/s3copy/store"
)

// Copier performs exactly one part copy and returns the part's ETag. The
// probe controller is the only caller that times this directly; the window
// scheduler has its own concurrent equivalent.
type Copier func(ctx context.Context, partNumber int, rng store.ByteRange) (etag string, err error)

// Part describes one probe (or window) unit of work.
type Part struct {
	Number int
	Range  store.ByteRange
}

// Result is what the probe measured plus the parts it actually submitted,
// since those parts count toward the final CompletedMultipartUpload
// submission (spec.md §4.3).
type Result struct {
	CompletedParts []store.CompletedPart
	NextPartNumber int
	TunedPartSize  int64
	AvgMiBPerSec   float64
}

// Run executes up to min(probeParts, ceil(remaining/partSize)) parts
// serially, each timed individually, then returns a tuned part size for the
// remaining byte range. remaining is the number of bytes not yet covered by
// any part; startPartNumber is the next part number to assign.
func Run(ctx context.Context, profile planner.Profile, sameRegion bool, probeParts int, remaining, partSize int64,
	startPartNumber int, copy Copier) (Result, error) {

	toRun := probeParts
	if maxFit := int(ceilDiv(remaining, partSize)); toRun > maxFit {
		toRun = maxFit
	}
	if toRun <= 0 {
		return Result{NextPartNumber: startPartNumber, TunedPartSize: partSize}, nil
	}

	completed := make([]store.CompletedPart, 0, toRun)
	var totalMiB, totalSeconds float64
	offset := int64(0)
	partNumber := startPartNumber

	for i := 0; i < toRun; i++ {
		size := partSize
		if remaining-offset < size {
			size = remaining - offset
		}
		rng := store.ByteRange{Start: offset, End: offset + size - 1}

		start := time.Now()
		etag, err := copy(ctx, partNumber, rng)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			return Result{}, err
		}

		completed = append(completed, store.CompletedPart{PartNumber: partNumber, ETag: etag})
		mib := float64(size) / float64(planner.MiB)
		if elapsed > 0 {
			totalMiB += mib / elapsed
		}
		totalSeconds += elapsed
		offset += size
		partNumber++
	}

	avg := 0.0
	if toRun > 0 {
		avg = totalMiB / float64(toRun)
	}

	remainingAfterProbe := remaining - offset
	tuned := tunePartSize(profile, remainingAfterProbe, partSize, avg)
	// Re-derive the cost floor for what's left, same as the initial plan
	// (C1), before the provider-limit clamp (C2) -- a probe-halved part size
	// must never undercut the profile's own cost table for the remainder.
	tuned = planner.OptimizeForCost(remainingAfterProbe, tuned, profile, sameRegion)
	remainingParts := int64(planner.S3MaxParts - (partNumber - 1))
	tuned = planner.Clamp(remainingAfterProbe, tuned, remainingParts)

	return Result{
		CompletedParts: completed,
		NextPartNumber: partNumber,
		TunedPartSize:  tuned,
		AvgMiBPerSec:   avg,
	}, nil
}

// tunePartSize applies spec.md §4.3's thresholds.
func tunePartSize(profile planner.Profile, remaining, current int64, avgMiBs float64) int64 {
	if remaining <= 0 {
		return current
	}
	switch {
	case avgMiBs >= 1200:
		doubled := current * 2
		if doubled > planner.GiB {
			doubled = planner.GiB
		}
		return doubled
	case profile == planner.CostEfficient && avgMiBs <= 120:
		if current < planner.GiB {
			return planner.GiB
		}
		return current
	case avgMiBs <= 120:
		halved := current / 2
		if halved < 64*planner.MiB {
			halved = 64 * planner.MiB
		}
		return halved
	default:
		return current
	}
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
