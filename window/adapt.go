package window

import "github.com/NVIDIA/s3copy/planner"

// Metrics is WindowMetrics from spec.md §3: observed throughput and
// pressure for one dispatched batch, consumed once by the adapter.
type Metrics struct {
	AvgPartSeconds      float64
	ThroughputMiBPerSec float64
	HadRetryablePressure bool
}

// Adapt is the pure concurrency adapter (C5, spec.md §4.5). Rules are
// evaluated in order; the first matching rule wins.
func Adapt(profile planner.Profile, current, minConcurrency, maxConcurrency int, m Metrics) int {
	step := planner.ConcurrencyStep(profile)

	var next int
	switch {
	case m.HadRetryablePressure:
		next = current - step
	case m.AvgPartSeconds < 8 && m.ThroughputMiBPerSec > 0:
		next = current + step
	case m.AvgPartSeconds > 25:
		next = current - step
	default:
		next = current
	}

	if next < minConcurrency {
		next = minConcurrency
	}
	if next > maxConcurrency {
		next = maxConcurrency
	}
	return next
}
