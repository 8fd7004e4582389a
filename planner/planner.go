// Package planner implements the pure, allocation-light pieces of the
// auto-tuning multipart-copy planner: the initial plan (C1, spec.md §4.1)
// and the provider-limit clamp (C2, spec.md §4.2). Nothing here suspends or
// returns an error; both are value functions over plain numbers, grounded
// on the reference implementation's auto.rs (build_auto_plan,
// clamp_part_size_for_limit, optimize_part_size_for_cost).
package planner

const (
	MiB = 1024 * 1024
	GiB = 1024 * MiB

	S3MinPartSize        = 5 * MiB
	S3MaxPartSize         = 5 * GiB
	S3MaxParts            = 10000
	S3MaxSingleCopySize   = 5 * GiB
)

// Profile selects the auto-tuning tables used throughout C1/C3/C5.
type Profile int

const (
	Balanced Profile = iota
	Aggressive
	Conservative
	CostEfficient
)

func (p Profile) String() string {
	switch p {
	case Aggressive:
		return "Aggressive"
	case Conservative:
		return "Conservative"
	case CostEfficient:
		return "CostEfficient"
	default:
		return "Balanced"
	}
}

func ParseProfile(s string) (Profile, bool) {
	switch s {
	case "Aggressive", "aggressive":
		return Aggressive, true
	case "Balanced", "balanced":
		return Balanced, true
	case "Conservative", "conservative":
		return Conservative, true
	case "CostEfficient", "costefficient", "cost-efficient":
		return CostEfficient, true
	default:
		return Balanced, false
	}
}

// Plan is the output of the plan calculator (AutoPlan, spec.md §3).
type Plan struct {
	InitialPartSize     int64
	InitialConcurrency  int
	MaxConcurrency      int
	ProbeParts          int
}

// Build computes the initial part size and concurrency bounds for an
// auto-mode copy. Pure; never fails (spec.md §4.1).
func Build(profile Profile, sizeBytes int64, sameRegion bool, concurrencyCap int) Plan {
	base := selectInitialPartSize(sizeBytes, profile)
	partSize := OptimizeForCost(sizeBytes, base, profile, sameRegion)

	hardCap := concurrencyCap
	if hardCap < 1 {
		hardCap = 1
	}
	maxConcurrency := min(recommendedMaxConcurrency(profile, sameRegion), hardCap)
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	initialConcurrency := min(recommendedInitialConcurrency(profile, sameRegion), maxConcurrency)
	if initialConcurrency < 1 {
		initialConcurrency = 1
	}

	return Plan{
		InitialPartSize:    partSize,
		InitialConcurrency: initialConcurrency,
		MaxConcurrency:     maxConcurrency,
		ProbeParts:         probePartCount(profile),
	}
}

// selectInitialPartSize is the piecewise-constant table of spec.md §4.1.
func selectInitialPartSize(sizeBytes int64, profile Profile) int64 {
	const (
		hundredGiB = 100 * GiB
		oneTiB     = 1024 * GiB
		tenTiB     = 10 * 1024 * GiB
	)
	switch profile {
	case Aggressive:
		switch {
		case sizeBytes < hundredGiB:
			return 64 * MiB
		case sizeBytes < oneTiB:
			return 128 * MiB
		case sizeBytes < tenTiB:
			return 256 * MiB
		default:
			return 512 * MiB
		}
	case Conservative:
		switch {
		case sizeBytes < hundredGiB:
			return 256 * MiB
		case sizeBytes < oneTiB:
			return 512 * MiB
		default:
			return GiB
		}
	case CostEfficient:
		switch {
		case sizeBytes < hundredGiB:
			return GiB
		case sizeBytes < oneTiB:
			return 2 * GiB
		case sizeBytes < tenTiB:
			return 3 * GiB
		default:
			return 4 * GiB
		}
	default: // Balanced
		switch {
		case sizeBytes < hundredGiB:
			return 128 * MiB
		case sizeBytes < oneTiB:
			return 256 * MiB
		case sizeBytes < tenTiB:
			return 512 * MiB
		default:
			return GiB
		}
	}
}

// targetMaxParts is the (profile, same_region) table of spec.md §4.1.
func targetMaxParts(profile Profile, sameRegion bool) int64 {
	switch profile {
	case Aggressive:
		if sameRegion {
			return 3500
		}
		return 2800
	case Conservative:
		if sameRegion {
			return 1200
		}
		return 800
	case CostEfficient:
		if sameRegion {
			return 500
		}
		return 350
	default: // Balanced
		if sameRegion {
			return 2200
		}
		return 1500
	}
}

// OptimizeForCost raises candidate to the cost floor: ceil(size/targetMaxParts)
// rounded up to a MiB boundary, capped at the 5 GiB provider maximum (C1,
// spec.md §4.1). Exported so callers that re-tune a part size after Build
// (the probe controller, C3) can reapply the same floor the initial plan
// used, instead of only the provider-limit Clamp (C2).
func OptimizeForCost(sizeBytes, candidate int64, profile Profile, sameRegion bool) int64 {
	if sizeBytes <= 0 {
		return candidate
	}
	maxParts := targetMaxParts(profile, sameRegion)
	floor := ceilDiv(sizeBytes, maxParts)
	floor = roundUpToMiB(floor)
	if floor > S3MaxPartSize {
		floor = S3MaxPartSize
	}
	out := candidate
	if floor > out {
		out = floor
	}
	if out > S3MaxPartSize {
		out = S3MaxPartSize
	}
	return out
}

// Clamp enforces the provider's 5 MiB floor and 10,000-part ceiling (C2,
// spec.md §4.2). Called initially with maxParts=10000, and after the probe
// with maxParts = 10000 - already_scheduled.
func Clamp(sizeBytes, desired, maxParts int64) int64 {
	if sizeBytes <= 0 {
		return desired
	}
	if maxParts < 1 {
		maxParts = 1
	}
	out := desired
	if out < S3MinPartSize {
		out = S3MinPartSize
	}
	required := ceilDiv(sizeBytes, maxParts)
	if required < S3MinPartSize {
		required = S3MinPartSize
	}
	required = roundUpToMiB(required)
	if required > out {
		out = required
	}
	if out > S3MaxPartSize {
		out = S3MaxPartSize
	}
	return out
}

func recommendedInitialConcurrency(profile Profile, sameRegion bool) int {
	switch profile {
	case Aggressive:
		if sameRegion {
			return 48
		}
		return 28
	case Conservative:
		if sameRegion {
			return 12
		}
		return 8
	case CostEfficient:
		if sameRegion {
			return 8
		}
		return 6
	default:
		if sameRegion {
			return 24
		}
		return 16
	}
}

func recommendedMaxConcurrency(profile Profile, sameRegion bool) int {
	switch profile {
	case Aggressive:
		if sameRegion {
			return 96
		}
		return 64
	case Conservative:
		if sameRegion {
			return 32
		}
		return 20
	case CostEfficient:
		if sameRegion {
			return 16
		}
		return 12
	default:
		if sameRegion {
			return 64
		}
		return 40
	}
}

func probePartCount(profile Profile) int {
	switch profile {
	case Aggressive:
		return 5
	case Conservative:
		return 3
	case CostEfficient:
		return 2
	default:
		return 4
	}
}

// ConcurrencyStep is the per-window concurrency adjustment size (C5,
// spec.md §4.5), kept here alongside the other per-profile tables it shares
// a source with.
func ConcurrencyStep(profile Profile) int {
	switch profile {
	case Aggressive:
		return 8
	case Conservative:
		return 2
	case CostEfficient:
		return 1
	default:
		return 4
	}
}

// ExpectedPartCount is the part count a fixed partSize yields for sizeBytes,
// ceil(sizeBytes/partSize), used to size the progress aggregator's total
// before any part has actually been submitted.
func ExpectedPartCount(sizeBytes, partSize int64) int64 {
	if sizeBytes <= 0 {
		return 0
	}
	return ceilDiv(sizeBytes, partSize)
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func roundUpToMiB(n int64) int64 {
	return ceilDiv(n, MiB) * MiB
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
