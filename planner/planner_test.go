package planner

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/ginkgo/extensions/table"
)

var _ = Describe("Build and Clamp", func() {
	sizes := []int64{1, 10 * MiB, 5 * GiB, 100 * GiB, 2 * 1024 * GiB, 20 * 1024 * GiB}
	profiles := []Profile{Aggressive, Balanced, Conservative, CostEfficient}
	caps := []int{1, 50, 1000}

	It("never lets a clamped part size produce more than the part-count ceiling", func() {
		for _, size := range sizes {
			for _, p := range profiles {
				for _, sameRegion := range []bool{true, false} {
					for _, capVal := range caps {
						plan := Build(p, size, sameRegion, capVal)
						partSize := Clamp(size, plan.InitialPartSize, S3MaxParts)
						parts := ceilDiv(size, partSize)
						Expect(parts).To(BeNumerically("<=", S3MaxParts),
							"size=%d profile=%v sameRegion=%v cap=%d", size, p, sameRegion, capVal)
						Expect(plan.InitialConcurrency).To(BeNumerically(">=", 1))
						Expect(plan.InitialConcurrency).To(BeNumerically("<=", plan.MaxConcurrency))
						Expect(plan.MaxConcurrency).To(BeNumerically("<=", capVal))
					}
				}
			}
		}
	})

	It("never picks a CostEfficient initial part size smaller than Balanced's, at 1 TiB", func() {
		oneTiB := int64(1024) * GiB
		balanced := Build(Balanced, oneTiB, true, 1000)
		costEfficient := Build(CostEfficient, oneTiB, true, 1000)
		Expect(costEfficient.InitialPartSize).To(BeNumerically(">=", balanced.InitialPartSize))
	})

	It("bases CostEfficient strictly above Balanced's base part size, at 1 TiB", func() {
		oneTiB := int64(1024) * GiB
		balanced := selectInitialPartSize(oneTiB, Balanced)
		cost := selectInitialPartSize(oneTiB, CostEfficient)
		Expect(cost).To(BeNumerically(">", balanced))
	})

	It("raises an undersized requested part size to the 5 MiB floor", func() {
		got := Clamp(10*GiB, 1*MiB, S3MaxParts)
		Expect(got).To(BeNumerically(">=", S3MinPartSize))
	})

	It("caps an oversized requested part size at 5 GiB", func() {
		got := Clamp(1, 10*GiB, S3MaxParts)
		Expect(got).To(BeNumerically("<=", S3MaxPartSize))
	})

	It("grows the part size enough to keep a 20 TiB object under 10000 parts", func() {
		size := int64(20) * 1024 * GiB
		part := Clamp(size, 64*MiB, 10000)
		parts := ceilDiv(size, part)
		Expect(parts).To(BeNumerically("<=", 10000))
	})
})

var _ = Describe("ConcurrencyStep", func() {
	table.DescribeTable("returns the profile's fixed step",
		func(p Profile, want int) {
			Expect(ConcurrencyStep(p)).To(Equal(want))
		},
		table.Entry("Aggressive", Aggressive, 8),
		table.Entry("Balanced", Balanced, 4),
		table.Entry("Conservative", Conservative, 2),
		table.Entry("CostEfficient", CostEfficient, 1),
	)
})

var _ = Describe("ParseProfile", func() {
	It("recognizes a known profile name", func() {
		p, ok := ParseProfile("Aggressive")
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal(Aggressive))
	})

	It("rejects an unknown profile name", func() {
		_, ok := ParseProfile("bogus")
		Expect(ok).To(BeFalse())
	})
})
