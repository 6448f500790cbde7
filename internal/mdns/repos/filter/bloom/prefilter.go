// Package bloom builds the ignore list's Bloom prefilter.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/repos/filter"
)

// DefaultFPRate is used when Build is given a rate outside (0, 1).
const DefaultFPRate = 0.01

// Exact and suffix rules hash under different tags so an exact rule never
// satisfies a suffix lookup for the same name.
const (
	exactTag  = "e|"
	suffixTag = "s|"
)

// prefilter is read-only after Build, so lookups need no lock.
type prefilter struct {
	bf *bitsbloom.BloomFilter
}

// Build returns a Prefilter over rules sized for fpRate. It matches the
// signature of filter.PrefilterBuilder.
func Build(rules []domain.IgnoreRule, fpRate float64) filter.Prefilter {
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = DefaultFPRate
	}
	n := uint(len(rules))
	if n == 0 {
		n = 1
	}
	bf := bitsbloom.NewWithEstimates(n, fpRate)
	for _, r := range rules {
		name := utils.CanonicalDNSName(r.Name)
		switch r.Kind {
		case domain.IgnoreExact:
			bf.AddString(exactTag + name)
		case domain.IgnoreSuffix:
			bf.AddString(suffixTag + name)
		}
	}
	return prefilter{bf: bf}
}

// MayMatch tests the exact key of name, then the suffix key of name and of
// every parent domain: "a._ipp._tcp.local", "_ipp._tcp.local", and so on.
func (p prefilter) MayMatch(name string) bool {
	if p.bf.TestString(exactTag + name) {
		return true
	}
	labels := utils.SplitLabels(name)
	for i := range labels {
		if p.bf.TestString(suffixTag + utils.JoinLabels(labels[i:])) {
			return true
		}
	}
	return false
}

var _ filter.PrefilterBuilder = Build
