// Package filter decides whether a discovered service instance is on the
// ignore list. Lookups go Bloom prefilter → decision cache → rule store.
package filter

import "github.com/haukened/rr-mdns/internal/mdns/domain"

// Prefilter answers whether any rule could match a canonical instance name.
// It may report false positives but never false negatives, and it is
// immutable once built.
type Prefilter interface {
	MayMatch(name string) bool
}

// PrefilterBuilder builds a Prefilter over a rule set at the target
// false-positive rate.
type PrefilterBuilder func(rules []domain.IgnoreRule, fpRate float64) Prefilter

// DecisionCache caches decisions by rule-set generation and canonical
// instance name. Entries of older generations are never read again and age
// out as the cache fills.
type DecisionCache interface {
	Get(generation uint64, name string) (domain.IgnoreDecision, bool)
	Put(generation uint64, name string, d domain.IgnoreDecision)
	Len() int
	Stats() CacheStats
}

// Store is the authoritative rule index.
type Store interface {
	// GetFirstMatch returns the most specific rule matching the canonical name:
	// an exact rule first, then suffix rules from the longest to the shortest.
	GetFirstMatch(name string) (domain.IgnoreRule, bool)
	// RebuildAll atomically replaces every rule.
	RebuildAll(rules []domain.IgnoreRule, version uint64, updatedUnix int64)
	Stats() StoreStats
}

// Repository is the composition layer that wires prefilter → cache → store.
type Repository interface {
	// Decide returns the decision for a full service instance name.
	Decide(name string) domain.IgnoreDecision
	// UpdateAll swaps in a new rule set and prefilter. Decisions cached for
	// earlier sets stop being consulted.
	UpdateAll(rules []domain.IgnoreRule, version uint64, updatedUnix int64)
	RepoStats() RepoStats
}
