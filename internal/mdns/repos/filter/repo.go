package filter

import (
	"sync/atomic"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// ruleSet is the published view of one UpdateAll call.
type ruleSet struct {
	generation uint64
	prefilter  Prefilter
}

// repository implements Repository over a Store, a Prefilter rebuilt on
// every update and a generation-keyed DecisionCache. Readers never block
// writers: UpdateAll rebuilds the store, then publishes a new rule set.
type repository struct {
	store  Store
	cache  DecisionCache
	build  PrefilterBuilder
	fpRate float64

	current atomic.Pointer[ruleSet]
}

// NewRepository constructs a Repository. build creates the prefilter for each
// rule set at fpRate. Until the first UpdateAll every lookup goes to the store.
func NewRepository(store Store, cache DecisionCache, build PrefilterBuilder, fpRate float64) Repository {
	return &repository{store: store, cache: cache, build: build, fpRate: fpRate}
}

// Decide returns the IgnoreDecision for the provided instance name.
func (r *repository) Decide(name string) domain.IgnoreDecision {
	cn := utils.CanonicalDNSName(name)

	var gen uint64
	if rs := r.current.Load(); rs != nil {
		if !rs.prefilter.MayMatch(cn) {
			return domain.AllowDecision()
		}
		gen = rs.generation
	}

	if d, ok := r.cache.Get(gen, cn); ok {
		return d
	}
	dec := r.checkStore(cn)
	r.cache.Put(gen, cn, dec)
	return dec
}

// UpdateAll replaces the rules. version and updatedUnix are recorded in the
// store's stats; cache generations advance on every call regardless.
func (r *repository) UpdateAll(rules []domain.IgnoreRule, version uint64, updatedUnix int64) {
	r.store.RebuildAll(rules, version, updatedUnix)

	var gen uint64 = 1
	if prev := r.current.Load(); prev != nil {
		gen = prev.generation + 1
	}
	r.current.Store(&ruleSet{generation: gen, prefilter: r.build(rules, r.fpRate)})
}

// checkStore consults the authoritative store and materializes a decision.
func (r *repository) checkStore(cn string) domain.IgnoreDecision {
	rule, ok := r.store.GetFirstMatch(cn)
	if !ok {
		return domain.AllowDecision()
	}
	return domain.IgnoreDecision{Ignored: true, MatchedRule: rule.Name, Source: rule.Source, Kind: rule.Kind}
}

// RepoStats returns cache and store counters.
func (r *repository) RepoStats() RepoStats {
	return RepoStats{
		Cache: r.cache.Stats(),
		Store: r.store.Stats(),
	}
}
