package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/repos/filter"
)

// key scopes a canonical instance name to the rule set that decided it.
type key struct {
	generation uint64
	name       string
}

// decisionCache is an LRU-backed filter.DecisionCache. Entries from earlier
// rule-set generations are never returned and age out through normal eviction.
type decisionCache struct {
	lru       *lru.Cache[key, domain.IgnoreDecision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache always misses. Used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache holding up to size decisions. If size <= 0 a
// disabled cache is returned that always misses and tracks no metrics.
func New(size int) (filter.DecisionCache, error) {
	if size <= 0 {
		return disabledCache{}, nil
	}

	dc := &decisionCache{}
	cache, err := lru.NewWithEvict(size, func(_ key, _ domain.IgnoreDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(generation uint64, name string) (domain.IgnoreDecision, bool) {
	if val, ok := c.lru.Get(key{generation, name}); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.IgnoreDecision{}, false
}

func (c *decisionCache) Put(generation uint64, name string, d domain.IgnoreDecision) {
	c.lru.Add(key{generation, name}, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

// Stats returns the current size and cumulative hit, miss and eviction counts.
func (c *decisionCache) Stats() filter.CacheStats {
	return filter.CacheStats{
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (disabledCache) Get(uint64, string) (domain.IgnoreDecision, bool) {
	return domain.IgnoreDecision{}, false
}

func (disabledCache) Put(uint64, string, domain.IgnoreDecision) {}

func (disabledCache) Len() int { return 0 }

func (disabledCache) Stats() filter.CacheStats { return filter.CacheStats{} }

var _ filter.DecisionCache = (*decisionCache)(nil)
var _ filter.DecisionCache = disabledCache{}
