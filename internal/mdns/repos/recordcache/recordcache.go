// Package recordcache holds the live, TTL-driven set of mDNS records seen on
// the network and fans out change events to subscribers.
package recordcache

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// Predicate selects the records a subscriber is interested in. A nil
// Predicate matches everything.
type Predicate func(domain.ResourceRecord) bool

// Stats is a snapshot of cache counters.
type Stats struct {
	Capacity    int
	Size        int
	Inserts     uint64
	Refreshes   uint64
	Updates     uint64
	Goodbyes    uint64
	Expired     uint64
	Evictions   uint64
	Stale       uint64
	Subscribers int
}

// Cache is an LRU-bounded record cache keyed by domain.RecordKey.
//
// All mutations take one mutex. Change events are queued to subscribers
// while it is held, so every subscriber observes them in mutation order.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[domain.RecordKey, domain.CachedEntry]
	capacity int
	seq      uint64
	clock    clock.Clock
	logger   log.Logger

	subs   map[uint64]*Subscription
	nextID uint64

	// explicit is set while the cache itself removes entries, so the LRU
	// eviction callback only reports capacity evictions.
	explicit bool
	stats    Stats
}

// New returns a Cache holding at most size entries.
func New(size int, clk clock.Clock, logger log.Logger) (*Cache, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	c := &Cache{
		capacity: size,
		clock:    clk,
		logger:   logger,
		subs:     make(map[uint64]*Subscription),
	}
	backing, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = backing
	return c, nil
}

// onEvict runs inside lru calls made with c.mu held.
func (c *Cache) onEvict(key domain.RecordKey, entry domain.CachedEntry) {
	if c.explicit {
		return
	}
	c.stats.Evictions++
	c.logger.Debug(map[string]any{"key": key.String()}, "record evicted at capacity")
	c.publish(domain.ChangeEvent{Kind: domain.ChangeRemoved, Reason: domain.ReasonEvicted, Entry: entry})
}

// Insert records rr as received at arrival and reports what changed.
//
//   - TTL 0 removes the entry under the same key (goodbye) and emits Removed.
//   - A different record under an existing key replaces it and emits Updated.
//   - Identical rdata only extends the expiry (ChangeRefreshed, no event).
//   - Arrivals older than the cached entry are ignored (ChangeNone).
func (c *Cache) Insert(rr domain.ResourceRecord, arrival time.Time) domain.ChangeKind {
	key := rr.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.lru.Peek(key)
	if ok && arrival.Before(existing.ArrivedAt) {
		c.stats.Stale++
		return domain.ChangeNone
	}

	if rr.IsGoodbye() {
		if !ok {
			return domain.ChangeNone
		}
		c.remove(key)
		c.stats.Goodbyes++
		c.publish(domain.ChangeEvent{Kind: domain.ChangeRemoved, Reason: domain.ReasonGoodbye, Entry: existing})
		return domain.ChangeRemoved
	}

	if ok && existing.IsExpired(arrival) {
		// not swept yet: the old entry is gone as far as subscribers are concerned
		c.remove(key)
		c.stats.Expired++
		c.publish(domain.ChangeEvent{Kind: domain.ChangeRemoved, Reason: domain.ReasonExpired, Entry: existing})
		ok = false
	}

	c.seq++
	entry := domain.NewCachedEntry(rr, arrival, c.seq)
	c.lru.Add(key, entry)
	c.stats.Inserts++

	switch {
	case ok && existing.Record.SameData(rr):
		c.stats.Refreshes++
		return domain.ChangeRefreshed
	case ok:
		c.stats.Updates++
		c.publish(domain.ChangeEvent{Kind: domain.ChangeUpdated, Entry: entry})
		return domain.ChangeUpdated
	default:
		c.publish(domain.ChangeEvent{Kind: domain.ChangeAdded, Entry: entry})
		return domain.ChangeAdded
	}
}

// Lookup returns the live entry for key. Expired entries are not returned
// even before a sweep has removed them.
func (c *Cache) Lookup(key domain.RecordKey) (domain.CachedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok || e.IsExpired(c.clock.Now()) {
		return domain.CachedEntry{}, false
	}
	return e, true
}

// SweepExpired removes every entry expired at now and returns their keys.
func (c *Cache) SweepExpired(now time.Time) []domain.RecordKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []domain.RecordKey
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || !e.IsExpired(now) {
			continue
		}
		c.remove(key)
		c.stats.Expired++
		c.publish(domain.ChangeEvent{Kind: domain.ChangeRemoved, Reason: domain.ReasonExpired, Entry: e})
		removed = append(removed, key)
	}
	if len(removed) > 0 {
		c.logger.Debug(map[string]any{"count": len(removed)}, "swept expired records")
	}
	return removed
}

// Entries returns the live entries matching pred, oldest insert first.
func (c *Cache) Entries(pred Predicate) []domain.CachedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(pred, c.clock.Now())
}

func (c *Cache) snapshot(pred Predicate, now time.Time) []domain.CachedEntry {
	var out []domain.CachedEntry
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || e.IsExpired(now) {
			continue
		}
		if pred == nil || pred(e.Record) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry, emitting Removed events to current subscribers.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purge(true)
}

func (c *Cache) purge(notify bool) {
	if notify && len(c.subs) > 0 {
		for _, key := range c.lru.Keys() {
			if e, ok := c.lru.Peek(key); ok {
				c.publish(domain.ChangeEvent{Kind: domain.ChangeRemoved, Reason: domain.ReasonPurged, Entry: e})
			}
		}
	}
	c.explicit = true
	c.lru.Purge()
	c.explicit = false
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Capacity = c.capacity
	s.Size = c.lru.Len()
	s.Subscribers = len(c.subs)
	return s
}

func (c *Cache) remove(key domain.RecordKey) {
	c.explicit = true
	c.lru.Remove(key)
	c.explicit = false
}

// publish queues ev to every matching subscriber. Callers hold c.mu.
func (c *Cache) publish(ev domain.ChangeEvent) {
	for _, s := range c.subs {
		if s.pred == nil || s.pred(ev.Entry.Record) {
			s.enqueue(ev)
		}
	}
}
