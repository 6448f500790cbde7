package domain

import (
	"fmt"
	"time"
)

// CachedEntry is a ResourceRecord as held by the record cache: the record
// itself plus its arrival time, absolute expiry and the sequence number of
// the insert that last touched it.
type CachedEntry struct {
	Record    ResourceRecord
	ArrivedAt time.Time
	ExpiresAt time.Time
	Seq       uint64
}

// NewCachedEntry wraps rr with an expiry derived from its TTL at arrival.
func NewCachedEntry(rr ResourceRecord, arrival time.Time, seq uint64) CachedEntry {
	return CachedEntry{
		Record:    rr,
		ArrivedAt: arrival,
		ExpiresAt: arrival.Add(rr.TTLDuration()),
		Seq:       seq,
	}
}

// Key returns the cache key of the wrapped record.
func (e CachedEntry) Key() RecordKey { return e.Record.Key() }

// Remaining returns the time left before expiry, never negative.
func (e CachedEntry) Remaining(now time.Time) time.Duration {
	d := e.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired reports whether the entry's expiry is not after now.
func (e CachedEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// RemainingFraction returns the share of the original TTL still left, in [0,1].
func (e CachedEntry) RemainingFraction(now time.Time) float64 {
	total := e.ExpiresAt.Sub(e.ArrivedAt)
	if total <= 0 {
		return 0
	}
	return float64(e.Remaining(now)) / float64(total)
}

// ChangeKind classifies the outcome of a cache mutation.
type ChangeKind uint8

const (
	// ChangeNone: the insert was ignored (stale or unknown goodbye).
	ChangeNone ChangeKind = iota
	// ChangeAdded: a new key entered the cache.
	ChangeAdded
	// ChangeUpdated: an existing key received different rdata.
	ChangeUpdated
	// ChangeRemoved: a key left the cache.
	ChangeRemoved
	// ChangeRefreshed: identical rdata re-announced; expiry extended, no event.
	ChangeRefreshed
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNone:
		return "none"
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	case ChangeRefreshed:
		return "refreshed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", k)
	}
}

// RemovalReason says why an entry left the cache.
type RemovalReason uint8

const (
	ReasonNone RemovalReason = iota
	ReasonGoodbye
	ReasonExpired
	ReasonEvicted
	ReasonPurged
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonGoodbye:
		return "goodbye"
	case ReasonExpired:
		return "expired"
	case ReasonEvicted:
		return "evicted"
	case ReasonPurged:
		return "purged"
	default:
		return fmt.Sprintf("RemovalReason(%d)", r)
	}
}

// ChangeEvent is one entry of a cache subscription feed. For removals Entry
// holds the last cached value.
type ChangeEvent struct {
	Kind   ChangeKind
	Reason RemovalReason
	Entry  CachedEntry
}

// Key returns the key of the changed entry.
func (ev ChangeEvent) Key() RecordKey { return ev.Entry.Key() }
