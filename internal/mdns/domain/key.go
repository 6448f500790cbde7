package domain

import "github.com/haukened/rr-mdns/internal/mdns/common/utils"

// RecordKey identifies one live cache entry.
//
// Unique records (SRV, TXT, A, AAAA, ...) are keyed by (name, type, class).
// PTR records are shared (RFC 6762 §2): every instance of a service type hangs
// off the same owner name, so Shared carries the canonical PTR target to keep
// one entry per instance.
type RecordKey struct {
	Name   string
	Type   RRType
	Class  RRClass
	Shared string
}

// NewRecordKey returns the key for a unique record.
func NewRecordKey(name string, t RRType, c RRClass) RecordKey {
	return RecordKey{Name: utils.CanonicalDNSName(name), Type: t, Class: c}
}

// KeyOf returns the cache key of rr.
func KeyOf(rr ResourceRecord) RecordKey {
	k := NewRecordKey(rr.Name, rr.Type, rr.Class)
	if ptr, ok := rr.Data.(PTRData); ok {
		k.Shared = utils.CanonicalDNSName(ptr.Target)
	}
	return k
}

// String formats the key as "name|TYPE|CLASS" with "|target" appended for shared records.
// Uses pipe (|) separator to avoid conflicts with colons in IPv6 addresses.
func (k RecordKey) String() string {
	s := k.Name + "|" + k.Type.String() + "|" + k.Class.String()
	if k.Shared != "" {
		s += "|" + k.Shared
	}
	return s
}
