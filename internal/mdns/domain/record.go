package domain

import (
	"fmt"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
)

// ResourceRecord is a decoded DNS resource record. Records are values: once
// decoded they are never mutated, the cache wraps them in CachedEntry instead.
type ResourceRecord struct {
	Name       string
	Type       RRType
	Class      RRClass
	CacheFlush bool // mDNS cache-flush bit (RFC 6762 §10.2)
	TTL        uint32
	Data       RData
}

// NewResourceRecord constructs an IN-class ResourceRecord whose type is taken
// from data, and validates it.
func NewResourceRecord(name string, ttl uint32, data RData) (ResourceRecord, error) {
	if data == nil {
		return ResourceRecord{}, fmt.Errorf("record data must not be nil")
	}
	if txt, ok := data.(TXTData); ok {
		data = txt.normalized()
	}
	rr := ResourceRecord{
		Name:  utils.TrimDot(name),
		Type:  data.Type(),
		Class: RRClassIN,
		TTL:   ttl,
		Data:  data,
	}
	if err := rr.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return rr, nil
}

// Validate checks whether the ResourceRecord fields are valid.
func (rr ResourceRecord) Validate() error {
	if rr.Name == "" {
		return fmt.Errorf("record name must not be empty")
	}
	if err := ValidateName(rr.Name); err != nil {
		return err
	}
	if rr.Data == nil {
		return fmt.Errorf("record data must not be nil")
	}
	if rr.Data.Type() != rr.Type {
		return fmt.Errorf("record type %s does not match data type %s", rr.Type, rr.Data.Type())
	}
	return nil
}

// Key returns the cache identity of the record.
func (rr ResourceRecord) Key() RecordKey {
	return KeyOf(rr)
}

// IsGoodbye reports whether the record withdraws a previous announcement.
func (rr ResourceRecord) IsGoodbye() bool {
	return rr.TTL == 0
}

// TTLDuration returns the TTL as a time.Duration.
func (rr ResourceRecord) TTLDuration() time.Duration {
	return time.Duration(rr.TTL) * time.Second
}

// SameData reports whether rr and other carry identical rdata.
func (rr ResourceRecord) SameData(other ResourceRecord) bool {
	return rr.Type == other.Type && EqualRData(rr.Data, other.Data)
}

// String renders the record in zone-file presentation format.
func (rr ResourceRecord) String() string {
	data := ""
	if rr.Data != nil {
		data = rr.Data.String()
	}
	return fmt.Sprintf("%s.\t%d\t%s\t%s\t%s", rr.Name, rr.TTL, rr.Class, rr.Type, data)
}
