package domain

import (
	"bytes"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
)

// RData is the type-specific payload of a ResourceRecord.
type RData interface {
	// Type is the record type this payload belongs to.
	Type() RRType
	// String renders the payload in presentation format.
	String() string
}

// PTRData points a service type at one of its instances.
type PTRData struct {
	Target string
}

func (PTRData) Type() RRType     { return RRTypePTR }
func (d PTRData) String() string { return d.Target + "." }

// SRVData locates a service instance (RFC 2782).
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (SRVData) Type() RRType { return RRTypeSRV }
func (d SRVData) String() string {
	return fmt.Sprintf("%d %d %d %s.", d.Priority, d.Weight, d.Port, d.Target)
}

// TXTData holds the ordered character-strings of a TXT record. DNS-SD puts
// one key=value pair in each string (RFC 6763 §6).
type TXTData struct {
	Entries []string
}

func (TXTData) Type() RRType { return RRTypeTXT }
func (d TXTData) String() string {
	quoted := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		quoted[i] = fmt.Sprintf("%q", e)
	}
	return strings.Join(quoted, " ")
}

// Map decodes the entries as DNS-SD key/value pairs. Keys are compared
// case-insensitively and returned lower-cased; the first occurrence of a key
// wins. An entry without '=' is a boolean attribute and maps to "".
// Entries with an empty key are ignored.
func (d TXTData) Map() map[string]string {
	out := make(map[string]string, len(d.Entries))
	for _, e := range d.Entries {
		key, value, _ := strings.Cut(e, "=")
		if key == "" {
			continue
		}
		key = strings.ToLower(key)
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = value
	}
	return out
}

// NewTXTData builds TXTData from a key/value map with keys in sorted order so
// the encoding is deterministic. An empty value is encoded as a bare key.
func NewTXTData(kv map[string]string) TXTData {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var entries []string
	for _, k := range keys {
		if k == "" {
			continue
		}
		if kv[k] == "" {
			entries = append(entries, k)
			continue
		}
		entries = append(entries, k+"="+kv[k])
	}
	return TXTData{Entries: entries}
}

// normalized collapses the single empty string RFC 6763 §6.1 uses for "no
// attributes" to nil, the form the decoder produces.
func (d TXTData) normalized() TXTData {
	if len(d.Entries) == 0 || (len(d.Entries) == 1 && d.Entries[0] == "") {
		return TXTData{}
	}
	return d
}

// AData is an IPv4 host address.
type AData struct {
	Addr netip.Addr
}

func (AData) Type() RRType     { return RRTypeA }
func (d AData) String() string { return d.Addr.String() }

// AAAAData is an IPv6 host address.
type AAAAData struct {
	Addr netip.Addr
}

func (AAAAData) Type() RRType     { return RRTypeAAAA }
func (d AAAAData) String() string { return d.Addr.String() }

// RawData keeps the undecoded rdata of record types the client does not
// interpret (NSEC, HINFO, ...).
type RawData struct {
	RRType RRType
	Bytes  []byte
}

func (d RawData) Type() RRType   { return d.RRType }
func (d RawData) String() string { return fmt.Sprintf("\\# %d %x", len(d.Bytes), d.Bytes) }

// EqualRData reports whether two payloads carry the same data. Names compare
// case-insensitively.
func EqualRData(a, b RData) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case PTRData:
		y, ok := b.(PTRData)
		return ok && utils.CanonicalDNSName(x.Target) == utils.CanonicalDNSName(y.Target)
	case SRVData:
		y, ok := b.(SRVData)
		return ok && x.Priority == y.Priority && x.Weight == y.Weight && x.Port == y.Port &&
			utils.CanonicalDNSName(x.Target) == utils.CanonicalDNSName(y.Target)
	case TXTData:
		y, ok := b.(TXTData)
		if !ok || len(x.Entries) != len(y.Entries) {
			return false
		}
		for i := range x.Entries {
			if x.Entries[i] != y.Entries[i] {
				return false
			}
		}
		return true
	case AData:
		y, ok := b.(AData)
		return ok && x.Addr == y.Addr
	case AAAAData:
		y, ok := b.(AAAAData)
		return ok && x.Addr == y.Addr
	case RawData:
		y, ok := b.(RawData)
		return ok && bytes.Equal(x.Bytes, y.Bytes)
	default:
		return false
	}
}
