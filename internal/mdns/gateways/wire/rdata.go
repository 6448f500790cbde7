package wire

import (
	"encoding/binary"
	"net/netip"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// decodeRData decodes the rdata occupying msg[offset:offset+length]. Names
// inside rdata may be compressed against the whole message.
func decodeRData(t domain.RRType, msg []byte, offset, length int) (domain.RData, error) {
	end := offset + length
	switch t {
	case domain.RRTypeA:
		if length != 4 {
			return nil, domain.Malformedf("A rdata length %d, want 4", length)
		}
		return domain.AData{Addr: netip.AddrFrom4([4]byte(msg[offset:end]))}, nil
	case domain.RRTypeAAAA:
		if length != 16 {
			return nil, domain.Malformedf("AAAA rdata length %d, want 16", length)
		}
		return domain.AAAAData{Addr: netip.AddrFrom16([16]byte(msg[offset:end]))}, nil
	case domain.RRTypePTR:
		target, next, err := decodeName(msg[:end], offset)
		if err != nil {
			return nil, err
		}
		if next != end {
			return nil, domain.Malformedf("PTR rdata has %d trailing bytes", end-next)
		}
		return domain.PTRData{Target: target}, nil
	case domain.RRTypeSRV:
		if length < 7 {
			return nil, domain.Malformedf("SRV rdata length %d too short", length)
		}
		target, next, err := decodeName(msg[:end], offset+6)
		if err != nil {
			return nil, err
		}
		if next != end {
			return nil, domain.Malformedf("SRV rdata has %d trailing bytes", end-next)
		}
		return domain.SRVData{
			Priority: binary.BigEndian.Uint16(msg[offset:]),
			Weight:   binary.BigEndian.Uint16(msg[offset+2:]),
			Port:     binary.BigEndian.Uint16(msg[offset+4:]),
			Target:   target,
		}, nil
	case domain.RRTypeTXT:
		return decodeTXT(msg[offset:end])
	default:
		raw := make([]byte, length)
		copy(raw, msg[offset:end])
		return domain.RawData{RRType: t, Bytes: raw}, nil
	}
}

// decodeTXT splits TXT rdata into its length-prefixed strings. A single empty
// string is how DNS-SD encodes "no attributes" (RFC 6763 §6.1) and yields no entries.
func decodeTXT(b []byte) (domain.TXTData, error) {
	var entries []string
	for i := 0; i < len(b); {
		l := int(b[i])
		i++
		if i+l > len(b) {
			return domain.TXTData{}, domain.Malformedf("TXT string length %d overflows rdata", l)
		}
		entries = append(entries, string(b[i:i+l]))
		i += l
	}
	if len(entries) == 1 && entries[0] == "" {
		entries = nil
	}
	return domain.TXTData{Entries: entries}, nil
}

// appendRData appends the wire form of data. Only PTR targets are compressed;
// SRV targets are written in full for the benefit of non-mDNS decoders (RFC 2782).
func appendRData(buf []byte, data domain.RData, table nameTable) ([]byte, error) {
	switch d := data.(type) {
	case domain.AData:
		if !d.Addr.Is4() {
			return nil, domain.Encodingf("A record address %s is not IPv4", d.Addr)
		}
		a := d.Addr.As4()
		return append(buf, a[:]...), nil
	case domain.AAAAData:
		if !d.Addr.Is6() {
			return nil, domain.Encodingf("AAAA record address %s is not IPv6", d.Addr)
		}
		a := d.Addr.As16()
		return append(buf, a[:]...), nil
	case domain.PTRData:
		return appendName(buf, d.Target, table)
	case domain.SRVData:
		buf = binary.BigEndian.AppendUint16(buf, d.Priority)
		buf = binary.BigEndian.AppendUint16(buf, d.Weight)
		buf = binary.BigEndian.AppendUint16(buf, d.Port)
		return appendName(buf, d.Target, nil)
	case domain.TXTData:
		if len(d.Entries) == 0 {
			return append(buf, 0), nil
		}
		for _, e := range d.Entries {
			if len(e) > 255 {
				return nil, domain.Encodingf("TXT string too long: %d bytes", len(e))
			}
			buf = append(buf, byte(len(e)))
			buf = append(buf, e...)
		}
		return buf, nil
	case domain.RawData:
		return append(buf, d.Bytes...), nil
	case nil:
		return nil, domain.Encodingf("record has no data")
	default:
		return nil, domain.Encodingf("unsupported rdata %T", data)
	}
}
