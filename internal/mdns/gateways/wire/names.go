package wire

import (
	"encoding/binary"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// maxPointerHops bounds compression-pointer chains while decoding a name.
const maxPointerHops = 10

// decodeName decodes a possibly compressed domain name starting at offset and
// returns it in presentation form together with the offset just past the
// name in the original byte stream.
//
// Every pointer must point strictly before the start of the segment that
// contains it, and at most maxPointerHops pointers are followed, so crafted
// loops terminate with an error.
func decodeName(msg []byte, offset int) (string, int, error) {
	var (
		labels  []string
		wireLen = 1
		hops    int
		next    = -1
		limit   = offset
	)
	for {
		if offset >= len(msg) {
			return "", 0, domain.Malformedf("name at offset %d runs past end of message", offset)
		}
		length := int(msg[offset])
		switch length & 0xC0 {
		case 0x00:
			if length == 0 {
				offset++
				if next < 0 {
					next = offset
				}
				return utils.JoinLabels(labels), next, nil
			}
			offset++
			if offset+length > len(msg) {
				return "", 0, domain.Malformedf("label length %d overflows message at offset %d", length, offset-1)
			}
			wireLen += length + 1
			if wireLen > domain.MaxNameLength {
				return "", 0, domain.Malformedf("name exceeds %d bytes", domain.MaxNameLength)
			}
			labels = append(labels, string(msg[offset:offset+length]))
			offset += length
		case 0xC0:
			if offset+1 >= len(msg) {
				return "", 0, domain.Malformedf("compression pointer at offset %d truncated", offset)
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, domain.Malformedf("more than %d compression pointers", maxPointerHops)
			}
			ptr := int(binary.BigEndian.Uint16(msg[offset:offset+2]) & 0x3FFF)
			if ptr >= limit {
				return "", 0, domain.Malformedf("compression pointer at offset %d targets %d (not backwards)", offset, ptr)
			}
			if next < 0 {
				next = offset + 2
			}
			offset = ptr
			limit = ptr
		default:
			return "", 0, domain.Malformedf("reserved label type 0x%02x at offset %d", length&0xC0, offset)
		}
	}
}

// nameTable remembers where each name suffix was first written so later
// occurrences can be replaced by a pointer (RFC 1035 §4.1.4). Suffixes are
// matched case-sensitively so decoding reproduces the encoded names exactly.
type nameTable map[string]int

// appendName appends the wire form of name to buf, compressing against table
// when it is non-nil.
func appendName(buf []byte, name string, table nameTable) ([]byte, error) {
	labels := utils.SplitLabels(name)
	wireLen := 1
	for _, l := range labels {
		if len(l) > domain.MaxLabelLength {
			return nil, domain.Encodingf("label too long (%d bytes): %q", len(l), l)
		}
		wireLen += len(l) + 1
	}
	if wireLen > domain.MaxNameLength {
		return nil, domain.Encodingf("name too long (%d bytes): %q", wireLen, name)
	}
	for i, l := range labels {
		if table != nil {
			suffix := utils.JoinLabels(labels[i:])
			if ptr, ok := table[suffix]; ok {
				return binary.BigEndian.AppendUint16(buf, 0xC000|uint16(ptr)), nil
			}
			if len(buf) <= 0x3FFF {
				table[suffix] = len(buf)
			}
		}
		buf = append(buf, byte(len(l)))
		buf = append(buf, l...)
	}
	return append(buf, 0), nil
}
