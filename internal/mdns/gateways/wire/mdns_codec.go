// Package wire provides encoding and decoding of mDNS messages.
// It handles the DNS wire format as specified in RFC 1035, with the class
// bit overloads of RFC 6762.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

const headerLen = 12

// mdnsCodec implements the Codec interface for multicast DNS messages.
type mdnsCodec struct {
	logger log.Logger
}

// NewMDNSCodec creates and returns a new instance of mdnsCodec using the provided logger.
func NewMDNSCodec(logger log.Logger) *mdnsCodec {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &mdnsCodec{
		logger: logger,
	}
}

// Encode serializes msg. Section counts are computed from the slices and
// names are compressed. The output is deterministic for a given message.
func (c *mdnsCodec) Encode(msg domain.Message) ([]byte, error) {
	counts := []int{len(msg.Questions), len(msg.Answers), len(msg.Authority), len(msg.Additional)}
	for _, n := range counts {
		if n > 0xFFFF {
			return nil, domain.Encodingf("section holds %d entries (max 65535)", n)
		}
	}

	buf := make([]byte, 0, 512)
	buf = binary.BigEndian.AppendUint16(buf, msg.Header.ID)
	buf = binary.BigEndian.AppendUint16(buf, msg.Header.Flags())
	for _, n := range counts {
		buf = binary.BigEndian.AppendUint16(buf, uint16(n))
	}

	table := nameTable{}
	var err error
	for i, q := range msg.Questions {
		buf, err = appendName(buf, q.Name, table)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		class := uint16(q.Class)
		if q.UnicastResponse {
			class |= domain.ClassTopBit
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(q.Type))
		buf = binary.BigEndian.AppendUint16(buf, class)
	}

	sections := []struct {
		name    string
		records []domain.ResourceRecord
	}{
		{"answer", msg.Answers},
		{"authority", msg.Authority},
		{"additional", msg.Additional},
	}
	for _, s := range sections {
		for i, rr := range s.records {
			buf, err = c.appendRecord(buf, rr, table)
			if err != nil {
				return nil, fmt.Errorf("%s record %d: %w", s.name, i, err)
			}
		}
	}

	c.logger.Debug(map[string]any{
		"id":   msg.Header.ID,
		"qd":   counts[0],
		"an":   counts[1],
		"ns":   counts[2],
		"ar":   counts[3],
		"size": len(buf),
	}, "encoded mdns message")
	return buf, nil
}

func (c *mdnsCodec) appendRecord(buf []byte, rr domain.ResourceRecord, table nameTable) ([]byte, error) {
	buf, err := appendName(buf, rr.Name, table)
	if err != nil {
		return nil, err
	}
	class := uint16(rr.Class)
	if rr.CacheFlush {
		class |= domain.ClassTopBit
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(rr.Type))
	buf = binary.BigEndian.AppendUint16(buf, class)
	buf = binary.BigEndian.AppendUint32(buf, rr.TTL)

	lenAt := len(buf)
	buf = append(buf, 0, 0) // rdlength, patched below
	buf, err = appendRData(buf, rr.Data, table)
	if err != nil {
		return nil, err
	}
	rdLen := len(buf) - lenAt - 2
	if rdLen > 0xFFFF {
		return nil, domain.Encodingf("rdata too large: %d bytes (max 65535)", rdLen)
	}
	binary.BigEndian.PutUint16(buf[lenAt:], uint16(rdLen))
	return buf, nil
}

// Decode parses a raw mDNS packet. Every failure is a KindMalformedPacket
// error; declared section counts must be backed by actual data.
func (c *mdnsCodec) Decode(data []byte) (domain.Message, error) {
	if len(data) < headerLen {
		return domain.Message{}, domain.Malformedf("message too short: %d bytes", len(data))
	}
	id := binary.BigEndian.Uint16(data[0:2])
	flags := binary.BigEndian.Uint16(data[2:4])
	qdCount := int(binary.BigEndian.Uint16(data[4:6]))
	anCount := int(binary.BigEndian.Uint16(data[6:8]))
	nsCount := int(binary.BigEndian.Uint16(data[8:10]))
	arCount := int(binary.BigEndian.Uint16(data[10:12]))

	// Each question needs at least 5 bytes and each record at least 11, so
	// counts that cannot fit are rejected before any allocation.
	if minLen := headerLen + qdCount*5 + (anCount+nsCount+arCount)*11; minLen > len(data) {
		return domain.Message{}, domain.Malformedf("declared counts need at least %d bytes, have %d", minLen, len(data))
	}

	msg := domain.Message{Header: domain.HeaderFromFlags(id, flags)}
	offset := headerLen

	if qdCount > 0 {
		msg.Questions = make([]domain.Question, 0, qdCount)
	}
	for i := 0; i < qdCount; i++ {
		q, next, err := decodeQuestion(data, offset)
		if err != nil {
			return domain.Message{}, fmt.Errorf("question %d: %w", i, err)
		}
		msg.Questions = append(msg.Questions, q)
		offset = next
	}

	var err error
	if msg.Answers, offset, err = c.decodeSection(data, offset, anCount, "answer"); err != nil {
		return domain.Message{}, err
	}
	if msg.Authority, offset, err = c.decodeSection(data, offset, nsCount, "authority"); err != nil {
		return domain.Message{}, err
	}
	if msg.Additional, offset, err = c.decodeSection(data, offset, arCount, "additional"); err != nil {
		return domain.Message{}, err
	}

	if offset != len(data) {
		c.logger.Debug(map[string]any{"id": id, "trailing": len(data) - offset}, "ignoring trailing bytes after last record")
	}
	return msg, nil
}

func decodeQuestion(data []byte, offset int) (domain.Question, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.Question{}, 0, err
	}
	if offset+4 > len(data) {
		return domain.Question{}, 0, domain.Malformedf("question truncated after name")
	}
	qtype := binary.BigEndian.Uint16(data[offset:])
	qclass := binary.BigEndian.Uint16(data[offset+2:])
	return domain.Question{
		Name:            name,
		Type:            domain.RRType(qtype),
		Class:           domain.RRClass(qclass &^ domain.ClassTopBit),
		UnicastResponse: qclass&domain.ClassTopBit != 0,
	}, offset + 4, nil
}

func (c *mdnsCodec) decodeSection(data []byte, offset, count int, section string) ([]domain.ResourceRecord, int, error) {
	if count == 0 {
		return nil, offset, nil
	}
	out := make([]domain.ResourceRecord, 0, count)
	for i := 0; i < count; i++ {
		rr, next, err := parseResourceRecord(data, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse %s record %d: %w", section, i, err)
		}
		out = append(out, rr)
		offset = next
	}
	return out, offset, nil
}

// parseResourceRecord extracts a single resource record starting at offset.
func parseResourceRecord(data []byte, offset int) (domain.ResourceRecord, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if offset+10 > len(data) {
		return domain.ResourceRecord{}, 0, domain.Malformedf("record truncated after name")
	}
	typ := domain.RRType(binary.BigEndian.Uint16(data[offset:]))
	class := binary.BigEndian.Uint16(data[offset+2:])
	ttl := binary.BigEndian.Uint32(data[offset+4:])
	rdLen := int(binary.BigEndian.Uint16(data[offset+8:]))
	offset += 10

	if offset+rdLen > len(data) {
		return domain.ResourceRecord{}, 0, domain.Malformedf("rdlength %d overflows message", rdLen)
	}
	rdata, err := decodeRData(typ, data, offset, rdLen)
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%s rdata: %w", typ, err)
	}

	return domain.ResourceRecord{
		Name:       name,
		Type:       typ,
		Class:      domain.RRClass(class &^ domain.ClassTopBit),
		CacheFlush: class&domain.ClassTopBit != 0,
		TTL:        ttl,
		Data:       rdata,
	}, offset + rdLen, nil
}

var _ Codec = &mdnsCodec{}
