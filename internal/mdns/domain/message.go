package domain

import "fmt"

// Header is the fixed DNS message header (RFC 1035 §4.1.1). Section counts
// are not stored: the codec derives them from the section slices.
type Header struct {
	ID                 uint16
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	RCode              RCode
}

// Flags packs the header bits into the 16-bit wire flags field.
func (h Header) Flags() uint16 {
	var f uint16
	if h.Response {
		f |= 1 << 15
	}
	f |= uint16(h.Opcode&0x0F) << 11
	if h.Authoritative {
		f |= 1 << 10
	}
	if h.Truncated {
		f |= 1 << 9
	}
	if h.RecursionDesired {
		f |= 1 << 8
	}
	if h.RecursionAvailable {
		f |= 1 << 7
	}
	f |= uint16(h.RCode) & 0x0F
	return f
}

// HeaderFromFlags unpacks a wire flags field.
func HeaderFromFlags(id, flags uint16) Header {
	return Header{
		ID:                 id,
		Response:           flags&(1<<15) != 0,
		Opcode:             uint8((flags >> 11) & 0x0F),
		Authoritative:      flags&(1<<10) != 0,
		Truncated:          flags&(1<<9) != 0,
		RecursionDesired:   flags&(1<<8) != 0,
		RecursionAvailable: flags&(1<<7) != 0,
		RCode:              RCode(flags & 0x0F),
	}
}

// Message is a complete DNS message.
type Message struct {
	Header     Header
	Questions  []Question
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// Validate checks every question and record in the message.
func (m Message) Validate() error {
	for i, q := range m.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("invalid question at index %d: %w", i, err)
		}
	}
	sections := []struct {
		name    string
		records []ResourceRecord
	}{
		{"answer", m.Answers},
		{"authority", m.Authority},
		{"additional", m.Additional},
	}
	for _, s := range sections {
		for i, rr := range s.records {
			if err := rr.Validate(); err != nil {
				return fmt.Errorf("invalid %s record at index %d: %w", s.name, i, err)
			}
		}
	}
	return nil
}

// IsResponse reports whether the QR bit is set.
func (m Message) IsResponse() bool { return m.Header.Response }

// RecordCount returns the total number of resource records across all sections.
func (m Message) RecordCount() int {
	return len(m.Answers) + len(m.Authority) + len(m.Additional)
}

// CacheableRecords returns the answer and additional records, in that order.
// mDNS responders ship SRV, TXT and address records for a PTR answer in the
// additional section (RFC 6763 §12), so both are fed to the cache.
func (m Message) CacheableRecords() []ResourceRecord {
	out := make([]ResourceRecord, 0, len(m.Answers)+len(m.Additional))
	out = append(out, m.Answers...)
	out = append(out, m.Additional...)
	return out
}

// NewBrowseQuery builds a multicast PTR query for a service type. knownAnswers
// are placed in the answer section for known-answer suppression (RFC 6762 §7.1).
func NewBrowseQuery(service string, knownAnswers []ResourceRecord) (Message, error) {
	q, err := NewQuestion(service, RRTypePTR, RRClassIN)
	if err != nil {
		return Message{}, err
	}
	return Message{Questions: []Question{q}, Answers: knownAnswers}, nil
}

// NewResolveQuery builds a multicast SRV + TXT query for a service instance.
func NewResolveQuery(instance string) (Message, error) {
	srv, err := NewQuestion(instance, RRTypeSRV, RRClassIN)
	if err != nil {
		return Message{}, err
	}
	txt, err := NewQuestion(instance, RRTypeTXT, RRClassIN)
	if err != nil {
		return Message{}, err
	}
	return Message{Questions: []Question{srv, txt}}, nil
}
