package domain

// RRClass represents a DNS class. mDNS only uses IN, but the top bit of the
// class field is overloaded (RFC 6762 §10.2, §5.4) and is split out before a
// value of this type is built.
type RRClass uint16

// DNS Resource Record Class constants
const (
	RRClassIN  RRClass = 1   // IN - Internet
	RRClassANY RRClass = 255 // ANY - Any class (query only)
)

// ClassTopBit is the cache-flush bit in records and the unicast-response bit in questions.
const ClassTopBit uint16 = 0x8000

// IsValid returns true if the RRClass is one of the supported classes.
func (c RRClass) IsValid() bool {
	switch c {
	case RRClassIN, RRClassANY:
		return true
	default:
		return false
	}
}

// String returns the textual representation of the RRClass.
func (c RRClass) String() string {
	switch c {
	case RRClassIN:
		return "IN"
	case RRClassANY:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}
