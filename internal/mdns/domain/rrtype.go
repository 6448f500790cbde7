package domain

import "fmt"

// RRType represents a DNS resource record type (e.g. PTR, SRV, TXT).
// See IANA DNS Parameters for assigned codes.
type RRType uint16

// DNS Resource Record Type constants used by mDNS / DNS-SD.
const (
	RRTypeA     RRType = 1   // A - IPv4 address
	RRTypeCNAME RRType = 5   // CNAME - Canonical name
	RRTypePTR   RRType = 12  // PTR - Pointer (service enumeration)
	RRTypeHINFO RRType = 13  // HINFO - Host information
	RRTypeTXT   RRType = 16  // TXT - Text (service metadata)
	RRTypeAAAA  RRType = 28  // AAAA - IPv6 address
	RRTypeSRV   RRType = 33  // SRV - Service location
	RRTypeOPT   RRType = 41  // OPT - EDNS option
	RRTypeNSEC  RRType = 47  // NSEC - Negative responses in mDNS (RFC 6762 §6.1)
	RRTypeANY   RRType = 255 // ANY - Any type (query only)
)

// IsValid returns true if the RRType is one this client understands.
// Unknown types are still decoded, as opaque RawData.
func (t RRType) IsValid() bool {
	switch t {
	case RRTypeA, RRTypeCNAME, RRTypePTR, RRTypeHINFO, RRTypeTXT, RRTypeAAAA,
		RRTypeSRV, RRTypeOPT, RRTypeNSEC, RRTypeANY:
		return true
	default:
		return false
	}
}

// String returns the textual representation of the RRType.
// For unknown types, it returns "UNKNOWN(<value>)".
func (t RRType) String() string {
	switch t {
	case RRTypeA:
		return "A"
	case RRTypeCNAME:
		return "CNAME"
	case RRTypePTR:
		return "PTR"
	case RRTypeHINFO:
		return "HINFO"
	case RRTypeTXT:
		return "TXT"
	case RRTypeAAAA:
		return "AAAA"
	case RRTypeSRV:
		return "SRV"
	case RRTypeOPT:
		return "OPT"
	case RRTypeNSEC:
		return "NSEC"
	case RRTypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}
