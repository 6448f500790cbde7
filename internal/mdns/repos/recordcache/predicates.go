package recordcache

import (
	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// ForService matches the records that make up instances of a service type:
// its PTR records, SRV and TXT records of direct child instances, and address
// records (which hosts they belong to is only known after the SRV join).
func ForService(service string) Predicate {
	canonical := utils.CanonicalDNSName(service)
	return func(rr domain.ResourceRecord) bool {
		switch rr.Type {
		case domain.RRTypePTR:
			return utils.CanonicalDNSName(rr.Name) == canonical
		case domain.RRTypeSRV, domain.RRTypeTXT:
			_, ok := utils.InstanceLabel(rr.Name, canonical)
			return ok
		case domain.RRTypeA, domain.RRTypeAAAA:
			return true
		default:
			return false
		}
	}
}

// ForName matches records owned by name, compared case-insensitively.
func ForName(name string) Predicate {
	canonical := utils.CanonicalDNSName(name)
	return func(rr domain.ResourceRecord) bool {
		return utils.CanonicalDNSName(rr.Name) == canonical
	}
}

// ForType matches records of type t.
func ForType(t domain.RRType) Predicate {
	return func(rr domain.ResourceRecord) bool { return rr.Type == t }
}

// And matches when every predicate matches. Nil predicates are skipped.
func And(preds ...Predicate) Predicate {
	return func(rr domain.ResourceRecord) bool {
		for _, p := range preds {
			if p != nil && !p(rr) {
				return false
			}
		}
		return true
	}
}
