package querier

import (
	"net/netip"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// Handle joins the cached SRV, TXT and address records of a full instance
// name into a ServiceHandle. Resolved is set when both SRV and TXT are live.
func (e *Engine) Handle(name string) domain.ServiceHandle {
	name = utils.CanonicalDNSName(name)
	h := domain.ServiceHandle{Service: e.service, Name: name}
	if label, ok := utils.InstanceLabel(name, e.service); ok {
		h.Instance = label
	}

	srvEntry, haveSRV := e.cache.Lookup(domain.NewRecordKey(name, domain.RRTypeSRV, domain.RRClassIN))
	if haveSRV {
		if srv, ok := srvEntry.Record.Data.(domain.SRVData); ok {
			h.Host = utils.CanonicalDNSName(srv.Target)
			h.Port = srv.Port
			// recover the display-case instance label from the record itself
			if label, ok := utils.InstanceLabel(srvEntry.Record.Name, e.service); ok {
				h.Instance = label
			}
		} else {
			haveSRV = false
		}
	}

	txtEntry, haveTXT := e.cache.Lookup(domain.NewRecordKey(name, domain.RRTypeTXT, domain.RRClassIN))
	if haveTXT {
		if txt, ok := txtEntry.Record.Data.(domain.TXTData); ok {
			h.TXT = txt.Map()
		} else {
			haveTXT = false
		}
	}

	if h.Host != "" {
		h.Addrs = e.hostAddrs(h.Host)
	}
	h.Resolved = haveSRV && haveTXT
	return h
}

// hostAddrs returns the cached IPv4 then IPv6 address of host.
func (e *Engine) hostAddrs(host string) []netip.Addr {
	var out []netip.Addr
	if entry, ok := e.cache.Lookup(domain.NewRecordKey(host, domain.RRTypeA, domain.RRClassIN)); ok {
		if a, ok := entry.Record.Data.(domain.AData); ok {
			out = append(out, a.Addr)
		}
	}
	if entry, ok := e.cache.Lookup(domain.NewRecordKey(host, domain.RRTypeAAAA, domain.RRClassIN)); ok {
		if a, ok := entry.Record.Data.(domain.AAAAData); ok {
			out = append(out, a.Addr)
		}
	}
	return out
}
