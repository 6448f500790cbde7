package domain

import (
	"maps"
	"net"
	"net/netip"
	"slices"
	"strconv"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
)

// ServiceHandle is the caller-visible view of one discovered service
// instance. It is derived from cached PTR, SRV, TXT and address records and
// recomputed whenever they change.
type ServiceHandle struct {
	Instance string            // instance label, e.g. "HP_LaserJet"
	Service  string            // service type, e.g. "_printer._tcp.local"
	Name     string            // full instance name
	Host     string            // SRV target
	Port     uint16            // SRV port
	TXT      map[string]string // decoded TXT attributes
	Addrs    []netip.Addr      // A / AAAA records of Host, if seen
	Resolved bool              // SRV and TXT both known
}

// Key returns the canonical full instance name used to index handles.
func (h ServiceHandle) Key() string {
	return utils.CanonicalDNSName(h.Name)
}

// Address returns "host:port" suitable for net.Dial, or "" when unresolved.
func (h ServiceHandle) Address() string {
	if h.Host == "" {
		return ""
	}
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

// Equal reports whether two handles present the same view.
func (h ServiceHandle) Equal(o ServiceHandle) bool {
	return h.Instance == o.Instance &&
		h.Service == o.Service &&
		utils.CanonicalDNSName(h.Name) == utils.CanonicalDNSName(o.Name) &&
		utils.CanonicalDNSName(h.Host) == utils.CanonicalDNSName(o.Host) &&
		h.Port == o.Port &&
		h.Resolved == o.Resolved &&
		maps.Equal(h.TXT, o.TXT) &&
		slices.Equal(h.Addrs, o.Addrs)
}

func (h ServiceHandle) String() string {
	if !h.Resolved {
		return h.Name + " (unresolved)"
	}
	return h.Name + " @ " + h.Address()
}
