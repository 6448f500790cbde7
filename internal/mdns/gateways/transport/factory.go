package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// Options configures a multicast transport.
type Options struct {
	// Interface restricts the transport to one network interface by name.
	// Empty joins the group on every up, multicast-capable interface.
	Interface string
	Logger    log.Logger
}

// Opener opens a transport. Sessions take an Opener so tests can substitute
// an in-memory transport.
type Opener func(ctx context.Context) (Transport, error)

// NewTransport opens a multicast transport for the given family.
// This factory function keeps the session independent of the socket details.
func NewTransport(ctx context.Context, family Family, opts Options) (Transport, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	ifi, err := lookupInterface(opts.Interface)
	if err != nil {
		return nil, err
	}
	var t *UDPTransport
	switch family {
	case FamilyIPv4, "":
		t, err = openIPv4(ctx, ifi, opts.Logger)
	case FamilyIPv6:
		t, err = openIPv6(ctx, ifi, opts.Logger)
	default:
		return nil, domain.NewError(domain.KindTransport, fmt.Sprintf("unsupported transport family %q", family), nil)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewOpener binds family and opts into an Opener.
func NewOpener(family Family, opts Options) Opener {
	return func(ctx context.Context) (Transport, error) {
		return NewTransport(ctx, family, opts)
	}
}

// GetSupportedFamilies returns the transport families that can be opened.
func GetSupportedFamilies() []Family {
	return []Family{FamilyIPv4, FamilyIPv6}
}

// IsFamilySupported checks if a given family is supported.
func IsFamilySupported(f Family) bool {
	for _, s := range GetSupportedFamilies() {
		if s == f {
			return true
		}
	}
	return false
}

func lookupInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, fmt.Sprintf("lookup interface %q", name), err)
	}
	return ifi, nil
}

// multicastInterfaces returns ifi alone, or every up interface with multicast support.
func multicastInterfaces(ifi *net.Interface) ([]net.Interface, error) {
	if ifi != nil {
		return []net.Interface{*ifi}, nil
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]net.Interface, 0, len(all))
	for _, i := range all {
		if i.Flags&net.FlagUp != 0 && i.Flags&net.FlagMulticast != 0 {
			out = append(out, i)
		}
	}
	return out, nil
}
