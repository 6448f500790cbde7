// Package transport provides the multicast network transport for mDNS.
//
// It decouples the query engine from sockets so that IPv4, IPv6 and the
// in-memory transport used by tests are interchangeable.
package transport

import (
	"context"
	"errors"
	"net"
	"os"
)

// Standard mDNS endpoints (RFC 6762 §3).
const (
	Port              = 5353
	MulticastAddrIPv4 = "224.0.0.251"
	MulticastAddrIPv6 = "ff02::fb"
)

// Packet is one datagram received from the network.
type Packet struct {
	Data    []byte
	Src     net.Addr
	IfIndex int // receiving interface, 0 when unknown
}

// Transport sends to and receives from the mDNS multicast group.
//
// All errors are *domain.Error values of kind domain.KindTransport.
type Transport interface {
	// Send multicasts packet to the group.
	Send(ctx context.Context, packet []byte) error

	// Receive waits for the next datagram. The context deadline is applied
	// to the socket; IsTimeout reports whether an error is such a deadline.
	Receive(ctx context.Context) (Packet, error)

	// Close releases the socket. It is safe to call more than once.
	Close() error
}

// Family selects the IP family of a transport.
type Family string

const (
	FamilyIPv4 Family = "ipv4"
	FamilyIPv6 Family = "ipv6"
)

// IsTimeout reports whether err is a receive deadline expiring, which the
// worker loop treats as a normal poll tick rather than a failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
