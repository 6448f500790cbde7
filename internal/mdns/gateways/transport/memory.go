package transport

import (
	"context"
	"net"
	"sync"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// MemoryHub is an in-process multicast segment. Every packet sent by one
// member is delivered to every other member. It backs tests and simulations.
type MemoryHub struct {
	mu      sync.Mutex
	members map[*MemoryTransport]struct{}
	next    int
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{members: make(map[*MemoryTransport]struct{})}
}

// Join attaches a new member to the hub.
func (h *MemoryHub) Join() *MemoryTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	m := &MemoryTransport{
		hub:   h,
		addr:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, byte(h.next)), Port: Port},
		inbox: make(chan Packet, 256),
		done:  make(chan struct{}),
	}
	h.members[m] = struct{}{}
	return m
}

// Opener returns an Opener that joins a fresh member per call.
func (h *MemoryHub) Opener() Opener {
	return func(context.Context) (Transport, error) {
		return h.Join(), nil
	}
}

func (h *MemoryHub) broadcast(from *MemoryTransport, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for m := range h.members {
		if m == from {
			continue
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case m.inbox <- Packet{Data: cp, Src: from.addr}:
		default:
			// a full inbox drops, as a congested socket would
		}
	}
}

func (h *MemoryHub) leave(m *MemoryTransport) {
	h.mu.Lock()
	delete(h.members, m)
	h.mu.Unlock()
}

// MemoryTransport is one member of a MemoryHub.
type MemoryTransport struct {
	hub   *MemoryHub
	addr  *net.UDPAddr
	inbox chan Packet

	mu        sync.Mutex
	sendErr   error
	closed    bool
	done      chan struct{}
	sentCount int
}

// FailSends makes every later Send fail with err (nil restores normal sends).
func (m *MemoryTransport) FailSends(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// Sent returns the number of packets sent so far.
func (m *MemoryTransport) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentCount
}

// Addr is the member's simulated source address.
func (m *MemoryTransport) Addr() net.Addr { return m.addr }

func (m *MemoryTransport) Send(ctx context.Context, packet []byte) error {
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindTransport, "send", err)
	}
	m.mu.Lock()
	closed, sendErr := m.closed, m.sendErr
	if !closed && sendErr == nil {
		m.sentCount++
	}
	m.mu.Unlock()
	if closed {
		return domain.NewError(domain.KindTransport, "send", net.ErrClosed)
	}
	if sendErr != nil {
		return domain.NewError(domain.KindTransport, "send", sendErr)
	}
	m.hub.broadcast(m, packet)
	return nil
}

func (m *MemoryTransport) Receive(ctx context.Context) (Packet, error) {
	select {
	case p := <-m.inbox:
		return p, nil
	case <-m.done:
		return Packet{}, domain.NewError(domain.KindTransport, "receive", net.ErrClosed)
	case <-ctx.Done():
		return Packet{}, domain.NewError(domain.KindTransport, "receive", ctx.Err())
	}
}

func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.hub.leave(m)
	return nil
}

var _ Transport = (*MemoryTransport)(nil)
