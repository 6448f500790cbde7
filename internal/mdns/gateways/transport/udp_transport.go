package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

const (
	// maxPacketSize covers the largest mDNS message (RFC 6762 §17).
	maxPacketSize = 9000
	readBuffer    = 64 * 1024
	multicastTTL  = 255
)

// packetConn is the subset of ipv4.PacketConn / ipv6.PacketConn the
// transport needs, normalised to report and select the interface index.
type packetConn interface {
	readFrom(b []byte) (n, ifIndex int, src net.Addr, err error)
	// writeTo sends b to dst out of ifi.
	writeTo(b []byte, ifi *net.Interface, dst net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// perPacketInterface reports whether the OS honours the interface index of
// an outgoing control message. Elsewhere the socket's multicast interface is
// switched before each write.
func perPacketInterface() bool {
	switch runtime.GOOS {
	case "darwin", "ios", "linux":
		return true
	}
	return false
}

type v4Conn struct{ *ipv4.PacketConn }

func (c v4Conn) readFrom(b []byte) (int, int, net.Addr, error) {
	n, cm, src, err := c.ReadFrom(b)
	idx := 0
	if cm != nil {
		idx = cm.IfIndex
	}
	return n, idx, src, err
}

func (c v4Conn) writeTo(b []byte, ifi *net.Interface, dst net.Addr) (int, error) {
	var cm *ipv4.ControlMessage
	if perPacketInterface() {
		cm = &ipv4.ControlMessage{IfIndex: ifi.Index}
	} else if err := c.SetMulticastInterface(ifi); err != nil {
		return 0, err
	}
	return c.WriteTo(b, cm, dst)
}

type v6Conn struct{ *ipv6.PacketConn }

func (c v6Conn) readFrom(b []byte) (int, int, net.Addr, error) {
	n, cm, src, err := c.ReadFrom(b)
	idx := 0
	if cm != nil {
		idx = cm.IfIndex
	}
	return n, idx, src, err
}

func (c v6Conn) writeTo(b []byte, ifi *net.Interface, dst net.Addr) (int, error) {
	var cm *ipv6.ControlMessage
	if perPacketInterface() {
		cm = &ipv6.ControlMessage{IfIndex: ifi.Index}
	} else if err := c.SetMulticastInterface(ifi); err != nil {
		return 0, err
	}
	return c.WriteTo(b, cm, dst)
}

// UDPTransport implements Transport over a UDP socket bound to port 5353
// with SO_REUSEADDR/SO_REUSEPORT, so it coexists with a system responder.
// Queries go out once on every joined interface.
type UDPTransport struct {
	network string
	pc      packetConn
	group   *net.UDPAddr
	ifaces  []net.Interface
	logger  log.Logger

	sendMu sync.Mutex
	mu     sync.Mutex
	closed bool
	buf    []byte
}

func newUDPTransport(network string, pc packetConn, group *net.UDPAddr, ifaces []net.Interface, logger log.Logger) *UDPTransport {
	return &UDPTransport{network: network, pc: pc, group: group, ifaces: ifaces, logger: logger, buf: make([]byte, maxPacketSize)}
}

func listen(ctx context.Context, network, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "bind "+addr, err)
	}
	if uc, ok := conn.(*net.UDPConn); ok {
		_ = uc.SetReadBuffer(readBuffer)
	}
	return conn, nil
}

func openIPv4(ctx context.Context, ifi *net.Interface, logger log.Logger) (*UDPTransport, error) {
	group := &net.UDPAddr{IP: net.ParseIP(MulticastAddrIPv4), Port: Port}
	conn, err := listen(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(Port)))
	if err != nil {
		return nil, err
	}
	p := ipv4.NewPacketConn(conn)

	ifaces, err := multicastInterfaces(ifi)
	if err != nil {
		_ = conn.Close()
		return nil, domain.NewError(domain.KindTransport, "list interfaces", err)
	}
	var joined []net.Interface
	for i := range ifaces {
		if err := p.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group.IP}); err != nil {
			logger.Debug(map[string]any{"interface": ifaces[i].Name, "error": err.Error()}, "skip interface: ipv4 group join failed")
			continue
		}
		joined = append(joined, ifaces[i])
	}
	if len(joined) == 0 {
		_ = conn.Close()
		return nil, domain.NewError(domain.KindTransport, "join "+MulticastAddrIPv4, errors.New("no multicast-capable interface"))
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			_ = conn.Close()
			return nil, domain.NewError(domain.KindTransport, "set multicast interface", err)
		}
	}
	if err := p.SetMulticastTTL(multicastTTL); err != nil {
		_ = conn.Close()
		return nil, domain.NewError(domain.KindTransport, "set multicast ttl", err)
	}
	_ = p.SetMulticastLoopback(true)
	// best-effort: without it IfIndex stays 0
	_ = p.SetControlMessage(ipv4.FlagInterface, true)

	logger.Info(map[string]any{"transport": "udp4", "group": group.String(), "interfaces": len(joined)}, "mDNS transport opened")
	return newUDPTransport("udp4", v4Conn{p}, group, joined, logger), nil
}

func openIPv6(ctx context.Context, ifi *net.Interface, logger log.Logger) (*UDPTransport, error) {
	group := &net.UDPAddr{IP: net.ParseIP(MulticastAddrIPv6), Port: Port}
	conn, err := listen(ctx, "udp6", net.JoinHostPort("::", strconv.Itoa(Port)))
	if err != nil {
		return nil, err
	}
	p := ipv6.NewPacketConn(conn)

	ifaces, err := multicastInterfaces(ifi)
	if err != nil {
		_ = conn.Close()
		return nil, domain.NewError(domain.KindTransport, "list interfaces", err)
	}
	var joined []net.Interface
	for i := range ifaces {
		if err := p.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group.IP}); err != nil {
			logger.Debug(map[string]any{"interface": ifaces[i].Name, "error": err.Error()}, "skip interface: ipv6 group join failed")
			continue
		}
		joined = append(joined, ifaces[i])
	}
	if len(joined) == 0 {
		_ = conn.Close()
		return nil, domain.NewError(domain.KindTransport, "join "+MulticastAddrIPv6, errors.New("no multicast-capable interface"))
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			_ = conn.Close()
			return nil, domain.NewError(domain.KindTransport, "set multicast interface", err)
		}
	}
	if err := p.SetMulticastHopLimit(multicastTTL); err != nil {
		_ = conn.Close()
		return nil, domain.NewError(domain.KindTransport, "set multicast hop limit", err)
	}
	_ = p.SetMulticastLoopback(true)
	_ = p.SetControlMessage(ipv6.FlagInterface, true)

	logger.Info(map[string]any{"transport": "udp6", "group": group.String(), "interfaces": len(joined)}, "mDNS transport opened")
	return newUDPTransport("udp6", v6Conn{p}, group, joined, logger), nil
}

// Send multicasts packet to the mDNS group on every joined interface. It
// fails only when no interface accepted the packet.
func (t *UDPTransport) Send(ctx context.Context, packet []byte) error {
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindTransport, "send", err)
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	sent := 0
	var lastErr error
	for i := range t.ifaces {
		ifi := &t.ifaces[i]
		n, err := t.pc.writeTo(packet, ifi, t.group)
		if err == nil && n != len(packet) {
			err = fmt.Errorf("partial write: %d/%d bytes", n, len(packet))
		}
		if err != nil {
			lastErr = err
			t.logger.Debug(map[string]any{"interface": ifi.Name, "error": err.Error()}, "send failed on interface")
			continue
		}
		sent++
	}
	if sent == 0 {
		if lastErr == nil {
			lastErr = errors.New("no interfaces")
		}
		return domain.NewError(domain.KindTransport, fmt.Sprintf("send %d bytes to %s", len(packet), t.group), lastErr)
	}
	return nil
}

// Receive reads the next datagram. Only one goroutine may call Receive at a time.
func (t *UDPTransport) Receive(ctx context.Context) (Packet, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, domain.NewError(domain.KindTransport, "receive", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := t.pc.SetReadDeadline(deadline); err != nil {
		return Packet{}, domain.NewError(domain.KindTransport, "set read deadline", err)
	}
	n, idx, src, err := t.pc.readFrom(t.buf)
	if err != nil {
		return Packet{}, domain.NewError(domain.KindTransport, "receive", err)
	}
	data := make([]byte, n)
	copy(data, t.buf[:n])
	return Packet{Data: data, Src: src, IfIndex: idx}, nil
}

// Close releases the socket.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.pc.Close(); err != nil {
		t.logger.Warn(map[string]any{"error": err.Error()}, "error closing mDNS socket")
		return domain.NewError(domain.KindTransport, "close", err)
	}
	t.logger.Info(map[string]any{"transport": t.network}, "mDNS transport closed")
	return nil
}

var _ Transport = (*UDPTransport)(nil)
