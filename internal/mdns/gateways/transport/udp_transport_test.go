package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// MockPacketConn implements packetConn for testing
type MockPacketConn struct {
	mock.Mock
}

func (m *MockPacketConn) readFrom(b []byte) (int, int, net.Addr, error) {
	args := m.Called(b)
	var src net.Addr
	if a := args.Get(2); a != nil {
		src = a.(net.Addr)
	}
	return args.Int(0), args.Int(1), src, args.Error(3)
}

func (m *MockPacketConn) writeTo(b []byte, ifi *net.Interface, dst net.Addr) (int, error) {
	args := m.Called(b, ifi.Name, dst)
	return args.Int(0), args.Error(1)
}

func (m *MockPacketConn) SetReadDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *MockPacketConn) Close() error {
	return m.Called().Error(0)
}

var testGroup = &net.UDPAddr{IP: net.ParseIP(MulticastAddrIPv4), Port: Port}

func newMockTransport(pc *MockPacketConn, names ...string) *UDPTransport {
	ifaces := make([]net.Interface, len(names))
	for i, n := range names {
		ifaces[i] = net.Interface{Index: i + 1, Name: n}
	}
	return newUDPTransport("udp4", pc, testGroup, ifaces, log.NewNoopLogger())
}

func TestUDPTransport_SendFansOutPerInterface(t *testing.T) {
	packet := []byte{0, 0, 0, 0}

	tests := []struct {
		name    string
		setup   func(pc *MockPacketConn)
		wantErr bool
	}{
		{
			name: "every interface",
			setup: func(pc *MockPacketConn) {
				pc.On("writeTo", packet, "eth0", testGroup).Return(4, nil).Once()
				pc.On("writeTo", packet, "wlan0", testGroup).Return(4, nil).Once()
			},
		},
		{
			name: "one interface down",
			setup: func(pc *MockPacketConn) {
				pc.On("writeTo", packet, "eth0", testGroup).Return(0, errors.New("network is unreachable")).Once()
				pc.On("writeTo", packet, "wlan0", testGroup).Return(4, nil).Once()
			},
		},
		{
			name: "all interfaces down",
			setup: func(pc *MockPacketConn) {
				pc.On("writeTo", packet, "eth0", testGroup).Return(0, errors.New("network is unreachable")).Once()
				pc.On("writeTo", packet, "wlan0", testGroup).Return(2, nil).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := &MockPacketConn{}
			tt.setup(pc)
			tr := newMockTransport(pc, "eth0", "wlan0")

			err := tr.Send(context.Background(), packet)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrTransport))
			} else {
				assert.NoError(t, err)
			}
			pc.AssertExpectations(t)
		})
	}
}

func TestUDPTransport_SendCancelled(t *testing.T) {
	pc := &MockPacketConn{}
	tr := newMockTransport(pc, "eth0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Send(ctx, []byte{1})
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	pc.AssertNotCalled(t, "writeTo", mock.Anything, mock.Anything, mock.Anything)
}

func TestUDPTransport_ReceiveCopiesOutOfBuffer(t *testing.T) {
	pc := &MockPacketConn{}
	src := &net.UDPAddr{IP: net.ParseIP("192.168.1.20"), Port: Port}
	pc.On("SetReadDeadline", mock.Anything).Return(nil)
	pc.On("readFrom", mock.Anything).Run(func(args mock.Arguments) {
		copy(args.Get(0).([]byte), "first")
	}).Return(5, 2, src, nil).Once()
	pc.On("readFrom", mock.Anything).Run(func(args mock.Arguments) {
		copy(args.Get(0).([]byte), "SECOND")
	}).Return(6, 2, src, nil).Once()
	tr := newMockTransport(pc, "eth0")

	first, err := tr.Receive(context.Background())
	require.NoError(t, err)
	second, err := tr.Receive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte("first"), first.Data)
	assert.Equal(t, []byte("SECOND"), second.Data)
	assert.Equal(t, 2, first.IfIndex)
	assert.Equal(t, src, first.Src)
	// no deadline on the context clears the socket deadline
	pc.AssertCalled(t, "SetReadDeadline", time.Time{})
}

func TestUDPTransport_ReceiveDeadline(t *testing.T) {
	pc := &MockPacketConn{}
	deadline := time.Now().Add(time.Hour)
	pc.On("SetReadDeadline", deadline).Return(nil).Once()
	pc.On("readFrom", mock.Anything).Return(0, 0, nil, os.ErrDeadlineExceeded).Once()
	tr := newMockTransport(pc, "eth0")

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	_, err := tr.Receive(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.True(t, IsTimeout(err))
	pc.AssertExpectations(t)
}

func TestUDPTransport_CloseIsIdempotent(t *testing.T) {
	pc := &MockPacketConn{}
	pc.On("Close").Return(nil).Once()
	tr := newMockTransport(pc, "eth0")

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	pc.AssertExpectations(t)
}

func TestUDPTransport_CloseError(t *testing.T) {
	pc := &MockPacketConn{}
	pc.On("Close").Return(errors.New("bad file descriptor")).Once()
	tr := newMockTransport(pc, "eth0")

	err := tr.Close()
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.NoError(t, tr.Close())
}

// loopbackInterface returns an up loopback interface, or skips the test.
func loopbackInterface(t *testing.T) string {
	t.Helper()
	ifaces, err := net.Interfaces()
	if err != nil {
		t.Skipf("cannot list interfaces: %v", err)
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 && ifi.Flags&net.FlagUp != 0 {
			return ifi.Name
		}
	}
	t.Skip("no loopback interface")
	return ""
}

func TestUDPTransport_IPv4Loopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multicast socket test in short mode")
	}
	name := loopbackInterface(t)
	ctx := context.Background()

	tr, err := NewTransport(ctx, FamilyIPv4, Options{Interface: name, Logger: log.NewNoopLogger()})
	if err != nil {
		t.Skipf("multicast unavailable on %s: %v", name, err)
	}

	// a marker no real responder sends
	payload := []byte{0xBE, 0xEF, 0x84, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, tr.Send(ctx, payload))

	got := false
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline) && !got; {
		rctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		pkt, err := tr.Receive(rctx)
		cancel()
		if err != nil {
			require.True(t, IsTimeout(err), "unexpected receive error: %v", err)
			continue
		}
		got = string(pkt.Data) == string(payload)
	}
	if !got {
		_ = tr.Close()
		t.Skipf("multicast loopback not delivered on %s", name)
	}

	// with nothing more sent, a short receive must end in a timeout
	timedOut := false
	for i := 0; i < 20 && !timedOut; i++ {
		rctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		_, err := tr.Receive(rctx)
		cancel()
		if err != nil {
			require.True(t, IsTimeout(err), "unexpected receive error: %v", err)
			timedOut = true
		}
	}
	assert.True(t, timedOut)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err = tr.Receive(ctx)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
}
