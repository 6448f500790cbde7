package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
)

const (
	printerService = "_printer._tcp.local"
	hpInstance     = "HP_LaserJet._printer._tcp.local"
)

type recorder struct {
	mu      sync.Mutex
	found   []ServiceHandle
	lost    []ServiceHandle
	updated []ServiceHandle
}

func (r *recorder) attach(s *Session) {
	s.OnServiceFound(func(h ServiceHandle) { r.mu.Lock(); r.found = append(r.found, h); r.mu.Unlock() })
	s.OnServiceLost(func(h ServiceHandle) { r.mu.Lock(); r.lost = append(r.lost, h); r.mu.Unlock() })
	s.OnServiceUpdated(func(h ServiceHandle) { r.mu.Lock(); r.updated = append(r.updated, h); r.mu.Unlock() })
}

func (r *recorder) counts() (found, lost, updated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.found), len(r.lost), len(r.updated)
}

type network struct {
	hub       *transport.MemoryHub
	responder *transport.MemoryTransport
	codec     interface {
		Encode(domain.Message) ([]byte, error)
	}
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	hub := transport.NewMemoryHub()
	responder := hub.Join()
	t.Cleanup(func() { responder.Close() })
	return &network{hub: hub, responder: responder, codec: wire.NewMDNSCodec(log.NewNoopLogger())}
}

// announce multicasts a response carrying rrs as answers.
func (n *network) announce(t *testing.T, rrs ...domain.ResourceRecord) {
	t.Helper()
	b, err := n.codec.Encode(domain.Message{Header: domain.Header{Response: true, Authoritative: true}, Answers: rrs})
	require.NoError(t, err)
	require.NoError(t, n.responder.Send(context.Background(), b))
}

func rr(t *testing.T, name string, ttl uint32, data domain.RData) domain.ResourceRecord {
	t.Helper()
	r, err := domain.NewResourceRecord(name, ttl, data)
	require.NoError(t, err)
	return r
}

func newSession(t *testing.T, n *network, mutate func(*Options)) *Session {
	t.Helper()
	opts := Options{
		Opener:       n.hub.Opener(),
		Logger:       log.NewNoopLogger(),
		PollInterval: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSession_PrinterFoundThenLost(t *testing.T) {
	n := newNetwork(t)
	s := newSession(t, n, nil)
	var rec recorder
	rec.attach(s)

	require.NoError(t, s.Start(context.Background(), printerService))
	assert.Equal(t, StateBrowsing, s.State())

	n.announce(t, rr(t, printerService, 4500, domain.PTRData{Target: hpInstance}))
	n.announce(t, rr(t, hpInstance, 120, domain.SRVData{Port: 631, Target: "hp.local"}))
	n.announce(t, rr(t, hpInstance, 4500, domain.TXTData{Entries: []string{"rp=ipp"}}))

	require.Eventually(t, func() bool { f, _, _ := rec.counts(); return f == 1 }, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	h := rec.found[0]
	rec.mu.Unlock()
	assert.Equal(t, "HP_LaserJet", h.Instance)
	assert.Equal(t, "hp.local", h.Host)
	assert.Equal(t, uint16(631), h.Port)
	assert.Equal(t, map[string]string{"rp": "ipp"}, h.TXT)
	assert.True(t, h.Resolved)
	require.Len(t, s.Services(), 1)

	n.announce(t, rr(t, printerService, 0, domain.PTRData{Target: hpInstance}))
	require.Eventually(t, func() bool { _, l, _ := rec.counts(); return l == 1 }, 2*time.Second, 5*time.Millisecond)

	// give stray duplicates a chance to show up
	time.Sleep(50 * time.Millisecond)
	found, lost, _ := rec.counts()
	assert.Equal(t, 1, found)
	assert.Equal(t, 1, lost)
	assert.Equal(t, "HP_LaserJet", rec.lost[0].Instance)
	assert.Empty(t, s.Services())
}

func TestSession_UpdatedOnChange(t *testing.T) {
	n := newNetwork(t)
	s := newSession(t, n, nil)
	var rec recorder
	rec.attach(s)
	require.NoError(t, s.Start(context.Background(), printerService))

	n.announce(t,
		rr(t, printerService, 4500, domain.PTRData{Target: hpInstance}),
		rr(t, hpInstance, 120, domain.SRVData{Port: 631, Target: "hp.local"}),
		rr(t, hpInstance, 4500, domain.TXTData{Entries: []string{"rp=ipp"}}),
	)
	require.Eventually(t, func() bool { f, _, _ := rec.counts(); return f == 1 }, 2*time.Second, 5*time.Millisecond)

	n.announce(t, rr(t, hpInstance, 120, domain.SRVData{Port: 9100, Target: "hp.local"}))
	require.Eventually(t, func() bool { _, _, u := rec.counts(); return u == 1 }, 2*time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, uint16(9100), rec.updated[0].Port)
	rec.mu.Unlock()

	// an identical re-announcement is a refresh, not an update
	n.announce(t, rr(t, hpInstance, 120, domain.SRVData{Port: 9100, Target: "hp.local"}))
	time.Sleep(50 * time.Millisecond)
	found, _, updated := rec.counts()
	assert.Equal(t, 1, found)
	assert.Equal(t, 1, updated)
}

type staticFilter map[string]bool

func (f staticFilter) Decide(name string) IgnoreDecision {
	return IgnoreDecision{Ignored: f[name], MatchedRule: name, Source: "test"}
}

func TestSession_IgnoreFilter(t *testing.T) {
	n := newNetwork(t)
	s := newSession(t, n, func(o *Options) {
		o.Filter = staticFilter{"hp_laserjet._printer._tcp.local": true}
	})
	var rec recorder
	rec.attach(s)
	require.NoError(t, s.Start(context.Background(), printerService))

	canon := "Canon._printer._tcp.local"
	for _, inst := range []string{hpInstance, canon} {
		n.announce(t,
			rr(t, printerService, 4500, domain.PTRData{Target: inst}),
			rr(t, inst, 120, domain.SRVData{Port: 515, Target: "printer.local"}),
			rr(t, inst, 4500, domain.TXTData{Entries: []string{"rp=queue"}}),
		)
	}
	require.Eventually(t, func() bool { f, _, _ := rec.counts(); return f == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.found, 1)
	assert.Equal(t, "Canon", rec.found[0].Instance)
}

func TestSession_StartErrors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		s, err := New(Options{
			Logger: log.NewNoopLogger(),
			Opener: func(context.Context) (transport.Transport, error) { return nil, errors.New("address in use") },
		})
		require.NoError(t, err)
		err = s.Start(context.Background(), printerService)
		require.Error(t, err)
		assert.Equal(t, KindTransport, KindOf(err))
		assert.Equal(t, StateIdle, s.State())
	})

	t.Run("service type", func(t *testing.T) {
		s := newSession(t, newNetwork(t), nil)
		err := s.Start(context.Background(), "printer.local")
		assert.Equal(t, KindProtocol, KindOf(err))
	})

	t.Run("after stop", func(t *testing.T) {
		s := newSession(t, newNetwork(t), nil)
		require.NoError(t, s.Stop())
		err := s.Start(context.Background(), printerService)
		assert.Equal(t, KindSessionStopped, KindOf(err))
	})

	t.Run("unsupported family", func(t *testing.T) {
		_, err := New(Options{Logger: log.NewNoopLogger(), Family: "ipx"})
		assert.Equal(t, KindTransport, KindOf(err))
	})
}

func TestSession_FatalTransportErrorReportedOnce(t *testing.T) {
	n := newNetwork(t)
	broken := n.hub.Join()
	broken.FailSends(errors.New("network is down"))
	s := newSession(t, n, func(o *Options) {
		o.Opener = func(context.Context) (transport.Transport, error) { return broken, nil }
	})
	require.NoError(t, s.Start(context.Background(), printerService))

	select {
	case err := <-s.Errors():
		assert.True(t, errors.Is(err, domain.ErrTransport))
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal error reported")
	}
	require.Eventually(t, func() bool { return s.State() == StateStopped }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	_, open := <-s.Errors()
	assert.False(t, open)
}

func TestSession_Resolve(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		s := newSession(t, newNetwork(t), nil)
		_, err := s.Resolve(context.Background(), "HP_LaserJet")
		assert.Equal(t, KindSessionStopped, KindOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		const timeout = 50 * time.Millisecond
		s := newSession(t, newNetwork(t), func(o *Options) { o.ResolveTimeout = timeout })
		require.NoError(t, s.Start(context.Background(), printerService))

		start := time.Now()
		_, err := s.Resolve(context.Background(), "Nobody")
		elapsed := time.Since(start)
		assert.Equal(t, KindResolutionTimeout, KindOf(err))
		assert.GreaterOrEqual(t, elapsed, 2*timeout)
		assert.Less(t, elapsed, 2*timeout+time.Second)
	})

	t.Run("stop fails in-flight", func(t *testing.T) {
		s := newSession(t, newNetwork(t), func(o *Options) { o.ResolveTimeout = 10 * time.Second })
		require.NoError(t, s.Start(context.Background(), printerService))

		errs := make(chan error, 1)
		go func() {
			_, err := s.Resolve(context.Background(), "Nobody")
			errs <- err
		}()
		require.Eventually(t, func() bool { return s.Stats().Engine.PendingResolves == 1 }, time.Second, 5*time.Millisecond)
		require.NoError(t, s.Stop())

		select {
		case err := <-errs:
			assert.Equal(t, KindSessionStopped, KindOf(err))
		case <-time.After(time.Second):
			t.Fatal("resolve still blocked after Stop")
		}
		require.NoError(t, s.Stop())
	})

	t.Run("answered", func(t *testing.T) {
		n := newNetwork(t)
		s := newSession(t, n, nil)
		require.NoError(t, s.Start(context.Background(), printerService))
		n.announce(t,
			rr(t, hpInstance, 120, domain.SRVData{Port: 631, Target: "hp.local"}),
			rr(t, hpInstance, 4500, domain.TXTData{Entries: []string{"rp=ipp"}}),
		)
		require.Eventually(t, func() bool { return s.Stats().Cache.Size >= 2 }, time.Second, 5*time.Millisecond)

		h, err := s.Resolve(context.Background(), "HP_LaserJet")
		require.NoError(t, err)
		assert.Equal(t, "hp.local:631", h.Address())
	})
}

func TestSession_SharedCacheReleasedWithLastSession(t *testing.T) {
	n := newNetwork(t)
	cache, err := NewCache(64, log.NewNoopLogger())
	require.NoError(t, err)

	a := newSession(t, n, func(o *Options) { o.Cache = cache })
	b := newSession(t, n, func(o *Options) { o.Cache = cache })
	require.NoError(t, a.Start(context.Background(), printerService))
	require.NoError(t, b.Start(context.Background(), "_ipp._tcp.local"))
	assert.NotEqual(t, a.ID(), b.ID())

	n.announce(t, rr(t, printerService, 4500, domain.PTRData{Target: hpInstance}))
	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Stop())
	assert.Equal(t, 1, cache.Len())
	require.NoError(t, b.Stop())
	assert.Equal(t, 0, cache.Len())
}

func TestSession_StopLeavesSharedCacheEmptyUnderTraffic(t *testing.T) {
	n := newNetwork(t)
	cache, err := NewCache(256, log.NewNoopLogger())
	require.NoError(t, err)
	s := newSession(t, n, func(o *Options) { o.Cache = cache })
	require.NoError(t, s.Start(context.Background(), printerService))

	pkt, err := n.codec.Encode(domain.Message{
		Header:  domain.Header{Response: true, Authoritative: true},
		Answers: []domain.ResourceRecord{rr(t, printerService, 4500, domain.PTRData{Target: hpInstance})},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	flooding := make(chan struct{})
	go func() {
		defer close(flooding)
		for {
			select {
			case <-done:
				return
			default:
				_ = n.responder.Send(context.Background(), pkt)
			}
		}
	}()
	require.Eventually(t, func() bool { return cache.Len() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, cache.Len())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, cache.Len())
	close(done)
	<-flooding
}

func TestLoadIgnoreList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.txt")
	require.NoError(t, os.WriteFile(path, []byte("# lab printers\nHP_LaserJet._printer._tcp.local\n*._pdl-datastream._tcp.local\n"), 0o600))

	f, err := LoadIgnoreList(path, 16, 0.01, nil)
	require.NoError(t, err)
	assert.True(t, f.Decide("hp_laserjet._printer._tcp.local").Ignored)
	assert.True(t, f.Decide("Any._pdl-datastream._tcp.local").Ignored)
	assert.False(t, f.Decide("Canon._printer._tcp.local").Ignored)

	none, err := LoadIgnoreList("", 16, 0.01, nil)
	require.NoError(t, err)
	assert.False(t, none.Decide("hp_laserjet._printer._tcp.local").Ignored)

	_, err = LoadIgnoreList(filepath.Join(t.TempDir(), "missing"), 16, 0.01, nil)
	assert.Error(t, err)
}
