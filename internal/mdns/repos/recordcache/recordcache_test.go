package recordcache

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

const (
	service  = "_printer._tcp.local"
	instance = "HP_LaserJet._printer._tcp.local"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, size int) (*Cache, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(t0)
	c, err := New(size, clk, log.NewNoopLogger())
	require.NoError(t, err)
	return c, clk
}

func ptr(target string, ttl uint32) domain.ResourceRecord {
	return domain.ResourceRecord{Name: service, Type: domain.RRTypePTR, Class: domain.RRClassIN, TTL: ttl, Data: domain.PTRData{Target: target}}
}

func srv(host string, port uint16, ttl uint32) domain.ResourceRecord {
	return domain.ResourceRecord{Name: instance, Type: domain.RRTypeSRV, Class: domain.RRClassIN, TTL: ttl, Data: domain.SRVData{Port: port, Target: host}}
}

func aRecord(host, addr string, ttl uint32) domain.ResourceRecord {
	return domain.ResourceRecord{Name: host, Type: domain.RRTypeA, Class: domain.RRClassIN, TTL: ttl, Data: domain.AData{Addr: netip.MustParseAddr(addr)}}
}

// next reads one event or fails after a second.
func next(t *testing.T, s *Subscription) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "feed closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return domain.ChangeEvent{}
	}
}

// none asserts that no event is pending.
func none(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s for %s", ev.Kind, ev.Key())
	case <-time.After(30 * time.Millisecond):
	}
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, nil, nil)
	assert.Error(t, err)
}

func TestInsert_Uniqueness(t *testing.T) {
	c, _ := newTestCache(t, 16)

	assert.Equal(t, domain.ChangeAdded, c.Insert(srv("old.local", 631, 120), t0))
	assert.Equal(t, domain.ChangeUpdated, c.Insert(srv("new.local", 9100, 60), t0.Add(time.Second)))

	assert.Equal(t, 1, c.Len())
	e, ok := c.Lookup(domain.NewRecordKey(instance, domain.RRTypeSRV, domain.RRClassIN))
	require.True(t, ok)
	assert.Equal(t, domain.SRVData{Port: 9100, Target: "new.local"}, e.Record.Data)
	assert.Equal(t, uint32(60), e.Record.TTL)
	assert.Equal(t, t0.Add(61*time.Second), e.ExpiresAt)
}

func TestInsert_SharedPTRKeepsEveryInstance(t *testing.T) {
	c, _ := newTestCache(t, 16)
	c.Insert(ptr("A._printer._tcp.local", 4500), t0)
	c.Insert(ptr("B._printer._tcp.local", 4500), t0)
	assert.Equal(t, 2, c.Len())
}

func TestInsert_RefreshEmitsNoEvent(t *testing.T) {
	c, _ := newTestCache(t, 16)
	sub := c.Subscribe(nil)
	defer sub.Cancel()

	require.Equal(t, domain.ChangeAdded, c.Insert(srv("hp.local", 631, 120), t0))
	first := next(t, sub)
	assert.Equal(t, domain.ChangeAdded, first.Kind)

	assert.Equal(t, domain.ChangeRefreshed, c.Insert(srv("HP.local", 631, 120), t0.Add(30*time.Second)))
	none(t, sub)

	e, ok := c.Lookup(first.Key())
	require.True(t, ok)
	assert.Equal(t, t0.Add(150*time.Second), e.ExpiresAt, "refresh extends expiry")
	assert.Greater(t, e.Seq, first.Entry.Seq)
}

func TestInsert_OutOfOrderArrivalIgnored(t *testing.T) {
	c, _ := newTestCache(t, 16)
	c.Insert(srv("new.local", 631, 120), t0.Add(time.Minute))
	assert.Equal(t, domain.ChangeNone, c.Insert(srv("old.local", 631, 120), t0))

	e, ok := c.Lookup(domain.NewRecordKey(instance, domain.RRTypeSRV, domain.RRClassIN))
	require.True(t, ok)
	assert.Equal(t, "new.local", e.Record.Data.(domain.SRVData).Target)
	assert.Equal(t, uint64(1), c.Stats().Stale)
}

func TestInsert_GoodbyeRemovesAndEmitsOnce(t *testing.T) {
	c, _ := newTestCache(t, 16)
	sub := c.Subscribe(ForService(service))
	defer sub.Cancel()

	c.Insert(ptr(instance, 4500), t0)
	assert.Equal(t, domain.ChangeAdded, next(t, sub).Kind)

	assert.Equal(t, domain.ChangeRemoved, c.Insert(ptr(instance, 0), t0.Add(time.Second)))
	ev := next(t, sub)
	assert.Equal(t, domain.ChangeRemoved, ev.Kind)
	assert.Equal(t, domain.ReasonGoodbye, ev.Reason)
	assert.Equal(t, uint32(4500), ev.Entry.Record.TTL, "removal carries the last cached value")
	assert.Equal(t, 0, c.Len())

	// a second goodbye for a key no longer cached changes nothing
	assert.Equal(t, domain.ChangeNone, c.Insert(ptr(instance, 0), t0.Add(2*time.Second)))
	none(t, sub)
}

func TestLookup_HidesExpired(t *testing.T) {
	c, clk := newTestCache(t, 16)
	rr := aRecord("hp.local", "192.168.1.20", 10)
	c.Insert(rr, t0)

	_, ok := c.Lookup(rr.Key())
	assert.True(t, ok)

	clk.Advance(10 * time.Second)
	_, ok = c.Lookup(rr.Key())
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entries stay until swept")
}

func TestSweepExpired(t *testing.T) {
	c, _ := newTestCache(t, 16)
	short := aRecord("a.local", "10.0.0.1", 5)
	long := aRecord("b.local", "10.0.0.2", 500)
	c.Insert(short, t0)
	c.Insert(long, t0)

	sub := c.Subscribe(nil)
	defer sub.Cancel()
	next(t, sub)
	next(t, sub)

	assert.Empty(t, c.SweepExpired(t0.Add(4*time.Second)))
	removed := c.SweepExpired(t0.Add(5 * time.Second))
	assert.Equal(t, []domain.RecordKey{short.Key()}, removed)

	ev := next(t, sub)
	assert.Equal(t, domain.ChangeRemoved, ev.Kind)
	assert.Equal(t, domain.ReasonExpired, ev.Reason)
	assert.Equal(t, short.Key(), ev.Key())
	assert.Equal(t, 1, c.Len())
}

func TestInsert_ReplacesUnsweptExpiredEntry(t *testing.T) {
	c, _ := newTestCache(t, 16)
	sub := c.Subscribe(nil)
	defer sub.Cancel()

	c.Insert(srv("hp.local", 631, 10), t0)
	next(t, sub)

	assert.Equal(t, domain.ChangeAdded, c.Insert(srv("hp.local", 631, 10), t0.Add(time.Minute)))
	gone := next(t, sub)
	assert.Equal(t, domain.ReasonExpired, gone.Reason)
	assert.Equal(t, domain.ChangeAdded, next(t, sub).Kind)
}

func TestCapacityEvictionEmitsRemoved(t *testing.T) {
	c, _ := newTestCache(t, 2)
	sub := c.Subscribe(nil)
	defer sub.Cancel()

	first := aRecord("a.local", "10.0.0.1", 120)
	c.Insert(first, t0)
	c.Insert(aRecord("b.local", "10.0.0.2", 120), t0)
	c.Insert(aRecord("c.local", "10.0.0.3", 120), t0)

	assert.Equal(t, domain.ChangeAdded, next(t, sub).Kind)
	assert.Equal(t, domain.ChangeAdded, next(t, sub).Kind)
	ev := next(t, sub)
	assert.Equal(t, domain.ChangeRemoved, ev.Kind)
	assert.Equal(t, domain.ReasonEvicted, ev.Reason)
	assert.Equal(t, first.Key(), ev.Key())
	assert.Equal(t, domain.ChangeAdded, next(t, sub).Kind)

	assert.Equal(t, uint64(1), c.Stats().Evictions)
	assert.Equal(t, 2, c.Len())
}

func TestSubscribe_ReplaysCurrentStateInOrder(t *testing.T) {
	c, _ := newTestCache(t, 16)
	c.Insert(ptr(instance, 4500), t0)
	c.Insert(srv("hp.local", 631, 120), t0)
	c.Insert(aRecord("hp.local", "192.168.1.20", 120), t0)
	c.Insert(domain.ResourceRecord{Name: "other._ipp._tcp.local", Type: domain.RRTypeSRV, Class: domain.RRClassIN, TTL: 120,
		Data: domain.SRVData{Port: 631, Target: "x.local"}}, t0)

	sub := c.Subscribe(ForService(service))
	defer sub.Cancel()

	types := []domain.RRType{}
	for i := 0; i < 3; i++ {
		ev := next(t, sub)
		assert.Equal(t, domain.ChangeAdded, ev.Kind)
		types = append(types, ev.Entry.Record.Type)
	}
	assert.Equal(t, []domain.RRType{domain.RRTypePTR, domain.RRTypeSRV, domain.RRTypeA}, types)
	none(t, sub)

	// a second subscriber gets its own replay
	again := c.Subscribe(ForType(domain.RRTypeSRV))
	defer again.Cancel()
	assert.Equal(t, domain.RRTypeSRV, next(t, again).Entry.Record.Type)
	assert.Equal(t, domain.RRTypeSRV, next(t, again).Entry.Record.Type)
	none(t, again)
}

func TestSubscribe_PerKeyOrder(t *testing.T) {
	c, _ := newTestCache(t, 16)
	sub := c.Subscribe(nil)
	defer sub.Cancel()

	// nobody reads while these are produced: the feed must buffer them all
	for i := 0; i < 100; i++ {
		c.Insert(srv("hp.local", uint16(1000+i), 120), t0.Add(time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, domain.ChangeAdded, next(t, sub).Kind)
	for i := 1; i < 100; i++ {
		ev := next(t, sub)
		assert.Equal(t, domain.ChangeUpdated, ev.Kind)
		assert.Equal(t, uint16(1000+i), ev.Entry.Record.Data.(domain.SRVData).Port)
	}
}

func TestSubscription_CancelPurgesWhenLast(t *testing.T) {
	c, _ := newTestCache(t, 16)
	a := c.Subscribe(nil)
	b := c.Subscribe(nil)
	c.Insert(ptr(instance, 4500), t0)
	assert.Equal(t, 2, c.Stats().Subscribers)

	a.Cancel()
	a.Cancel()
	assert.Equal(t, 1, c.Len(), "still referenced by b")

	b.Cancel()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Stats().Subscribers)

	select {
	case _, ok := <-b.Events():
		if ok {
			// a queued event may still be drained before close
			for range b.Events() {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("feed not closed after Cancel")
	}
}

func TestPurge_NotifiesSubscribers(t *testing.T) {
	c, _ := newTestCache(t, 16)
	c.Insert(ptr(instance, 4500), t0)
	sub := c.Subscribe(nil)
	defer sub.Cancel()
	next(t, sub)

	c.Purge()
	ev := next(t, sub)
	assert.Equal(t, domain.ChangeRemoved, ev.Kind)
	assert.Equal(t, domain.ReasonPurged, ev.Reason)
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestEntries(t *testing.T) {
	c, clk := newTestCache(t, 16)
	c.Insert(ptr(instance, 4500), t0)
	c.Insert(aRecord("hp.local", "192.168.1.20", 5), t0)

	assert.Len(t, c.Entries(nil), 2)
	assert.Len(t, c.Entries(ForType(domain.RRTypePTR)), 1)

	clk.Advance(6 * time.Second)
	assert.Len(t, c.Entries(nil), 1, "expired entries are hidden")
}
