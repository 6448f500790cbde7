package recordcache

import (
	"sync"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// Subscription is one subscriber's ordered, unbounded change feed. Producers
// never block on a slow consumer: events queue in memory until read.
type Subscription struct {
	id    uint64
	cache *Cache
	pred  Predicate

	mu     sync.Mutex
	queue  []domain.ChangeEvent
	signal chan struct{}
	out    chan domain.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers a change feed for records matching pred. The feed
// starts with an Added event for every live matching entry, oldest first,
// then carries every later change until Cancel.
//
// Subscriptions reference-count the cache: when the last one is cancelled
// the cache is purged.
func (c *Cache) Subscribe(pred Predicate) *Subscription {
	s := &Subscription{
		cache:  c,
		pred:   pred,
		signal: make(chan struct{}, 1),
		out:    make(chan domain.ChangeEvent),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.nextID++
	s.id = c.nextID
	for _, e := range c.snapshot(pred, c.clock.Now()) {
		s.enqueue(domain.ChangeEvent{Kind: domain.ChangeAdded, Entry: e})
	}
	c.subs[s.id] = s
	n := len(c.subs)
	c.mu.Unlock()

	c.logger.Debug(map[string]any{"subscription": s.id, "subscribers": n}, "cache subscription opened")
	go s.pump()
	return s
}

// Events returns the feed. It is closed after Cancel.
func (s *Subscription) Events() <-chan domain.ChangeEvent { return s.out }

// Cancel ends the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		c := s.cache
		c.mu.Lock()
		delete(c.subs, s.id)
		n := len(c.subs)
		if n == 0 {
			c.purge(false)
		}
		c.mu.Unlock()
		close(s.done)
		c.logger.Debug(map[string]any{"subscription": s.id, "subscribers": n}, "cache subscription cancelled")
	})
}

func (s *Subscription) enqueue(ev domain.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// pump moves queued events to the unbuffered output channel.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = domain.ChangeEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
