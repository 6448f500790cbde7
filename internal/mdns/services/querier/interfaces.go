package querier

import (
	"context"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/repos/recordcache"
)

// Codec converts between wire bytes and domain messages.
type Codec interface {
	Decode(data []byte) (domain.Message, error)
	Encode(msg domain.Message) ([]byte, error)
}

// Transport is the multicast socket the engine drives.
type Transport interface {
	Send(ctx context.Context, packet []byte) error
	Receive(ctx context.Context) (transport.Packet, error)
}

// RecordStore is the record cache the engine feeds and reads back.
type RecordStore interface {
	Insert(rr domain.ResourceRecord, arrival time.Time) domain.ChangeKind
	Lookup(key domain.RecordKey) (domain.CachedEntry, bool)
	SweepExpired(now time.Time) []domain.RecordKey
	Entries(pred recordcache.Predicate) []domain.CachedEntry
}
