// Package discovery is the public entry point for browsing and resolving
// DNS-SD services (Bonjour printers in particular) over multicast DNS.
//
// A Session browses one service type. It reports instances through
// OnServiceFound, OnServiceUpdated and OnServiceLost callbacks, resolves
// instances on demand and surfaces terminal failures on Errors.
package discovery

import (
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/repos/recordcache"
)

type (
	// ServiceHandle is the caller-visible view of one discovered instance.
	ServiceHandle = domain.ServiceHandle
	// Error is the single error type returned by sessions; switch on Kind.
	Error = domain.Error
	// ErrorKind discriminates Error values.
	ErrorKind = domain.ErrorKind
	// Logger is the structured logger sessions write to.
	Logger = log.Logger
	// Cache is the record cache shared by sessions.
	Cache = recordcache.Cache
	// IgnoreDecision is the outcome of an ignore-list lookup.
	IgnoreDecision = domain.IgnoreDecision
)

// Error kinds, re-exported for callers outside this module.
const (
	KindMalformedPacket   = domain.KindMalformedPacket
	KindEncoding          = domain.KindEncoding
	KindProtocol          = domain.KindProtocol
	KindTransport         = domain.KindTransport
	KindResolutionTimeout = domain.KindResolutionTimeout
	KindSessionStopped    = domain.KindSessionStopped
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind { return domain.KindOf(err) }

// IgnoreFilter hides matching instances from callbacks.
type IgnoreFilter interface {
	Decide(name string) IgnoreDecision
}

// TransportOpener opens the multicast transport when a session starts.
type TransportOpener = transport.Opener

// Options configures a Session. Zero values select defaults.
type Options struct {
	// Cache is shared between sessions. Nil gives the session its own cache
	// of CacheSize entries.
	Cache     *Cache
	CacheSize int

	// Opener overrides how the multicast socket is opened. Nil opens a UDP
	// socket of Family on Interface.
	Opener    TransportOpener
	Family    string
	Interface string

	Clock  clock.Clock
	Logger Logger
	Filter IgnoreFilter

	QueryInitial   time.Duration
	QueryMax       time.Duration
	ResolveTimeout time.Duration
	ResolveRetries int
	SweepInterval  time.Duration
	PollInterval   time.Duration

	// DisableAutoResolve stops the session from querying SRV/TXT for new
	// instances that were announced without them.
	DisableAutoResolve bool
}

// DefaultCacheSize bounds a session-owned cache.
const DefaultCacheSize = 1024

// NewCache returns a cache that can be shared by several sessions.
func NewCache(size int, logger Logger) (*Cache, error) {
	return recordcache.New(size, clock.RealClock{}, logger)
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = log.GetLogger()
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Opener == nil {
		o.Opener = transport.NewOpener(transport.Family(o.Family), transport.Options{Interface: o.Interface, Logger: o.Logger})
	}
	return o
}
