// Package querier drives the mDNS browse and resolve protocol for one
// service type: it schedules PTR queries with exponential backoff, feeds
// every decoded response into the record cache and answers one-shot
// resolve requests.
package querier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/repos/recordcache"
)

// Defaults for Options fields left zero.
const (
	DefaultQueryInitial   = time.Second
	DefaultQueryMax       = 60 * time.Second
	DefaultResolveTimeout = 3 * time.Second
	DefaultResolveRetries = 1
	DefaultSweepInterval  = 5 * time.Second
	DefaultPollInterval   = 250 * time.Millisecond
)

// knownAnswerFraction is the share of a PTR's TTL that must remain for it to
// be listed as a known answer (RFC 6762 §7.1).
const knownAnswerFraction = 0.5

type Options struct {
	Service   string
	Codec     Codec
	Transport Transport
	Cache     RecordStore
	Clock     clock.Clock
	Logger    log.Logger

	QueryInitial   time.Duration
	QueryMax       time.Duration
	ResolveTimeout time.Duration
	// ResolveRetries is the number of re-sends after the first timeout.
	// Negative disables retries; zero means DefaultResolveRetries.
	ResolveRetries int
	SweepInterval  time.Duration
	PollInterval   time.Duration
	// AutoResolve sends an SRV+TXT query for each newly seen instance that
	// arrived without them.
	AutoResolve bool
}

type Engine struct {
	service   string
	codec     Codec
	transport Transport
	cache     RecordStore
	clock     clock.Clock
	logger    log.Logger

	resolveTimeout time.Duration
	resolveRetries int
	sweepInterval  time.Duration
	pollInterval   time.Duration
	autoResolve    bool

	mu        sync.Mutex
	state     State
	backoff   *Backoff
	nextQuery time.Time
	nextSweep time.Time
	seen      map[string]struct{}
	waiters   map[string]map[*waiter]struct{}

	stopped  chan struct{}
	stopOnce sync.Once

	packets, malformed, protocolErrs, accepted atomic.Uint64
	queries, resolveQueries, resolveTimeouts   atomic.Uint64
}

// New validates opts and returns an idle Engine.
func New(opts Options) (*Engine, error) {
	if !utils.IsServiceType(opts.Service) {
		return nil, domain.Protocolf("invalid service type %q", opts.Service)
	}
	if opts.Codec == nil || opts.Transport == nil || opts.Cache == nil {
		return nil, errors.New("querier: codec, transport and cache are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	retries := opts.ResolveRetries
	switch {
	case retries == 0:
		retries = DefaultResolveRetries
	case retries < 0:
		retries = 0
	}
	e := &Engine{
		service:        utils.CanonicalDNSName(opts.Service),
		codec:          opts.Codec,
		transport:      opts.Transport,
		cache:          opts.Cache,
		clock:          opts.Clock,
		logger:         opts.Logger,
		resolveTimeout: orDefault(opts.ResolveTimeout, DefaultResolveTimeout),
		resolveRetries: retries,
		sweepInterval:  orDefault(opts.SweepInterval, DefaultSweepInterval),
		pollInterval:   orDefault(opts.PollInterval, DefaultPollInterval),
		autoResolve:    opts.AutoResolve,
		backoff:        NewBackoff(orDefault(opts.QueryInitial, DefaultQueryInitial), orDefault(opts.QueryMax, DefaultQueryMax)),
		seen:           make(map[string]struct{}),
		waiters:        make(map[string]map[*waiter]struct{}),
		stopped:        make(chan struct{}),
	}
	return e, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Service returns the canonical service type being browsed.
func (e *Engine) Service() string { return e.service }

// State returns the current browse state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start moves an idle engine to Querying; the first browse query goes out
// on the next Tick.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateIdle:
	case StateStopped:
		return domain.NewError(domain.KindSessionStopped, "engine stopped", nil)
	default:
		return nil
	}
	now := e.clock.Now()
	e.state = StateQuerying
	e.nextQuery = now
	e.nextSweep = now.Add(e.sweepInterval)
	return nil
}

// Stop ends browsing. In-flight Resolve calls fail with KindSessionStopped.
// It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		close(e.stopped)
		e.logger.Debug(map[string]any{"service": e.service}, "query engine stopped")
	})
}

// Done is closed once the engine is stopped.
func (e *Engine) Done() <-chan struct{} { return e.stopped }

// Run is the worker loop: it fires due timers, then waits up to the poll
// interval for a packet. It returns nil when ctx ends or the engine stops,
// and the error when the transport fails.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopped:
			return nil
		default:
		}

		if err := e.Tick(ctx, e.clock.Now()); err != nil {
			return err
		}

		pctx, cancel := context.WithTimeout(ctx, e.pollInterval)
		pkt, err := e.transport.Receive(pctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil || e.isStopped() {
				return nil
			}
			if transport.IsTimeout(err) {
				continue
			}
			return err
		}

		if err := e.HandlePacket(ctx, pkt, e.clock.Now()); err != nil {
			if domain.KindOf(err) == domain.KindTransport {
				return err
			}
			// malformed and protocol errors are already counted
		}
	}
}

func (e *Engine) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

// Tick sends the browse query when it is due and sweeps expired records
// when the sweep interval has elapsed.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	if e.state == StateIdle || e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	queryDue := e.state == StateQuerying || !now.Before(e.nextQuery)
	if queryDue {
		e.state = StateQuerying
		e.nextQuery = now.Add(e.backoff.Next())
	}
	sweepDue := !now.Before(e.nextSweep)
	if sweepDue {
		e.nextSweep = now.Add(e.sweepInterval)
	}
	e.mu.Unlock()

	if sweepDue {
		e.sweep(now)
	}
	if !queryDue {
		return nil
	}

	err := e.sendBrowse(ctx, now)

	e.mu.Lock()
	if e.state == StateQuerying {
		e.state = StateWaitingResponses
	}
	e.mu.Unlock()
	return err
}

func (e *Engine) sendBrowse(ctx context.Context, now time.Time) error {
	known := e.knownAnswers(now)
	msg, err := domain.NewBrowseQuery(e.service, known)
	if err != nil {
		return err
	}
	if err := e.send(ctx, msg); err != nil {
		return err
	}
	e.queries.Add(1)
	e.logger.Debug(map[string]any{
		"service":       e.service,
		"known_answers": len(known),
	}, "browse query sent")
	return nil
}

// knownAnswers lists cached PTR records for the service with more than half
// their TTL left, each carrying its remaining TTL.
func (e *Engine) knownAnswers(now time.Time) []domain.ResourceRecord {
	entries := e.cache.Entries(recordcache.And(
		recordcache.ForType(domain.RRTypePTR),
		recordcache.ForName(e.service),
	))
	var out []domain.ResourceRecord
	for _, entry := range entries {
		if entry.RemainingFraction(now) <= knownAnswerFraction {
			continue
		}
		rr := entry.Record
		rr.TTL = uint32(entry.Remaining(now) / time.Second)
		rr.CacheFlush = false
		out = append(out, rr)
	}
	return out
}

func (e *Engine) send(ctx context.Context, msg domain.Message) error {
	packet, err := e.codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := e.transport.Send(ctx, packet); err != nil {
		if domain.KindOf(err) == domain.KindTransport {
			return err
		}
		return domain.NewError(domain.KindTransport, "send query", err)
	}
	return nil
}

func (e *Engine) sweep(now time.Time) {
	removed := e.cache.SweepExpired(now)
	if len(removed) == 0 {
		return
	}
	e.mu.Lock()
	for _, key := range removed {
		if key.Type == domain.RRTypePTR && key.Name == e.service {
			delete(e.seen, key.Shared)
		}
	}
	e.mu.Unlock()
}

// HandlePacket decodes one datagram and feeds its records to the cache.
// Malformed packets and protocol violations are counted, logged and
// returned; they never affect engine state.
func (e *Engine) HandlePacket(ctx context.Context, pkt transport.Packet, now time.Time) error {
	e.packets.Add(1)
	fields := map[string]any{"src": addrString(pkt), "bytes": len(pkt.Data)}

	msg, err := e.codec.Decode(pkt.Data)
	if err != nil {
		e.malformed.Add(1)
		fields["error"] = err.Error()
		e.logger.Debug(fields, "dropped malformed packet")
		if domain.KindOf(err) == domain.KindUnknown {
			return domain.NewError(domain.KindMalformedPacket, "decode", err)
		}
		return err
	}
	if err := e.checkResponse(msg); err != nil {
		e.protocolErrs.Add(1)
		fields["records"] = msg.RecordCount()
		fields["error"] = err.Error()
		e.logger.Debug(fields, "dropped packet")
		return err
	}

	var fresh []string
	for _, rr := range msg.CacheableRecords() {
		change := e.cache.Insert(rr, now)
		if change == domain.ChangeNone {
			continue
		}
		e.accepted.Add(1)
		if inst, ok := e.instanceOf(rr); ok {
			if e.trackInstance(inst, rr.IsGoodbye(), now) {
				fresh = append(fresh, inst)
			}
		}
	}

	e.fulfillWaiters()

	if e.autoResolve {
		for _, inst := range fresh {
			if _, done := e.lookupResolved(inst); done {
				continue
			}
			if err := e.sendResolve(ctx, inst); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkResponse rejects queries, answerless responses and, when the
// response echoes questions (legacy unicast replies), answers owned by a
// name none of them asked about. Multicast responses carry no questions.
func (e *Engine) checkResponse(msg domain.Message) error {
	if !msg.IsResponse() {
		return domain.Protocolf("query received (%d questions)", len(msg.Questions))
	}
	if msg.Header.Opcode != 0 {
		return domain.Protocolf("response with opcode %d", msg.Header.Opcode)
	}
	if len(msg.Answers) == 0 {
		return domain.Protocolf("response with no answers")
	}
	if len(msg.Questions) == 0 {
		return nil
	}
	asked := make(map[string]struct{}, len(msg.Questions))
	for _, q := range msg.Questions {
		asked[utils.CanonicalDNSName(q.Name)] = struct{}{}
	}
	for _, rr := range msg.Answers {
		if _, ok := asked[utils.CanonicalDNSName(rr.Name)]; !ok {
			return domain.Protocolf("answer %s matches no question", rr.Name)
		}
	}
	return nil
}

// instanceOf returns the instance a PTR record for the browsed service points at.
func (e *Engine) instanceOf(rr domain.ResourceRecord) (string, bool) {
	ptr, ok := rr.Data.(domain.PTRData)
	if !ok || utils.CanonicalDNSName(rr.Name) != e.service {
		return "", false
	}
	return utils.CanonicalDNSName(ptr.Target), true
}

// trackInstance updates the seen set and reports whether inst is new. A new
// instance restarts the browse backoff.
func (e *Engine) trackInstance(inst string, goodbye bool, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if goodbye {
		delete(e.seen, inst)
		return false
	}
	if _, ok := e.seen[inst]; ok {
		return false
	}
	e.seen[inst] = struct{}{}
	if e.state == StateQuerying || e.state == StateWaitingResponses {
		e.backoff.Reset()
		if next := now.Add(e.backoff.Peek()); next.Before(e.nextQuery) {
			e.nextQuery = next
		}
	}
	e.logger.Debug(map[string]any{"service": e.service, "instance": inst}, "new instance seen")
	return true
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{
		State:           e.state,
		Instances:       len(e.seen),
		PendingResolves: len(e.waiters),
		Backoff:         e.backoff.Peek(),
	}
	e.mu.Unlock()
	s.PacketsReceived = e.packets.Load()
	s.Malformed = e.malformed.Load()
	s.ProtocolErrors = e.protocolErrs.Load()
	s.RecordsAccepted = e.accepted.Load()
	s.QueriesSent = e.queries.Load()
	s.ResolveQueries = e.resolveQueries.Load()
	s.ResolveTimeouts = e.resolveTimeouts.Load()
	return s
}

func addrString(pkt transport.Packet) string {
	if pkt.Src == nil {
		return ""
	}
	return pkt.Src.String()
}

func (s Stats) String() string {
	return fmt.Sprintf("state=%s packets=%d malformed=%d protocol=%d accepted=%d queries=%d",
		s.State, s.PacketsReceived, s.Malformed, s.ProtocolErrors, s.RecordsAccepted, s.QueriesSent)
}
