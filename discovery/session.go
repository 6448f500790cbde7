package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
	"github.com/haukened/rr-mdns/internal/mdns/repos/recordcache"
	"github.com/haukened/rr-mdns/internal/mdns/services/querier"
)

// State is the lifecycle state of a Session.
type State uint8

const (
	StateIdle State = iota
	StateBrowsing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBrowsing:
		return "browsing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats bundles the counters of a session and the components under it.
type Stats struct {
	State  State
	Found  int
	Engine querier.Stats
	Cache  recordcache.Stats
}

// Session is one browse operation for a single service type.
//
// Callbacks run on a dedicated dispatch goroutine, one at a time, in cache
// change order. They must not call Stop.
type Session struct {
	id     uuid.UUID
	opts   Options
	logger log.Logger
	cache  *recordcache.Cache

	mu        sync.Mutex
	state     State
	service   string
	onFound   []func(ServiceHandle)
	onLost    []func(ServiceHandle)
	onUpdated []func(ServiceHandle)

	engine    *querier.Engine
	transport transport.Transport
	sub       *recordcache.Subscription
	cancel    context.CancelFunc
	group     *errgroup.Group

	// dispatch-goroutine state
	announced map[string]struct{}
	found     map[string]ServiceHandle

	errs        chan error
	errOnce     sync.Once
	releaseOnce sync.Once
	stopOnce    sync.Once
}

// New returns an idle Session.
func New(opts Options) (*Session, error) {
	if opts.Family != "" && !transport.IsFamilySupported(transport.Family(opts.Family)) {
		return nil, domain.NewError(domain.KindTransport, fmt.Sprintf("unsupported transport family %q", opts.Family), nil)
	}
	opts = opts.withDefaults()
	cache := opts.Cache
	if cache == nil {
		var err error
		cache, err = recordcache.New(opts.CacheSize, opts.Clock, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("create record cache: %w", err)
		}
	}
	id := uuid.New()
	return &Session{
		id:        id,
		opts:      opts,
		logger:    log.With(opts.Logger, map[string]any{"session": id.String()}),
		cache:     cache,
		state:     StateIdle,
		announced: make(map[string]struct{}),
		found:     make(map[string]ServiceHandle),
		errs:      make(chan error, 1),
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Service returns the browsed service type, empty before Start.
func (s *Session) Service() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service
}

// OnServiceFound registers fn for instances that become resolved.
func (s *Session) OnServiceFound(fn func(ServiceHandle)) {
	s.mu.Lock()
	s.onFound = append(s.onFound, fn)
	s.mu.Unlock()
}

// OnServiceLost registers fn for found instances whose PTR is withdrawn or expires.
func (s *Session) OnServiceLost(fn func(ServiceHandle)) {
	s.mu.Lock()
	s.onLost = append(s.onLost, fn)
	s.mu.Unlock()
}

// OnServiceUpdated registers fn for found instances whose host, port, TXT
// or addresses change.
func (s *Session) OnServiceUpdated(fn func(ServiceHandle)) {
	s.mu.Lock()
	s.onUpdated = append(s.onUpdated, fn)
	s.mu.Unlock()
}

// Errors carries at most one terminal error. It is closed after Stop.
func (s *Session) Errors() <-chan error { return s.errs }

// Start opens the multicast socket and begins browsing serviceType, e.g.
// "_printer._tcp.local". It fails with KindTransport when the socket cannot
// be opened. ctx bounds the open only; the session runs until Stop.
func (s *Session) Start(ctx context.Context, serviceType string) error {
	if !utils.IsServiceType(serviceType) {
		return domain.Protocolf("invalid service type %q", serviceType)
	}
	service := utils.CanonicalDNSName(serviceType)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateBrowsing:
		return domain.Protocolf("session already browsing %s", s.service)
	case StateStopped:
		return domain.NewError(domain.KindSessionStopped, "start", nil)
	}

	tr, err := s.opts.Opener(ctx)
	if err != nil {
		if domain.KindOf(err) != domain.KindTransport {
			err = domain.NewError(domain.KindTransport, "open multicast socket", err)
		}
		s.logger.Error(map[string]any{"service": service, "error": err.Error()}, "failed to open transport")
		return err
	}

	logger := log.With(s.logger, map[string]any{"service": service})
	engine, err := querier.New(querier.Options{
		Service:        service,
		Codec:          wire.NewMDNSCodec(logger),
		Transport:      tr,
		Cache:          s.cache,
		Clock:          s.opts.Clock,
		Logger:         logger,
		QueryInitial:   s.opts.QueryInitial,
		QueryMax:       s.opts.QueryMax,
		ResolveTimeout: s.opts.ResolveTimeout,
		ResolveRetries: s.opts.ResolveRetries,
		SweepInterval:  s.opts.SweepInterval,
		PollInterval:   s.opts.PollInterval,
		AutoResolve:    !s.opts.DisableAutoResolve,
	})
	if err != nil {
		_ = tr.Close()
		return err
	}

	s.service = service
	s.logger = logger
	s.engine = engine
	s.transport = tr
	s.sub = s.cache.Subscribe(recordcache.ForService(service))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = g
	s.state = StateBrowsing

	sub := s.sub
	g.Go(func() error { return s.work(gctx, engine) })
	g.Go(func() error { return s.dispatch(gctx, engine, sub) })

	logger.Info(map[string]any{"cache_size": s.cache.Stats().Capacity}, "browse started")
	return nil
}

// work runs the query engine. A transport failure is reported once and tears
// the session's resources down; Stop still has to be called to close Errors.
func (s *Session) work(ctx context.Context, engine *querier.Engine) error {
	err := engine.Run(ctx)
	if err == nil {
		return nil
	}
	s.logger.Error(map[string]any{"error": err.Error()}, "browse failed")
	s.report(err)
	engine.Stop()
	s.release()
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	return err
}

func (s *Session) report(err error) {
	s.errOnce.Do(func() {
		s.errs <- err
	})
}

// release closes the socket and the cache subscription exactly once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		tr, sub := s.transport, s.sub
		s.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		if tr != nil {
			if err := tr.Close(); err != nil {
				s.logger.Warn(map[string]any{"error": err.Error()}, "closing transport")
			}
		}
	})
}

// Stop ends browsing: in-flight Resolve calls fail with KindSessionStopped,
// the cache subscription and the socket are released and Errors is closed.
// It is safe to call more than once.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		engine, cancel, group, was := s.engine, s.cancel, s.group, s.state
		s.state = StateStopped
		s.mu.Unlock()

		if engine != nil {
			engine.Stop()
		}
		if cancel != nil {
			cancel()
		}
		// the worker may still be inserting; release only once it has exited
		if group != nil {
			_ = group.Wait()
		}
		s.release()
		close(s.errs)
		if was == StateBrowsing {
			s.logger.Info(nil, "browse stopped")
		}
	})
	return nil
}

// Resolve returns host, port and TXT for instance, given as a full name or
// a bare instance label of the browsed service. It fails with
// KindResolutionTimeout when no answer arrives and KindSessionStopped when
// the session is stopped first.
func (s *Session) Resolve(ctx context.Context, instance string) (ServiceHandle, error) {
	s.mu.Lock()
	engine, state := s.engine, s.state
	s.mu.Unlock()
	switch state {
	case StateIdle:
		return ServiceHandle{}, domain.NewError(domain.KindSessionStopped, "session not started", nil)
	case StateStopped:
		return ServiceHandle{}, domain.NewError(domain.KindSessionStopped, "resolve "+instance, nil)
	}
	h, err := engine.Resolve(ctx, instance)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.NewError(domain.KindResolutionTimeout, "resolve "+instance, err)
		}
		return ServiceHandle{}, err
	}
	return h, nil
}

// Services returns the instances currently found, sorted by name.
func (s *Session) Services() []ServiceHandle {
	s.mu.Lock()
	out := make([]ServiceHandle, 0, len(s.found))
	for _, h := range s.found {
		out = append(out, h)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{State: s.state, Found: len(s.found)}
	engine := s.engine
	s.mu.Unlock()
	if engine != nil {
		st.Engine = engine.Stats()
	}
	st.Cache = s.cache.Stats()
	return st
}
