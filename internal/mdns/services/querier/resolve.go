package querier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// waiter is a one-shot resolve registration, closed by the receive path once
// the instance's SRV and TXT are both cached.
type waiter struct {
	done chan struct{}
}

// Resolve returns the handle for instance once its SRV and TXT records are
// cached. instance may be a full name or a bare instance label of the
// browsed service.
//
// It sends an SRV+TXT query and waits up to the resolve timeout, re-sending
// on each timeout up to the configured retries. Failures are
// KindResolutionTimeout (deadline or ctx), KindSessionStopped (Stop called
// meanwhile) or KindTransport (query could not be sent).
func (e *Engine) Resolve(ctx context.Context, instance string) (domain.ServiceHandle, error) {
	name := e.FullName(instance)
	if e.isStopped() {
		return domain.ServiceHandle{}, domain.NewError(domain.KindSessionStopped, "resolve "+name, nil)
	}

	w := e.addWaiter(name)
	defer func() { e.removeWaiter(name, w) }()

	if h, ok := e.lookupResolved(name); ok {
		return h, nil
	}

	attempts := 1 + e.resolveRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := e.sendResolve(ctx, name); err != nil {
			return domain.ServiceHandle{}, err
		}
		timer := time.NewTimer(e.resolveTimeout)
		select {
		case <-w.done:
			timer.Stop()
			if h, ok := e.lookupResolved(name); ok {
				return h, nil
			}
			// records left again before we looked; treat as a miss
			w = e.rearm(name, w)
		case <-timer.C:
			e.logger.Debug(map[string]any{"instance": name, "attempt": attempt}, "resolve attempt timed out")
		case <-ctx.Done():
			timer.Stop()
			e.resolveTimeouts.Add(1)
			return domain.ServiceHandle{}, domain.NewError(domain.KindResolutionTimeout, "resolve "+name, ctx.Err())
		case <-e.stopped:
			timer.Stop()
			return domain.ServiceHandle{}, domain.NewError(domain.KindSessionStopped, "resolve "+name, nil)
		}
	}
	e.resolveTimeouts.Add(1)
	detail := fmt.Sprintf("no SRV/TXT for %s after %d attempts", name, attempts)
	return domain.ServiceHandle{}, domain.NewError(domain.KindResolutionTimeout, detail, context.DeadlineExceeded)
}

// FullName expands a bare instance label to a full name under the browsed
// service. Names already under the service are returned canonicalized.
func (e *Engine) FullName(instance string) string {
	if _, ok := utils.InstanceLabel(instance, e.service); ok {
		return utils.CanonicalDNSName(instance)
	}
	return utils.CanonicalDNSName(utils.ServiceInstanceName(instance, e.service))
}

func (e *Engine) sendResolve(ctx context.Context, name string) error {
	msg, err := domain.NewResolveQuery(name)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return err
		}
		return domain.NewError(domain.KindEncoding, "resolve query for "+name, err)
	}
	if err := e.send(ctx, msg); err != nil {
		return err
	}
	e.resolveQueries.Add(1)
	e.logger.Debug(map[string]any{"instance": name}, "resolve query sent")
	return nil
}

func (e *Engine) addWaiter(name string) *waiter {
	w := &waiter{done: make(chan struct{})}
	e.mu.Lock()
	set, ok := e.waiters[name]
	if !ok {
		set = make(map[*waiter]struct{})
		e.waiters[name] = set
	}
	set[w] = struct{}{}
	e.mu.Unlock()
	return w
}

func (e *Engine) removeWaiter(name string, w *waiter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := e.waiters[name]
	delete(set, w)
	if len(set) == 0 {
		delete(e.waiters, name)
	}
}

func (e *Engine) rearm(name string, old *waiter) *waiter {
	e.removeWaiter(name, old)
	return e.addWaiter(name)
}

// fulfillWaiters wakes every waiter whose instance is now resolvable.
func (e *Engine) fulfillWaiters() {
	e.mu.Lock()
	names := make([]string, 0, len(e.waiters))
	for name := range e.waiters {
		names = append(names, name)
	}
	e.mu.Unlock()

	for _, name := range names {
		if _, ok := e.lookupResolved(name); !ok {
			continue
		}
		e.mu.Lock()
		for w := range e.waiters[name] {
			close(w.done)
		}
		delete(e.waiters, name)
		e.mu.Unlock()
	}
}

// lookupResolved returns the handle for name when SRV and TXT are cached.
func (e *Engine) lookupResolved(name string) (domain.ServiceHandle, bool) {
	h := e.Handle(name)
	return h, h.Resolved
}
