package discovery

import (
	"context"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/repos/recordcache"
	"github.com/haukened/rr-mdns/internal/mdns/services/querier"
)

// dispatch turns cache change events into Found / Updated / Lost callbacks.
// It is the only goroutine that calls user code.
func (s *Session) dispatch(ctx context.Context, engine *querier.Engine, sub *recordcache.Subscription) error {
	service := engine.Service()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			s.handleEvent(engine, service, ev)
		}
	}
}

func (s *Session) handleEvent(engine *querier.Engine, service string, ev domain.ChangeEvent) {
	rr := ev.Entry.Record
	switch rr.Type {
	case domain.RRTypePTR:
		ptr, ok := rr.Data.(domain.PTRData)
		if !ok {
			return
		}
		inst := utils.CanonicalDNSName(ptr.Target)
		if ev.Kind == domain.ChangeRemoved {
			delete(s.announced, inst)
			s.lose(inst, ev.Reason)
			return
		}
		s.announced[inst] = struct{}{}
		s.evaluate(engine, inst)

	case domain.RRTypeSRV, domain.RRTypeTXT:
		inst := utils.CanonicalDNSName(rr.Name)
		if _, ok := utils.InstanceLabel(inst, service); ok {
			s.evaluate(engine, inst)
		}

	case domain.RRTypeA, domain.RRTypeAAAA:
		host := utils.CanonicalDNSName(rr.Name)
		for _, inst := range s.instancesOnHost(host) {
			s.evaluate(engine, inst)
		}
	}
}

// evaluate recomputes the view of an announced instance and fires Found on
// first resolution or Updated when a found view changes.
func (s *Session) evaluate(engine *querier.Engine, inst string) {
	if _, ok := s.announced[inst]; !ok {
		return
	}
	if s.opts.Filter != nil {
		if d := s.opts.Filter.Decide(inst); d.Ignored {
			s.logger.Debug(map[string]any{"instance": inst, "rule": d.MatchedRule, "source": d.Source}, "instance ignored")
			return
		}
	}

	h := engine.Handle(inst)

	s.mu.Lock()
	prev, wasFound := s.found[inst]
	var callbacks []func(ServiceHandle)
	switch {
	case !wasFound && h.Resolved:
		s.found[inst] = h
		callbacks = append(callbacks, s.onFound...)
	case wasFound && !h.Equal(prev):
		s.found[inst] = h
		callbacks = append(callbacks, s.onUpdated...)
	}
	s.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	if !wasFound {
		s.logger.Info(map[string]any{"instance": h.Instance, "address": h.Address()}, "service found")
	} else {
		s.logger.Debug(map[string]any{"instance": h.Instance, "address": h.Address()}, "service updated")
	}
	for _, fn := range callbacks {
		fn(h)
	}
}

// lose fires Lost for a found instance whose PTR left the cache.
func (s *Session) lose(inst string, reason domain.RemovalReason) {
	s.mu.Lock()
	h, wasFound := s.found[inst]
	delete(s.found, inst)
	callbacks := append([]func(ServiceHandle){}, s.onLost...)
	s.mu.Unlock()

	if !wasFound {
		return
	}
	s.logger.Info(map[string]any{"instance": h.Instance, "reason": reason.String()}, "service lost")
	for _, fn := range callbacks {
		fn(h)
	}
}

func (s *Session) instancesOnHost(host string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for inst, h := range s.found {
		if utils.CanonicalDNSName(h.Host) == host {
			out = append(out, inst)
		}
	}
	return out
}
