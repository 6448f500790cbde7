package filter

import (
	"sync"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// memoryStore keeps the rule index in two maps. Ignore lists are small and
// rebuilt from configuration on every start.
type memoryStore struct {
	mu     sync.RWMutex
	exact  map[string]domain.IgnoreRule
	suffix map[string]domain.IgnoreRule
	meta   StoreStats
}

// NewMemoryStore returns an empty Store.
func NewMemoryStore() Store {
	return &memoryStore{
		exact:  map[string]domain.IgnoreRule{},
		suffix: map[string]domain.IgnoreRule{},
	}
}

func (s *memoryStore) GetFirstMatch(name string) (domain.IgnoreRule, bool) {
	cn := utils.CanonicalDNSName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.exact[cn]; ok {
		return r, true
	}
	labels := utils.SplitLabels(cn)
	for i := range labels {
		if r, ok := s.suffix[utils.JoinLabels(labels[i:])]; ok {
			return r, true
		}
	}
	return domain.IgnoreRule{}, false
}

func (s *memoryStore) RebuildAll(rules []domain.IgnoreRule, version uint64, updatedUnix int64) {
	exact := make(map[string]domain.IgnoreRule, len(rules))
	suffix := make(map[string]domain.IgnoreRule)
	for _, r := range rules {
		key := utils.CanonicalDNSName(r.Name)
		switch r.Kind {
		case domain.IgnoreExact:
			if _, dup := exact[key]; !dup {
				exact[key] = r
			}
		case domain.IgnoreSuffix:
			if _, dup := suffix[key]; !dup {
				suffix[key] = r
			}
		}
	}
	s.mu.Lock()
	s.exact, s.suffix = exact, suffix
	s.meta = StoreStats{
		Version:     version,
		UpdatedUnix: updatedUnix,
		ExactKeys:   uint64(len(exact)),
		SuffixKeys:  uint64(len(suffix)),
	}
	s.mu.Unlock()
}

func (s *memoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}
