package discovery

import (
	"fmt"
	"os"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/repos/filter"
	"github.com/haukened/rr-mdns/internal/mdns/repos/filter/bloom"
	"github.com/haukened/rr-mdns/internal/mdns/repos/filter/lru"
	"github.com/haukened/rr-mdns/internal/mdns/repos/filter/parsers"
)

// LoadIgnoreList builds an IgnoreFilter from a plain list file: one instance
// name per line, "*." or "." prefixes for whole subtrees, '#' comments.
// An empty path returns a filter that ignores nothing.
func LoadIgnoreList(path string, cacheSize int, fpRate float64, logger Logger) (IgnoreFilter, error) {
	if path == "" {
		return filter.NoopRepository{}, nil
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore list: %w", err)
	}
	defer f.Close()

	now := time.Now()
	rules, err := parsers.ParsePlainList(f, path, logger, now)
	if err != nil {
		return nil, fmt.Errorf("parse ignore list %s: %w", path, err)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create decision cache: %w", err)
	}
	repo := filter.NewRepository(filter.NewMemoryStore(), cache, bloom.Build, fpRate)
	repo.UpdateAll(rules, 1, now.Unix())

	stats := repo.RepoStats()
	logger.Info(map[string]any{
		"path":   path,
		"exact":  stats.Store.ExactKeys,
		"suffix": stats.Store.SuffixKeys,
	}, "ignore list loaded")
	return repo, nil
}
