package filter

import "github.com/haukened/rr-mdns/internal/mdns/domain"

// NoopRepository allows every instance. Sessions use it when no ignore list is configured.
type NoopRepository struct{}

func (NoopRepository) Decide(string) domain.IgnoreDecision { return domain.AllowDecision() }

func (NoopRepository) UpdateAll([]domain.IgnoreRule, uint64, int64) {}

func (NoopRepository) RepoStats() RepoStats { return RepoStats{} }

var _ Repository = NoopRepository{}
