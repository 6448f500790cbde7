package filter

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// StoreStats reports rule counts and snapshot metadata.
type StoreStats struct {
	Version     uint64
	UpdatedUnix int64
	ExactKeys   uint64
	SuffixKeys  uint64
}

// RepoStats exposes repository-level counters and underlying store stats.
type RepoStats struct {
	Cache CacheStats
	Store StoreStats
}
