package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"shopfloor-service/internal/config"
)

// Manager assigns stable buckets to security event source keys so the
// analytics tables can partition on a bounded integer instead of raw
// client addresses.
type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// EventBucket returns the bucket for a source key (0 to eventBuckets-1).
// The same key always maps to the same bucket.
func (m *Manager) EventBucket(sourceKey string) int {
	if m.eventBuckets <= 0 {
		return 0
	}
	return int(m.hashKey(sourceKey) % uint64(m.eventBuckets))
}

// DateBucket returns the UTC date partition for an event.
func (m *Manager) DateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

func (m *Manager) hashKey(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
