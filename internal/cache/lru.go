package cache

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/wonny/tradelens/pkg/logger"
)

// DefaultXIRRCapacity XIRR 결과 캐시 기본 용량
const DefaultXIRRCapacity = 2000

// LRU is a bounded least-recently-used cache
// ⭐ 동시성 안전하지 않음: 호출자가 접근을 직렬화해야 한다 (risk.Engine 참고)
//
// Lifetime: 명시적으로 생성해서 주입한다. 전체 데이터셋이 교체되면 Clear()를 호출한다.
type LRU[K comparable, V any] struct {
	lru      *simplelru.LRU[K, V]
	capacity int
	stats    Stats
	logger   *logger.Logger
}

// Stats represents cache statistics
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// HitRate returns hits / (hits + misses), 0 when unused
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewLRU creates a cache holding at most capacity entries
func NewLRU[K comparable, V any](capacity int, log *logger.Logger) (*LRU[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be > 0, got %d", capacity)
	}
	inner, err := simplelru.NewLRU[K, V](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRU[K, V]{
		lru:      inner,
		capacity: capacity,
		logger:   logger.OrNop(log).WithComponent("cache"),
	}, nil
}

// Get returns the value and marks the entry most-recently-used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return v, ok
}

// Peek returns the value without touching recency
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	return c.lru.Peek(key)
}

// Set inserts or updates key; at capacity the single least-recently-used entry is evicted first
// 반환값: 제거가 발생했는지 여부
func (c *LRU[K, V]) Set(key K, value V) bool {
	var oldest K
	var hadOldest bool
	if !c.lru.Contains(key) && c.lru.Len() >= c.capacity {
		oldest, _, hadOldest = c.lru.GetOldest()
	}

	evicted := c.lru.Add(key, value)
	if evicted {
		c.stats.Evictions++
		if hadOldest {
			c.logger.WithField("key", oldest).Debug("Evicted least-recently-used entry")
		}
	}
	return evicted
}

// Contains reports presence without touching recency
func (c *LRU[K, V]) Contains(key K) bool {
	return c.lru.Contains(key)
}

// Keys returns keys from oldest to newest
func (c *LRU[K, V]) Keys() []K {
	return c.lru.Keys()
}

// Len returns the number of entries
func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

// Capacity returns the fixed capacity
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Clear empties the cache unconditionally
// 통계의 hit/miss 카운터는 유지된다.
func (c *LRU[K, V]) Clear() {
	n := c.lru.Len()
	c.lru.Purge()
	c.logger.WithField("count", n).Info("Cleared result cache")
}

// Stats returns cache statistics
func (c *LRU[K, V]) Stats() Stats {
	s := c.stats
	s.Size = c.lru.Len()
	s.Capacity = c.capacity
	return s
}
