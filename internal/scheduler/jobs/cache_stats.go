package jobs

import (
	"context"

	"github.com/wonny/tradelens/internal/cache"
	"github.com/wonny/tradelens/pkg/logger"
)

// StatsSource exposes cache statistics
type StatsSource interface {
	CacheStats() cache.Stats
}

// CacheStatsJob logs XIRR cache statistics
type CacheStatsJob struct {
	source StatsSource
	logger *logger.Logger
}

// NewCacheStatsJob creates a new cache statistics job
func NewCacheStatsJob(source StatsSource, log *logger.Logger) *CacheStatsJob {
	return &CacheStatsJob{
		source: source,
		logger: logger.OrNop(log).WithComponent("cache_stats"),
	}
}

// Name returns the job name
func (j *CacheStatsJob) Name() string {
	return "cache_stats"
}

// Schedule returns the cron schedule (every 10 minutes)
func (j *CacheStatsJob) Schedule() string {
	return "@every 10m"
}

// Run logs the current statistics; idle caches are logged at debug
func (j *CacheStatsJob) Run(ctx context.Context) error {
	st := j.source.CacheStats()
	log := j.logger.WithFields(map[string]interface{}{
		"hits":      st.Hits,
		"misses":    st.Misses,
		"evictions": st.Evictions,
		"size":      st.Size,
		"capacity":  st.Capacity,
		"hit_rate":  st.HitRate(),
	})
	if st.Hits+st.Misses == 0 {
		log.Debug("XIRR cache idle")
		return nil
	}
	log.Info("XIRR cache statistics")
	return nil
}
