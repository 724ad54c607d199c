package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/tradelens/internal/dataset"
	"github.com/wonny/tradelens/pkg/config"
	"github.com/wonny/tradelens/pkg/logger"
)

// DefaultRefreshSchedule 일지 파일 확인 주기
const DefaultRefreshSchedule = "@every 1m"

// Recompute is called with each newly loaded dataset
type Recompute func(ctx context.Context, ds *dataset.Dataset) error

// CacheClearer drops memoized results derived from the previous dataset
type CacheClearer interface {
	ClearCache()
}

// RefreshJob reloads the journal file and recomputes when its content changes
// ⭐ SSOT: 데이터셋 교체 시 XIRR 캐시 무효화는 이 Job에서만
type RefreshJob struct {
	path      string
	schedule  string
	load      func(path string) (*dataset.Dataset, error)
	cache     CacheClearer
	recompute Recompute
	logger    *logger.Logger

	mu       sync.Mutex
	checksum string
	reloads  int
}

// NewRefreshJob creates a new refresh job; cache may be nil
func NewRefreshJob(cfg config.RefreshConfig, cache CacheClearer, recompute Recompute, log *logger.Logger) *RefreshJob {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	return &RefreshJob{
		path:      cfg.TradesFile,
		schedule:  schedule,
		load:      dataset.Load,
		cache:     cache,
		recompute: recompute,
		logger:    logger.OrNop(log).WithComponent("refresh"),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh"
}

// Schedule returns the cron schedule
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run loads the dataset and recomputes if the checksum changed
// 재계산이 실패하면 체크섬을 갱신하지 않으므로 다음 실행에서 다시 시도한다.
func (j *RefreshJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ds, err := j.load(j.path)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	log := j.logger.WithFields(map[string]interface{}{
		"path":     j.path,
		"checksum": shortSum(ds.Checksum),
	})
	if ds.Checksum == j.checksum {
		log.Debug("Dataset unchanged")
		return nil
	}

	if j.checksum != "" && j.cache != nil {
		j.cache.ClearCache()
		log.Info("Dataset changed, cache cleared")
	}

	if j.recompute != nil {
		if err := j.recompute(ctx, ds); err != nil {
			return fmt.Errorf("recompute: %w", err)
		}
	}

	j.checksum = ds.Checksum
	j.reloads++
	log.WithField("trades", len(ds.Trades)).Info("Dataset loaded")
	return nil
}

// Checksum returns the checksum of the last successfully processed dataset
func (j *RefreshJob) Checksum() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.checksum
}

// Reloads returns how many distinct datasets have been processed
func (j *RefreshJob) Reloads() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reloads
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
