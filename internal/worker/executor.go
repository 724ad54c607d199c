package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/normalize"
	"github.com/wonny/tradelens/internal/sizing"
	"github.com/wonny/tradelens/pkg/config"
	"github.com/wonny/tradelens/pkg/logger"
)

var (
	// ErrUnavailable 백그라운드 워커를 사용할 수 없음 (초기화 실패, 비활성)
	ErrUnavailable = errors.New("background worker unavailable")
	// ErrClosed 종료된 워커에 요청
	ErrClosed = errors.New("background worker closed")
)

// Batch 정규화 작업 단위
// Sizes는 sizing 단계에서 계산된 "YYYY-MM" → 자본 테이블이다.
type Batch struct {
	Trades         []contracts.Trade
	Sizes          sizing.MonthlySizes
	DefaultCapital float64
}

// Executor 거래 정규화 실행기
// 구현체는 생성 시점에 선택된다 (SyncExecutor | AsyncExecutor).
type Executor interface {
	Normalize(ctx context.Context, batch Batch) ([]contracts.Trade, error)
	Name() string
}

// =============================================================================
// SyncExecutor
// =============================================================================

// SyncExecutor 호출자 goroutine에서 바로 정규화
type SyncExecutor struct {
	normalizer *normalize.Normalizer
}

// NewSyncExecutor creates an in-process executor
func NewSyncExecutor(n *normalize.Normalizer) *SyncExecutor {
	if n == nil {
		n = normalize.New()
	}
	return &SyncExecutor{normalizer: n}
}

// Name implements Executor
func (s *SyncExecutor) Name() string { return "sync" }

// Normalize implements Executor
func (s *SyncExecutor) Normalize(ctx context.Context, batch Batch) ([]contracts.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	capital := sizing.NewTableResolver(batch.Sizes, batch.DefaultCapital)
	return s.normalizer.NormalizeAll(batch.Trades, capital), nil
}

// =============================================================================
// Fallback
// =============================================================================

// FallbackExecutor primary가 ErrUnavailable/ErrClosed를 반환하면 fallback으로 재실행
type FallbackExecutor struct {
	primary  Executor
	fallback Executor
	logger   *logger.Logger
}

// WithFallback wraps primary so that an unavailable worker degrades to fallback
func WithFallback(primary, fallback Executor, log *logger.Logger) *FallbackExecutor {
	return &FallbackExecutor{
		primary:  primary,
		fallback: fallback,
		logger:   logger.OrNop(log).WithComponent("worker"),
	}
}

// Name implements Executor
func (f *FallbackExecutor) Name() string {
	return fmt.Sprintf("%s+%s", f.primary.Name(), f.fallback.Name())
}

// Normalize implements Executor
func (f *FallbackExecutor) Normalize(ctx context.Context, batch Batch) ([]contracts.Trade, error) {
	out, err := f.primary.Normalize(ctx, batch)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrClosed) {
		return nil, err
	}
	f.logger.WithError(err).WithField("trades", len(batch.Trades)).Warn("Worker unavailable, normalizing synchronously")
	return f.fallback.Normalize(ctx, batch)
}

// =============================================================================
// Construction
// =============================================================================

// NewExecutor 설정에 따라 실행기를 선택
// Concurrency <= 0 이면 SyncExecutor, 워커 초기화에 실패해도 SyncExecutor.
// 반환된 close 함수는 항상 호출해도 안전하다.
func NewExecutor(cfg config.WorkerConfig, n *normalize.Normalizer, log *logger.Logger) (Executor, func()) {
	log = logger.OrNop(log).WithComponent("worker")
	syncExec := NewSyncExecutor(n)

	if cfg.Concurrency <= 0 {
		log.Debug("Background worker disabled")
		return syncExec, func() {}
	}

	async, err := NewAsyncExecutor(n, cfg, log)
	if err != nil {
		log.WithError(err).Warn("Failed to start background worker, using synchronous path")
		return syncExec, func() {}
	}
	return WithFallback(async, syncExec, log), async.Close
}
