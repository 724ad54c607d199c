package risk

import (
	"sync"

	"github.com/wonny/tradelens/internal/cache"
	"github.com/wonny/tradelens/pkg/logger"
)

// =============================================================================
// Engine - XIRR 캐시를 소유하는 계산기
// =============================================================================

// Engine 리스크 엔진
// 순수 계산 함수들은 패키지 레벨에 있고, Engine은 XIRR 결과 캐시만 소유한다.
// cache.LRU는 동시성 안전하지 않으므로 모든 접근을 mu로 직렬화한다.
type Engine struct {
	mu     sync.Mutex
	cache  *cache.LRU[string, XIRRResult]
	solve  func(XIRRInput) XIRRResult
	logger *logger.Logger
}

// NewEngine 새 리스크 엔진 생성
// c가 nil이면 캐시 없이 매번 계산한다.
func NewEngine(c *cache.LRU[string, XIRRResult], log *logger.Logger) *Engine {
	return &Engine{
		cache:  c,
		solve:  SolveXIRR,
		logger: logger.OrNop(log).WithComponent("risk"),
	}
}

// NewEngineWithCapacity 지정 용량의 캐시를 가진 엔진 생성
func NewEngineWithCapacity(capacity int, log *logger.Logger) (*Engine, error) {
	c, err := cache.NewLRU[string, XIRRResult](capacity, log)
	if err != nil {
		return nil, err
	}
	return NewEngine(c, log), nil
}

// XIRR 캐시를 거쳐 XIRR 계산
// 동일 입력에 대해서는 최초 1회만 solver가 호출된다.
func (e *Engine) XIRR(in XIRRInput) XIRRResult {
	if e.cache == nil {
		return e.solve(in)
	}

	key := Fingerprint(in)

	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.cache.Get(key); ok {
		return r
	}

	r := e.solve(in)
	if !r.Determined() {
		e.logger.WithFields(map[string]interface{}{
			"start_capital": in.StartCapital,
			"end_capital":   in.EndCapital,
			"flows":         len(in.Flows),
		}).Debug("XIRR undetermined")
	}
	e.cache.Set(key, r)
	return r
}

// VaR Historical VaR 계산
func (e *Engine) VaR(returns []float64, confidence float64) VaRResult {
	return CalculateVaR(returns, confidence)
}

// ParametricVaR 정규분포 가정 VaR 계산
func (e *Engine) ParametricVaR(mean, stdDev, confidence float64) VaRResult {
	return CalculateParametricVaR(mean, stdDev, confidence)
}

// ClearCache 전체 데이터셋이 교체되었을 때 호출
func (e *Engine) ClearCache() {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Clear()
}

// CacheStats 캐시 통계
func (e *Engine) CacheStats() cache.Stats {
	if e.cache == nil {
		return cache.Stats{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Stats()
}
