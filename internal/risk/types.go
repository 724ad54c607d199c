package risk

import "time"

// =============================================================================
// Return Type & Convention
// =============================================================================

// VaRConvention VaR 부호 규약
// ⭐ SSOT: Loss를 양수로 표현 (VaR=0.05 → 5% 손실 가능)
// 전체 시스템에서 이 규약을 일관되게 사용
const VaRConvention = "loss_positive"

// DefaultConfidence VaR/CVaR 기본 신뢰수준 (하위 5% 백분위수)
const DefaultConfidence = 0.95

// =============================================================================
// VaR/CVaR Types
// =============================================================================

// VaRResult VaR 계산 결과
// ⭐ SSOT: VaR/CVaR는 손실을 양수로 표현
// - VaR=0.05 → 95% 신뢰수준에서 최대 5% 손실 가능
// - CVaR=0.07 → 5% tail에서 평균 7% 손실 예상
type VaRResult struct {
	Confidence float64 `json:"confidence"` // 신뢰수준 (예: 0.95, 0.99)
	VaR        float64 `json:"var"`        // Value at Risk (손실, 양수)
	CVaR       float64 `json:"cvar"`       // Conditional VaR (Expected Shortfall, 양수)
}

// =============================================================================
// XIRR Types
// =============================================================================

// SolveStatus XIRR 풀이 결과 구분
type SolveStatus string

const (
	// SolveConverged 근을 찾음
	SolveConverged SolveStatus = "converged"
	// SolveUndetermined 근을 찾지 못함 (Rate=0 이지만 "수익률 0"과 다름)
	SolveUndetermined SolveStatus = "undetermined"
)

// SolveMethod 근을 찾은 방법
type SolveMethod string

const (
	MethodNewton    SolveMethod = "newton"
	MethodBisection SolveMethod = "bisection"
	MethodNone      SolveMethod = "none"
)

// CashFlow 중간 입출금 (양수 = 포트폴리오에 자금 투입)
type CashFlow struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// XIRRInput XIRR 입력
// 시작 자본 투입(유출) → 중간 입출금 → 종료 자본 회수(유입)
type XIRRInput struct {
	StartDate    time.Time  `json:"start_date"`
	StartCapital float64    `json:"start_capital"`
	EndDate      time.Time  `json:"end_date"`
	EndCapital   float64    `json:"end_capital"`
	Flows        []CashFlow `json:"flows"`
}

// XIRRResult XIRR 결과
// ⭐ Status=Undetermined 이면 Rate는 0이지만 실제 0% 수익률로 해석하면 안 됨
type XIRRResult struct {
	Rate       float64     `json:"rate"` // 연율 (0.1 = 10%)
	Status     SolveStatus `json:"status"`
	Method     SolveMethod `json:"method"`
	Iterations int         `json:"iterations"`
}

// Determined reports whether a root was found
func (r XIRRResult) Determined() bool {
	return r.Status == SolveConverged
}

// Undetermined XIRR 실패 결과
func Undetermined(iterations int) XIRRResult {
	return XIRRResult{Rate: 0, Status: SolveUndetermined, Method: MethodNone, Iterations: iterations}
}

// =============================================================================
// Trade Statistics Types
// =============================================================================

// Streaks 연승/연패 통계
type Streaks struct {
	MaxWin  int `json:"max_win"`
	MaxLoss int `json:"max_loss"`
	Current int `json:"current"` // 양수=연승 중, 음수=연패 중
}
