package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/risk"
	"github.com/wonny/tradelens/pkg/logger"
)

// Settings 집계 설정
type Settings struct {
	RiskFreeRate   float64 // 연 무위험 수익률 (0.03 = 3%)
	PeriodsPerYear int     // 수익률 시계열 주기 (월별 = 12)
	Confidence     float64 // VaR 신뢰수준
	Now            func() time.Time
}

// DefaultSettings 기본 설정
func DefaultSettings() Settings {
	return Settings{
		RiskFreeRate:   0,
		PeriodsPerYear: 12,
		Confidence:     risk.DefaultConfidence,
		Now:            time.Now,
	}
}

// Analyzer 성과/리스크 집계기
// ⭐ SSOT: 집계 로직은 여기서만
// 각 집계는 내부 오류(panic 포함)를 스스로 복구하고 0값 결과를 반환한다.
type Analyzer struct {
	engine   *risk.Engine
	settings Settings
	logger   *logger.Logger
}

// NewAnalyzer creates a new analyzer; engine caches XIRR results
func NewAnalyzer(engine *risk.Engine, settings Settings, log *logger.Logger) *Analyzer {
	if settings.PeriodsPerYear <= 0 {
		settings.PeriodsPerYear = 12
	}
	if settings.Confidence <= 0 || settings.Confidence >= 1 {
		settings.Confidence = risk.DefaultConfidence
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if engine == nil {
		engine = risk.NewEngine(nil, log)
	}
	return &Analyzer{
		engine:   engine,
		settings: settings,
		logger:   logger.OrNop(log).WithComponent("audit"),
	}
}

// safely runs fn and returns zero if it panics
func safely[T any](a *Analyzer, name string, zero func() T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(map[string]interface{}{
				"aggregator": name,
				"panic":      fmt.Sprint(r),
			}).Warn("Aggregator failed, returning zero result")
			out = zero()
		}
	}()
	return fn()
}

// =============================================================================
// Performance Summary
// =============================================================================

// PerformanceSummary 거래 성과 요약
// 승률/평균 손익/기대값은 청산 수량이 있는 거래만 대상으로 한다.
type PerformanceSummary struct {
	TotalTrades    int `json:"total_trades"`
	RealizedTrades int `json:"realized_trades"`
	OpenTrades     int `json:"open_trades"`
	Wins           int `json:"wins"`
	Losses         int `json:"losses"`
	Breakeven      int `json:"breakeven"`

	WinRate      float64 `json:"win_rate"` // %
	AvgGain      float64 `json:"avg_gain"`
	AvgLoss      float64 `json:"avg_loss"` // 음수
	AvgGainPct   float64 `json:"avg_gain_pct"`
	AvgLossPct   float64 `json:"avg_loss_pct"`
	WinLossRatio float64 `json:"win_loss_ratio"`
	LargestGain  float64 `json:"largest_gain"`
	LargestLoss  float64 `json:"largest_loss"`

	AvgRMultiple   float64 `json:"avg_r_multiple"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
	AvgHoldingWin  float64 `json:"avg_holding_win"`
	AvgHoldingLoss float64 `json:"avg_holding_loss"`

	Expectancy    float64 `json:"expectancy"`
	ExpectancyPct float64 `json:"expectancy_pct"`
	ProfitFactor  float64 `json:"profit_factor"`

	TotalRealizedPnL   float64 `json:"total_realized_pnl"`
	TotalUnrealizedPnL float64 `json:"total_unrealized_pnl"`
	TotalImpact        float64 `json:"total_impact"` // Σ PfImpact (%)

	Streaks risk.Streaks `json:"streaks"`
}

// Performance 거래 성과 요약 (빈 입력이면 0값)
func (a *Analyzer) Performance(trades []contracts.Trade) PerformanceSummary {
	return safely(a, "performance", func() PerformanceSummary { return PerformanceSummary{} }, func() PerformanceSummary {
		return a.calculatePerformance(trades)
	})
}

func (a *Analyzer) calculatePerformance(trades []contracts.Trade) PerformanceSummary {
	s := PerformanceSummary{TotalTrades: len(trades)}

	realized := chronological(trades)
	s.RealizedTrades = len(realized)

	var (
		pnls, impacts              []float64
		gains, losses              []float64
		gainPcts, lossPcts         []float64
		holdAll, holdWin, holdLoss []float64
		rMultiples                 []float64
	)
	for _, t := range trades {
		holdAll = append(holdAll, t.HoldingDays)
		s.TotalRealizedPnL += t.RealizedPnL
		s.TotalUnrealizedPnL += t.UnrealizedPnL
		s.TotalImpact += t.PfImpact
		if t.OpenQty > 0 {
			s.OpenTrades++
		}
	}

	for _, t := range realized {
		pnls = append(pnls, t.RealizedPnL)
		impacts = append(impacts, t.PfImpact)
		if t.StopLoss > 0 {
			rMultiples = append(rMultiples, t.RewardRisk)
		}

		switch {
		case t.IsWin():
			s.Wins++
			gains = append(gains, t.RealizedPnL)
			gainPcts = append(gainPcts, t.PfImpact)
			holdWin = append(holdWin, t.HoldingDays)
			if t.RealizedPnL > s.LargestGain {
				s.LargestGain = t.RealizedPnL
			}
		case t.IsLoss():
			s.Losses++
			losses = append(losses, t.RealizedPnL)
			lossPcts = append(lossPcts, t.PfImpact)
			holdLoss = append(holdLoss, t.HoldingDays)
			if t.RealizedPnL < s.LargestLoss {
				s.LargestLoss = t.RealizedPnL
			}
		default:
			s.Breakeven++
		}
	}

	if s.RealizedTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RealizedTrades) * 100
	}
	s.AvgGain = risk.Mean(gains)
	s.AvgLoss = risk.Mean(losses)
	s.AvgGainPct = risk.Mean(gainPcts)
	s.AvgLossPct = risk.Mean(lossPcts)
	if s.AvgLoss != 0 {
		s.WinLossRatio = s.AvgGain / -s.AvgLoss
	}

	s.AvgRMultiple = risk.Mean(rMultiples)
	s.AvgHoldingDays = risk.Mean(holdAll)
	s.AvgHoldingWin = risk.Mean(holdWin)
	s.AvgHoldingLoss = risk.Mean(holdLoss)

	s.Expectancy = risk.Expectancy(pnls)
	s.ExpectancyPct = risk.Expectancy(impacts)
	s.ProfitFactor = risk.ProfitFactor(pnls)
	s.Streaks = risk.CalculateStreaks(pnls)
	return s
}

// chronological returns trades with realized quantity ordered by realization date
// 날짜를 파싱할 수 없는 거래는 입력 순서대로 뒤에 둔다.
func chronological(trades []contracts.Trade) []contracts.Trade {
	out := make([]contracts.Trade, 0, len(trades))
	for _, t := range trades {
		if t.HasExits() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, errI := contracts.ParseDate(out[i].RealizationDate())
		if errI != nil {
			return false
		}
		dj, errJ := contracts.ParseDate(out[j].RealizationDate())
		if errJ != nil {
			return true
		}
		return di.Before(dj)
	})
	return out
}
