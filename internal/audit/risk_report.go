package audit

import (
	"math"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/risk"
)

// =============================================================================
// Risk Summary
// =============================================================================

// RiskInput 리스크 요약 입력
type RiskInput struct {
	Trades         []contracts.Trade
	StartCapital   float64
	CapitalChanges []contracts.CapitalChange
}

// RiskSummary 자본 곡선 기반 리스크 요약
// ⭐ VaR/CVaR는 손실을 양수로 표현 (risk.VaRConvention)
// ReturnDetermined=false 이면 XIRR/연환산 수익률은 "계산 불가"이며 0% 수익률이 아니다.
type RiskSummary struct {
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	StartCapital float64   `json:"start_capital"`
	EndCapital   float64   `json:"end_capital"`
	NetFlows     float64   `json:"net_flows"`
	TotalPnL     float64   `json:"total_pnl"`

	TotalReturnPct   float64                  `json:"total_return_pct"`
	XIRR             risk.XIRRResult          `json:"xirr"`
	ReturnDetermined bool                     `json:"return_determined"`
	AnnualizedReturn float64                  `json:"annualized_return_pct"`
	MaxDrawdown      float64                  `json:"max_drawdown_pct"`
	UlcerIndex       float64                  `json:"ulcer_index"`
	PainIndex        float64                  `json:"pain_index"`
	Periods          int                      `json:"periods"`
	MeanReturn       float64                  `json:"mean_return"`
	Volatility       float64                  `json:"volatility"`
	AnnualizedVol    float64                  `json:"annualized_volatility"`
	Sharpe           float64                  `json:"sharpe"`
	Sortino          float64                  `json:"sortino"`
	Calmar           float64                  `json:"calmar"`
	VaR              risk.VaRResult           `json:"var"`
	ParametricVaR    risk.VaRResult           `json:"parametric_var"`
	VaRConvention    string                   `json:"var_convention"`
	MonthlyReturns   []contracts.PeriodReturn `json:"monthly_returns"`
	EquityCurve      []CurvePoint             `json:"equity_curve"`
}

func zeroRiskSummary() RiskSummary {
	return RiskSummary{
		XIRR:           risk.Undetermined(0),
		VaRConvention:  risk.VaRConvention,
		MonthlyReturns: []contracts.PeriodReturn{},
		EquityCurve:    []CurvePoint{},
	}
}

// Risk 리스크 요약 (빈 입력이면 0값)
func (a *Analyzer) Risk(in RiskInput) RiskSummary {
	return safely(a, "risk", zeroRiskSummary, func() RiskSummary {
		return a.calculateRisk(in)
	})
}

func (a *Analyzer) calculateRisk(in RiskInput) RiskSummary {
	s := zeroRiskSummary()

	start, ok := firstEntryDate(in.Trades)
	if !ok {
		return s
	}
	end, ok := a.endDate(in.Trades)
	if !ok {
		return s
	}

	// 시작일 이전 입출금은 시작 자본에 합산, 기간 내 입출금은 XIRR 중간 흐름
	startCapital := in.StartCapital
	var flows []risk.CashFlow
	for _, f := range parseFlows(in.CapitalChanges) {
		switch {
		case !f.date.After(start):
			startCapital += f.amount
		case !f.date.After(end):
			flows = append(flows, risk.CashFlow{Date: f.date, Amount: f.amount})
			s.NetFlows += f.amount
		}
	}

	for _, t := range in.Trades {
		s.TotalPnL += t.RealizedPnL + t.UnrealizedPnL
	}

	s.StartDate, s.EndDate = start, end
	s.StartCapital = startCapital
	s.EndCapital = startCapital + s.NetFlows + s.TotalPnL
	if startCapital > 0 {
		s.TotalReturnPct = s.TotalPnL / startCapital * 100
	}

	s.XIRR = a.engine.XIRR(risk.XIRRInput{
		StartDate:    start,
		StartCapital: startCapital,
		EndDate:      end,
		EndCapital:   s.EndCapital,
		Flows:        flows,
	})
	s.ReturnDetermined = s.XIRR.Determined()
	if s.ReturnDetermined {
		s.AnnualizedReturn = s.XIRR.Rate * 100
	}

	if curve := EquityCurve(in.Trades, in.StartCapital); curve != nil {
		values := curveValues(curve)
		s.EquityCurve = curve
		s.MaxDrawdown = risk.MaxDrawdown(values)
		s.UlcerIndex = risk.UlcerIndex(values)
		s.PainIndex = risk.PainIndex(values)
	}

	if monthly := MonthlyReturns(in.Trades, in.StartCapital, in.CapitalChanges); monthly != nil {
		returns := returnValues(monthly)
		ppy := a.settings.PeriodsPerYear
		s.MonthlyReturns = monthly
		s.Periods = len(returns)
		s.MeanReturn = risk.Mean(returns)
		s.Volatility = risk.Volatility(returns)
		s.AnnualizedVol = risk.AnnualizedVolatility(returns, ppy)
		s.Sharpe = risk.SharpeRatio(returns, risk.PeriodRate(a.settings.RiskFreeRate, ppy))
		s.Sortino = risk.SortinoRatio(returns, 0)
		s.VaR = a.engine.VaR(returns, a.settings.Confidence)
		s.ParametricVaR = a.engine.ParametricVaR(s.MeanReturn, s.Volatility, a.settings.Confidence)
	}
	s.Calmar = risk.CalmarRatio(s.AnnualizedReturn, s.MaxDrawdown)
	return s
}

// endDate 미청산 수량이 있으면 기준일(Now), 아니면 마지막 실현일
func (a *Analyzer) endDate(trades []contracts.Trade) (time.Time, bool) {
	for _, t := range trades {
		if t.OpenQty > 0 {
			return a.settings.Now().UTC().Truncate(24 * time.Hour), true
		}
	}
	events := realizedEvents(trades)
	if len(events) == 0 {
		return time.Time{}, false
	}
	return events[len(events)-1].date, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
