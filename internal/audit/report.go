package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
)

// ReportInput 전체 리포트 입력
// Trades는 파이프라인을 통과한 정규화 거래 (필터/정렬 적용 후).
type ReportInput struct {
	Trades         []contracts.Trade
	StartCapital   float64
	CapitalChanges []contracts.CapitalChange
	Benchmark      []contracts.PeriodReturn
}

// Report 집계 결과 묶음
// Benchmark는 지수 시계열이 주어졌을 때만 채워진다.
type Report struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	Performance  PerformanceSummary   `json:"performance"`
	Risk         RiskSummary          `json:"risk"`
	Setups       []SetupPerformance   `json:"setups"`
	Distribution Distribution         `json:"distribution"`
	Benchmark    *BenchmarkComparison `json:"benchmark,omitempty"`
}

// Analyze 모든 집계 실행
// 개별 집계 실패는 해당 항목만 0값으로 대체된다.
func (a *Analyzer) Analyze(in ReportInput) *Report {
	report := &Report{
		GeneratedAt:  a.settings.Now(),
		Performance:  a.Performance(in.Trades),
		Risk:         a.Risk(RiskInput{Trades: in.Trades, StartCapital: in.StartCapital, CapitalChanges: in.CapitalChanges}),
		Setups:       a.Setups(in.Trades),
		Distribution: a.Distribution(in.Trades),
	}
	if len(in.Benchmark) > 0 {
		b := a.Benchmark(report.Risk.MonthlyReturns, in.Benchmark)
		report.Benchmark = &b
	}

	a.logger.WithFields(map[string]interface{}{
		"trades":   report.Performance.TotalTrades,
		"win_rate": report.Performance.WinRate,
		"max_dd":   report.Risk.MaxDrawdown,
	}).Debug("Report generated")
	return report
}

// ToJSON JSON 형식으로 출력
func (report *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// ToSummary 요약 문자열 출력
func (report *Report) ToSummary() string {
	var b strings.Builder

	p := report.Performance
	b.WriteString("📊 Performance\n")
	fmt.Fprintf(&b, "  Trades: %d (realized %d, open %d)\n", p.TotalTrades, p.RealizedTrades, p.OpenTrades)
	fmt.Fprintf(&b, "  Win Rate: %.2f%% (%dW / %dL / %dBE)\n", p.WinRate, p.Wins, p.Losses, p.Breakeven)
	fmt.Fprintf(&b, "  Avg Gain / Loss: %.2f / %.2f (ratio %.2f)\n", p.AvgGain, p.AvgLoss, p.WinLossRatio)
	fmt.Fprintf(&b, "  Avg R: %.2f  Avg Holding: %.1f days\n", p.AvgRMultiple, p.AvgHoldingDays)
	fmt.Fprintf(&b, "  Expectancy: %.2f (%.2f%%)  Profit Factor: %.2f\n", p.Expectancy, p.ExpectancyPct, p.ProfitFactor)
	fmt.Fprintf(&b, "  Streaks: max win %d, max loss %d, current %d\n", p.Streaks.MaxWin, p.Streaks.MaxLoss, p.Streaks.Current)
	fmt.Fprintf(&b, "  Realized / Unrealized: %.2f / %.2f  Impact: %.2f%%\n", p.TotalRealizedPnL, p.TotalUnrealizedPnL, p.TotalImpact)
	b.WriteString("\n")

	r := report.Risk
	b.WriteString("⚠️ Risk\n")
	fmt.Fprintf(&b, "  Capital: %.2f → %.2f (flows %.2f)\n", r.StartCapital, r.EndCapital, r.NetFlows)
	fmt.Fprintf(&b, "  Total Return: %.2f%%\n", r.TotalReturnPct)
	if r.ReturnDetermined {
		fmt.Fprintf(&b, "  XIRR: %.2f%% (%s, %d iterations)\n", r.AnnualizedReturn, r.XIRR.Method, r.XIRR.Iterations)
	} else {
		b.WriteString("  XIRR: n/a\n")
	}
	fmt.Fprintf(&b, "  Max Drawdown: %.2f%%  Ulcer: %.2f  Pain: %.2f\n", r.MaxDrawdown, r.UlcerIndex, r.PainIndex)
	fmt.Fprintf(&b, "  Volatility: %.4f (annualized %.4f)\n", r.Volatility, r.AnnualizedVol)
	fmt.Fprintf(&b, "  Sharpe: %.2f  Sortino: %.2f  Calmar: %.2f\n", r.Sharpe, r.Sortino, r.Calmar)
	fmt.Fprintf(&b, "  VaR %.0f%%: %.4f  CVaR: %.4f  Parametric VaR: %.4f\n",
		r.VaR.Confidence*100, r.VaR.VaR, r.VaR.CVaR, r.ParametricVaR.VaR)
	b.WriteString("\n")

	if len(report.Setups) > 0 {
		b.WriteString("🎯 Setups\n")
		for _, s := range report.Setups {
			fmt.Fprintf(&b, "  %s: %d trades, win %.2f%%, impact %.2f%%\n", s.Setup, s.Trades, s.WinRate, s.TotalImpact)
		}
		b.WriteString("\n")
	}

	b.WriteString("📈 P&L Distribution\n")
	for _, bucket := range report.Distribution.PnLPct {
		fmt.Fprintf(&b, "  %-12s %4d (%.1f%%)\n", bucket.Label, bucket.Count, bucket.Pct)
	}

	if bm := report.Benchmark; bm != nil {
		b.WriteString("\n🏁 Benchmark\n")
		fmt.Fprintf(&b, "  Portfolio / Index: %.2f%% / %.2f%% over %d periods\n",
			bm.PortfolioTotal*100, bm.IndexTotal*100, len(bm.Periods))
		fmt.Fprintf(&b, "  Beta: %.2f  Alpha: %.4f  Tracking Error: %.4f  IR: %.2f\n",
			bm.Beta, bm.Alpha, bm.TrackingError, bm.InformationRatio)
	}
	return b.String()
}
