package audit

import (
	"sort"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/risk"
)

// =============================================================================
// Benchmark Comparison
// =============================================================================

// PeriodComparison 기간별 포트폴리오/지수 수익률
type PeriodComparison struct {
	Period         string  `json:"period"`
	Portfolio      float64 `json:"portfolio"`
	Index          float64 `json:"index"`
	Outperformance float64 `json:"outperformance"` // portfolio − index
}

// BenchmarkComparison 지수 대비 성과
// 두 시계열에 공통으로 존재하는 기간만 비교한다.
type BenchmarkComparison struct {
	Periods          []PeriodComparison `json:"periods"`
	PortfolioTotal   float64            `json:"portfolio_total"` // 복리 누적
	IndexTotal       float64            `json:"index_total"`
	TrackingError    float64            `json:"tracking_error"` // σ(outperformance)
	InformationRatio float64            `json:"information_ratio"`
	Beta             float64            `json:"beta"`
	Alpha            float64            `json:"alpha"` // 기간당
}

func zeroBenchmark() BenchmarkComparison {
	return BenchmarkComparison{Periods: []PeriodComparison{}}
}

// Benchmark 포트폴리오 기간 수익률을 지수 시계열과 비교
func (a *Analyzer) Benchmark(portfolio, index []contracts.PeriodReturn) BenchmarkComparison {
	return safely(a, "benchmark", zeroBenchmark, func() BenchmarkComparison {
		return compare(portfolio, index)
	})
}

func compare(portfolio, index []contracts.PeriodReturn) BenchmarkComparison {
	out := zeroBenchmark()

	byPeriod := make(map[string]float64, len(index))
	for _, p := range index {
		if finite(p.Return) {
			byPeriod[p.Period] = p.Return
		}
	}

	for _, p := range portfolio {
		idx, ok := byPeriod[p.Period]
		if !ok || !finite(p.Return) {
			continue
		}
		out.Periods = append(out.Periods, PeriodComparison{
			Period:         p.Period,
			Portfolio:      p.Return,
			Index:          idx,
			Outperformance: p.Return - idx,
		})
	}
	if len(out.Periods) == 0 {
		return out
	}
	sort.SliceStable(out.Periods, func(i, j int) bool { return out.Periods[i].Period < out.Periods[j].Period })

	n := len(out.Periods)
	port := make([]float64, n)
	bench := make([]float64, n)
	excess := make([]float64, n)
	out.PortfolioTotal, out.IndexTotal = 1, 1
	for i, c := range out.Periods {
		port[i], bench[i], excess[i] = c.Portfolio, c.Index, c.Outperformance
		out.PortfolioTotal *= 1 + c.Portfolio
		out.IndexTotal *= 1 + c.Index
	}
	out.PortfolioTotal--
	out.IndexTotal--

	out.TrackingError = risk.StdDev(excess)
	if out.TrackingError > 0 {
		out.InformationRatio = risk.Mean(excess) / out.TrackingError
	}
	if v := risk.Variance(bench); v > 0 {
		out.Beta = risk.Covariance(port, bench) / v
	}
	out.Alpha = risk.Mean(port) - out.Beta*risk.Mean(bench)
	return out
}
