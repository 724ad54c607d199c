package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradelens/internal/basis"
	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/normalize"
	"github.com/wonny/tradelens/internal/risk"
	"github.com/wonny/tradelens/internal/sizing"
)

var asOf = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func closedTrade(id, setup, date, exitDate string, entry, exit, qty float64) contracts.Trade {
	return contracts.Trade{
		ID:        id,
		Setup:     setup,
		Date:      date,
		Direction: contracts.DirectionBuy,
		Entries:   [contracts.MaxEntryLots]contracts.Lot{{Price: entry, Quantity: qty, Date: date}},
		Exits:     [contracts.MaxExitLots]contracts.Lot{{Price: exit, Quantity: qty, Date: exitDate}},
	}
}

func normalized(raw ...contracts.Trade) []contracts.Trade {
	n := normalize.New(normalize.WithClock(func() time.Time { return asOf }))
	return n.NormalizeAll(raw, sizing.NewTableResolver(nil, 100000))
}

// threeClosed: +1000 (01-20), -500 (02-05), +2000 (03-10)
func threeClosed() []contracts.Trade {
	return normalized(
		closedTrade("a", "breakout", "2024-01-02", "2024-01-20", 100, 110, 100),
		closedTrade("b", "pullback", "2024-02-01", "2024-02-05", 50, 45, 100),
		closedTrade("c", "breakout", "2024-03-01", "2024-03-10", 100, 120, 100),
	)
}

func newTestAnalyzer() *Analyzer {
	s := DefaultSettings()
	s.Now = func() time.Time { return asOf }
	return NewAnalyzer(nil, s, nil)
}

func TestPerformance_ThreeClosedTrades(t *testing.T) {
	p := newTestAnalyzer().Performance(threeClosed())

	assert.Equal(t, 3, p.TotalTrades)
	assert.Equal(t, 3, p.RealizedTrades)
	assert.Equal(t, 0, p.OpenTrades)
	assert.Equal(t, 2, p.Wins)
	assert.Equal(t, 1, p.Losses)
	assert.InDelta(t, 66.6667, p.WinRate, 1e-3)
	assert.InDelta(t, 1500.0, p.AvgGain, 1e-9)
	assert.InDelta(t, -500.0, p.AvgLoss, 1e-9)
	assert.InDelta(t, 3.0, p.WinLossRatio, 1e-9)
	assert.InDelta(t, 2500.0/3, p.Expectancy, 1e-9)
	assert.InDelta(t, 6.0, p.ProfitFactor, 1e-9)
	assert.Equal(t, 2000.0, p.LargestGain)
	assert.Equal(t, -500.0, p.LargestLoss)
	assert.InDelta(t, 2.5, p.TotalImpact, 1e-9)
	assert.Equal(t, 1, p.Streaks.MaxWin)
	assert.Equal(t, 1, p.Streaks.MaxLoss)
	assert.Equal(t, 1, p.Streaks.Current)
}

func TestPerformance_OpenTradesExcludedFromWinRate(t *testing.T) {
	open := contracts.Trade{
		ID:           "o",
		Date:         "2024-04-01",
		Direction:    contracts.DirectionBuy,
		CurrentPrice: 12,
		Entries:      [contracts.MaxEntryLots]contracts.Lot{{Price: 10, Quantity: 10, Date: "2024-04-01"}},
	}
	trades := append(threeClosed(), normalized(open)...)

	p := newTestAnalyzer().Performance(trades)
	assert.Equal(t, 4, p.TotalTrades)
	assert.Equal(t, 3, p.RealizedTrades)
	assert.Equal(t, 1, p.OpenTrades)
	assert.InDelta(t, 66.6667, p.WinRate, 1e-3)
	assert.InDelta(t, 20.0, p.TotalUnrealizedPnL, 1e-9)
}

func TestRisk_ThreeClosedTrades(t *testing.T) {
	r := newTestAnalyzer().Risk(RiskInput{Trades: threeClosed(), StartCapital: 100000})

	assert.Equal(t, "2024-01-02", r.StartDate.Format("2006-01-02"))
	assert.Equal(t, "2024-03-10", r.EndDate.Format("2006-01-02"))
	assert.InDelta(t, 102500.0, r.EndCapital, 1e-9)
	assert.InDelta(t, 2.5, r.TotalReturnPct, 1e-9)

	require.Len(t, r.EquityCurve, 4)
	values := curveValues(r.EquityCurve)
	assert.Equal(t, []float64{100000, 101000, 100500, 102500}, values)
	assert.InDelta(t, 500.0/101000*100, r.MaxDrawdown, 1e-9)

	require.True(t, r.ReturnDetermined)
	assert.InDelta(t, 0.141726, r.XIRR.Rate, 1e-5)
	assert.InDelta(t, r.XIRR.Rate*100, r.AnnualizedReturn, 1e-9)
	assert.InDelta(t, r.AnnualizedReturn/r.MaxDrawdown, r.Calmar, 1e-9)

	require.Len(t, r.MonthlyReturns, 3)
	assert.Equal(t, "2024-01", r.MonthlyReturns[0].Period)
	assert.InDelta(t, 0.01, r.MonthlyReturns[0].Return, 1e-12)
	assert.InDelta(t, -500.0/101000, r.MonthlyReturns[1].Return, 1e-12)
	assert.InDelta(t, 2000.0/100500, r.MonthlyReturns[2].Return, 1e-12)
	assert.Equal(t, 3, r.Periods)
	assert.Greater(t, r.Volatility, 0.0)
	assert.Greater(t, r.Sharpe, 0.0)
	assert.Equal(t, risk.CalculateVaR(returnValues(r.MonthlyReturns), risk.DefaultConfidence), r.VaR)
}

func TestRisk_StartDateIndependentOfBasis(t *testing.T) {
	capital := sizing.NewTableResolver(nil, 100000)
	tests := []struct {
		name   string
		trades []contracts.Trade
		start  string
	}{
		{"single round trip", normalized(closedTrade("r", "breakout", "2024-01-02", "2024-07-01", 100, 120, 100)), "2024-01-02"},
		{"three closed", threeClosed(), "2024-01-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accrual := newTestAnalyzer().Risk(RiskInput{
				Trades:       basis.Expand(tt.trades, contracts.BasisAccrual, capital),
				StartCapital: 100000,
			})
			cash := newTestAnalyzer().Risk(RiskInput{
				Trades:       basis.Expand(tt.trades, contracts.BasisCash, capital),
				StartCapital: 100000,
			})

			assert.Equal(t, tt.start, accrual.StartDate.Format("2006-01-02"))
			assert.Equal(t, accrual.StartDate, cash.StartDate)
			assert.Equal(t, accrual.EndDate, cash.EndDate)
			require.True(t, accrual.ReturnDetermined)
			require.True(t, cash.ReturnDetermined)
			assert.InDelta(t, accrual.XIRR.Rate, cash.XIRR.Rate, 1e-12)
			assert.InDelta(t, accrual.EndCapital, cash.EndCapital, 1e-9)
			require.NotEmpty(t, cash.EquityCurve)
			assert.Equal(t, accrual.EquityCurve[0].Date, cash.EquityCurve[0].Date)
		})
	}
}

func TestRisk_CapitalChangesFoldOrFlow(t *testing.T) {
	changes := []contracts.CapitalChange{
		{Date: "2023-12-15", Amount: 20000}, // before start, folded
		{Date: "2024-02-15", Amount: 10000}, // interim flow
		{Date: "2024-09-01", Amount: 5000},  // after end, ignored
	}
	r := newTestAnalyzer().Risk(RiskInput{Trades: threeClosed(), StartCapital: 100000, CapitalChanges: changes})

	assert.InDelta(t, 120000.0, r.StartCapital, 1e-9)
	assert.InDelta(t, 10000.0, r.NetFlows, 1e-9)
	assert.InDelta(t, 132500.0, r.EndCapital, 1e-9)
	assert.True(t, r.ReturnDetermined)
}

func TestRisk_OpenPositionEndsAtNow(t *testing.T) {
	open := contracts.Trade{
		ID:           "o",
		Date:         "2024-04-01",
		Direction:    contracts.DirectionBuy,
		CurrentPrice: 12,
		Entries:      [contracts.MaxEntryLots]contracts.Lot{{Price: 10, Quantity: 10, Date: "2024-04-01"}},
	}
	r := newTestAnalyzer().Risk(RiskInput{Trades: append(threeClosed(), normalized(open)...), StartCapital: 100000})
	assert.Equal(t, "2024-06-30", r.EndDate.Format("2006-01-02"))
	assert.InDelta(t, 102520.0, r.EndCapital, 1e-9)
}

func TestSetups_GroupedAndSortedByImpact(t *testing.T) {
	trades := append(threeClosed(), normalized(closedTrade("d", "  ", "2024-03-01", "2024-03-05", 10, 10, 10))...)

	setups := newTestAnalyzer().Setups(trades)
	require.Len(t, setups, 3)

	assert.Equal(t, "breakout", setups[0].Setup)
	assert.Equal(t, 2, setups[0].Trades)
	assert.InDelta(t, 3.0, setups[0].TotalImpact, 1e-9)
	assert.InDelta(t, 1.5, setups[0].AvgImpact, 1e-9)
	assert.InDelta(t, 100.0, setups[0].WinRate, 1e-9)

	assert.Equal(t, NoSetup, setups[1].Setup)
	assert.Equal(t, 0, setups[1].Wins+setups[1].Losses)

	assert.Equal(t, "pullback", setups[2].Setup)
	assert.InDelta(t, 0.0, setups[2].WinRate, 1e-9)
}

func TestDistribution_OpenBoundsAreNull(t *testing.T) {
	d := newTestAnalyzer().Distribution(threeClosed())
	require.NotEmpty(t, d.PnLPct)

	first, err := json.Marshal(d.PnLPct[0])
	require.NoError(t, err)
	assert.Contains(t, string(first), `"min":null`)
	assert.NotContains(t, string(first), `"max":null`)

	last, err := json.Marshal(d.PnLPct[len(d.PnLPct)-1])
	require.NoError(t, err)
	assert.Contains(t, string(last), `"max":null`)

	require.NotEmpty(t, d.Setup)
	setup, err := json.Marshal(d.Setup[0])
	require.NoError(t, err)
	assert.Contains(t, string(setup), `"min":null,"max":null`)
}

func TestDistribution_BucketsSumToHundred(t *testing.T) {
	d := newTestAnalyzer().Distribution(threeClosed())

	for name, buckets := range map[string][]Bucket{
		"pnl":     d.PnLPct,
		"holding": d.HoldingDays,
		"size":    d.PositionSize,
		"setup":   d.Setup,
	} {
		var count int
		var pct float64
		for _, b := range buckets {
			count += b.Count
			pct += b.Pct
		}
		assert.Equal(t, 3, count, name)
		assert.InDelta(t, 100.0, pct, 1e-9, name)
	}

	counts := make(map[string]int)
	for _, b := range d.PnLPct {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, 1, counts["-10% ~ -5%"])
	assert.Equal(t, 1, counts["10% ~ 20%"])
	assert.Equal(t, 1, counts[">= 20%"])

	assert.Nil(t, d.PnLPct[0].Min)
	require.NotNil(t, d.PnLPct[0].Max)
	assert.Equal(t, -10.0, *d.PnLPct[0].Max)
}

func TestBenchmark_BetaAlphaAndAlignment(t *testing.T) {
	portfolio := []contracts.PeriodReturn{
		{Period: "2024-01", Return: 0.01},
		{Period: "2024-02", Return: 0.02},
		{Period: "2024-03", Return: 0.03},
		{Period: "2024-04", Return: 0.50}, // no index value
	}
	index := []contracts.PeriodReturn{
		{Period: "2024-03", Return: 0.015},
		{Period: "2024-01", Return: 0.005},
		{Period: "2024-02", Return: 0.01},
	}

	b := newTestAnalyzer().Benchmark(portfolio, index)
	require.Len(t, b.Periods, 3)
	assert.Equal(t, "2024-01", b.Periods[0].Period)
	assert.InDelta(t, 0.005, b.Periods[0].Outperformance, 1e-12)
	assert.InDelta(t, 2.0, b.Beta, 1e-9)
	assert.InDelta(t, 0.0, b.Alpha, 1e-12)
	assert.InDelta(t, 0.004082483, b.TrackingError, 1e-9)
	assert.InDelta(t, 0.01/0.004082483, b.InformationRatio, 1e-6)
	assert.InDelta(t, 1.01*1.02*1.03-1, b.PortfolioTotal, 1e-12)
}

func TestAggregators_EmptyInputReturnsZeroShapes(t *testing.T) {
	a := newTestAnalyzer()
	report := a.Analyze(ReportInput{StartCapital: 100000})

	assert.Equal(t, PerformanceSummary{}, report.Performance)
	assert.False(t, report.Risk.ReturnDetermined)
	assert.NotNil(t, report.Risk.EquityCurve)
	assert.NotNil(t, report.Risk.MonthlyReturns)
	assert.Empty(t, report.Setups)
	assert.NotNil(t, report.Setups)
	assert.Len(t, report.Distribution.PnLPct, len(pnlBuckets))
	assert.Len(t, report.Distribution.HoldingDays, len(holdingBuckets))
	assert.Len(t, report.Distribution.PositionSize, len(sizeBuckets))
	assert.Nil(t, report.Benchmark)

	_, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, report.ToSummary(), "XIRR: n/a")

	b := a.Benchmark(nil, nil)
	assert.NotNil(t, b.Periods)
	assert.Zero(t, b.Beta)
}

func TestSafely_RecoversPanic(t *testing.T) {
	a := newTestAnalyzer()
	got := safely(a, "broken", func() []int { return []int{} }, func() []int {
		var m map[string][]int
		m["x"] = nil
		return nil
	})
	assert.Equal(t, []int{}, got)
}

func TestAnalyze_WithBenchmark(t *testing.T) {
	report := newTestAnalyzer().Analyze(ReportInput{
		Trades:       threeClosed(),
		StartCapital: 100000,
		Benchmark: []contracts.PeriodReturn{
			{Period: "2024-01", Return: 0.005},
			{Period: "2024-02", Return: -0.01},
			{Period: "2024-03", Return: 0.02},
		},
	})

	require.NotNil(t, report.Benchmark)
	assert.Len(t, report.Benchmark.Periods, 3)
	assert.Equal(t, asOf, report.GeneratedAt)

	summary := report.ToSummary()
	assert.Contains(t, summary, "Win Rate: 66.67%")
	assert.Contains(t, summary, "Benchmark")

	data, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"win_rate"`)
}
