package risk

import "math"

// =============================================================================
// Drawdown
// =============================================================================

// DrawdownSeries 러닝 피크 대비 하락률 시계열 (%)
// dd_i = (peak_i − v_i) / peak_i × 100. 피크가 0 이하인 구간은 0.
func DrawdownSeries(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	peak := math.Inf(-1)
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (peak - v) / peak * 100
		}
	}
	return out
}

// MaxDrawdown 최대 낙폭 (%), 항상 >= 0
func MaxDrawdown(values []float64) float64 {
	var maxDD float64
	for _, dd := range DrawdownSeries(values) {
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// UlcerIndex 낙폭 시계열의 RMS (%)
func UlcerIndex(values []float64) float64 {
	dd := DrawdownSeries(values)
	if len(dd) == 0 {
		return 0
	}
	var sumSq float64
	for _, d := range dd {
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(dd)))
}

// PainIndex 낙폭 시계열의 산술평균 (%)
func PainIndex(values []float64) float64 {
	return Mean(DrawdownSeries(values))
}

// =============================================================================
// Volatility & Ratios
// =============================================================================

// Volatility 수익률 모표준편차
func Volatility(returns []float64) float64 {
	return StdDev(returns)
}

// AnnualizedVolatility σ × sqrt(periodsPerYear)
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	if periodsPerYear <= 0 {
		return 0
	}
	return Volatility(returns) * math.Sqrt(float64(periodsPerYear))
}

// SharpeRatio (mean − rf) / σ, σ=0 이면 0
// riskFreePerPeriod: 기간당 무위험 수익률
func SharpeRatio(returns []float64, riskFreePerPeriod float64) float64 {
	sd := StdDev(returns)
	if sd == 0 || len(returns) == 0 {
		return 0
	}
	return guard((Mean(returns) - riskFreePerPeriod) / sd)
}

// DownsideDeviation target 미만 수익률만 반영한 편차
// 분모는 전체 관측 수 (target 이상은 0으로 취급)
func DownsideDeviation(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sumSq float64
	for _, r := range returns {
		if r < target {
			d := r - target
			sumSq += d * d
		}
	}
	return math.Sqrt(sumSq / float64(len(returns)))
}

// SortinoRatio (mean − target) / downside deviation, 분모 0 이면 0
func SortinoRatio(returns []float64, target float64) float64 {
	dd := DownsideDeviation(returns, target)
	if dd == 0 {
		return 0
	}
	return guard((Mean(returns) - target) / dd)
}

// CalmarRatio annualizedReturn / maxDrawdown (같은 단위), 낙폭 0 이면 0
func CalmarRatio(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return guard(annualizedReturn / maxDrawdown)
}

// PeriodRate 연율을 기간율로 변환 (복리)
func PeriodRate(annual float64, periodsPerYear int) float64 {
	if periodsPerYear <= 0 || annual <= -1 {
		return 0
	}
	return math.Pow(1+annual, 1/float64(periodsPerYear)) - 1
}

// AnnualizeReturn 누적 수익률을 연율화 (복리)
func AnnualizeReturn(totalReturn float64, periods, periodsPerYear int) float64 {
	if periods <= 0 || periodsPerYear <= 0 || totalReturn <= -1 {
		return 0
	}
	return guard(math.Pow(1+totalReturn, float64(periodsPerYear)/float64(periods)) - 1)
}

// guard NaN/Inf → 0
func guard(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
