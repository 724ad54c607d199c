package risk

import (
	"math"
	"sort"
)

// =============================================================================
// VaR (Value at Risk) Calculation
// =============================================================================

// CalculateVaR 과거 수익률 기반 VaR 계산 (Historical Simulation)
// returns: 기간 수익률 배열 (양수=이익, 음수=손실)
// confidence: 신뢰수준 (0.95 → 하위 5% 백분위수)
// 반환값: 손실을 양수로 표현. 입력이 비어 있으면 0.
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	sorted := finiteSorted(returns)
	if len(sorted) == 0 || confidence <= 0 || confidence >= 1 {
		return VaRResult{Confidence: confidence}
	}

	idx := int(math.Floor((1.0 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		VaR:        lossPositive(sorted[idx]),
		CVaR:       CalculateCVaR(sorted, idx),
	}
}

// CalculateCVaR Conditional VaR (Expected Shortfall) 계산
// sorted: 오름차순 정렬된 수익률
// varIdx: VaR 인덱스 (0..varIdx 구간이 tail)
func CalculateCVaR(sorted []float64, varIdx int) float64 {
	if len(sorted) == 0 || varIdx < 0 {
		return 0
	}
	if varIdx >= len(sorted) {
		varIdx = len(sorted) - 1
	}
	return lossPositive(Mean(sorted[:varIdx+1]))
}

// CalculateParametricVaR 정규분포 가정 VaR 계산
// VaR = z·σ − μ, CVaR = σ·φ(z)/(1−c) − μ (손실 양수, 음수면 0)
func CalculateParametricVaR(mean, stdDev, confidence float64) VaRResult {
	if stdDev <= 0 || confidence <= 0 || confidence >= 1 {
		return VaRResult{Confidence: confidence}
	}
	z := NormInv(confidence)
	varValue := math.Max(z*stdDev-mean, 0)
	cvar := math.Max(stdDev*NormPDF(z)/(1-confidence)-mean, 0)

	return VaRResult{
		Confidence: confidence,
		VaR:        varValue,
		CVaR:       cvar,
	}
}

func lossPositive(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}

// finiteSorted copies, drops NaN/Inf and sorts ascending
func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// =============================================================================
// 통계 유틸리티
// =============================================================================

// Acklam 역정규분포 근사 계수
var (
	invA = []float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02, 1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	invB = []float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02, 6.680131188771972e+01, -1.328068155288572e+01, 1}
	invC = []float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00, -2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	invD = []float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00, 3.754408661907416e+00, 1}
)

// horner evaluates coefficients (highest degree first) at x
func horner(coef []float64, x float64) float64 {
	var acc float64
	for _, c := range coef {
		acc = acc*x + c
	}
	return acc
}

// NormInv 정규분포 역함수 (Quantile Function), Acklam 근사
func NormInv(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	const pLow = 0.02425

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return horner(invC, q) / horner(invD, q)
	case p <= 1-pLow:
		q := p - 0.5
		r := q * q
		return horner(invA, r) * q / horner(invB, r)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -horner(invC, q) / horner(invD, q)
	}
}

// NormPDF 정규분포 확률밀도함수
func NormPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// Mean 평균 계산
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev 모표준편차 (population)
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Variance 모분산 (population)
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(values))
}

// Covariance 모공분산; 길이가 다르면 짧은 쪽에 맞춘다
func Covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	ma, mb := Mean(a[:n]), Mean(b[:n])
	var sum float64
	for i := 0; i < n; i++ {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(n)
}
