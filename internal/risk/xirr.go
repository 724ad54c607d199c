package risk

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// XIRR (Money-Weighted Return)
// =============================================================================

// XIRROptions 근 탐색 설정
type XIRROptions struct {
	Guess             float64 // Newton 초기값
	MaxIterations     int     // Newton 최대 반복
	Tolerance         float64 // |NPV| 수렴 기준
	Lower             float64 // bisection 하한
	Upper             float64 // bisection 상한
	MaxBisectionSteps int
}

// DefaultXIRROptions 기본 설정
func DefaultXIRROptions() XIRROptions {
	return XIRROptions{
		Guess:             0.1,
		MaxIterations:     100,
		Tolerance:         1e-7,
		Lower:             -0.999,
		Upper:             10,
		MaxBisectionSteps: 300,
	}
}

const daysPerYear = 365.0

type dated struct {
	years  float64
	amount float64
}

// SolveXIRR XIRR 계산 (기본 설정)
func SolveXIRR(in XIRRInput) XIRRResult {
	return SolveXIRRWith(in, DefaultXIRROptions())
}

// SolveXIRRWith NPV(r) = Σ cf_i / (1+r)^(days_i/365) = 0 의 근을 찾는다
// 투자자 관점 현금흐름: 시작 자본(−), 중간 입금(−)/출금(+), 종료 자본(+).
// Newton-Raphson 실패(발산, 도함수≈0, 범위 이탈) 시 [Lower, Upper] bisection으로 대체.
// 둘 다 실패하면 Undetermined.
func SolveXIRRWith(in XIRRInput, opts XIRROptions) XIRRResult {
	flows, ok := investorFlows(in)
	if !ok {
		return Undetermined(0)
	}

	rate := opts.Guess
	iterations := 0
	for ; iterations < opts.MaxIterations; iterations++ {
		f, df := npv(flows, rate)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			break
		}
		if math.Abs(f) < opts.Tolerance {
			return XIRRResult{Rate: rate, Status: SolveConverged, Method: MethodNewton, Iterations: iterations}
		}
		if math.Abs(df) < 1e-12 || math.IsNaN(df) || math.IsInf(df, 0) {
			break
		}
		next := rate - f/df
		if math.IsNaN(next) || next <= opts.Lower || next > opts.Upper {
			break
		}
		rate = next
	}

	return bisect(flows, opts, iterations)
}

func bisect(flows []dated, opts XIRROptions, iterations int) XIRRResult {
	lo, hi := opts.Lower, opts.Upper
	flo, _ := npv(flows, lo)
	fhi, _ := npv(flows, hi)
	if math.IsNaN(flo) || math.IsNaN(fhi) {
		return Undetermined(iterations)
	}
	if math.Abs(flo) < opts.Tolerance {
		return XIRRResult{Rate: lo, Status: SolveConverged, Method: MethodBisection, Iterations: iterations}
	}
	if math.Abs(fhi) < opts.Tolerance {
		return XIRRResult{Rate: hi, Status: SolveConverged, Method: MethodBisection, Iterations: iterations}
	}
	if (flo > 0) == (fhi > 0) {
		return Undetermined(iterations)
	}

	for step := 0; step < opts.MaxBisectionSteps; step++ {
		iterations++
		mid := (lo + hi) / 2
		fm, _ := npv(flows, mid)
		if math.Abs(fm) < opts.Tolerance || (hi-lo)/2 < 1e-15 {
			return XIRRResult{Rate: mid, Status: SolveConverged, Method: MethodBisection, Iterations: iterations}
		}
		if (fm > 0) == (flo > 0) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return Undetermined(iterations)
}

// npv returns NPV(r) and dNPV/dr
func npv(flows []dated, rate float64) (float64, float64) {
	base := 1 + rate
	if base <= 0 {
		return math.NaN(), math.NaN()
	}
	var f, df float64
	for _, c := range flows {
		disc := math.Pow(base, -c.years)
		f += c.amount * disc
		df += -c.years * c.amount * disc / base
	}
	return f, df
}

// investorFlows 입력 검증 및 투자자 관점 현금흐름 변환
// 부호가 바뀌는 흐름이 없으면 근이 존재하지 않으므로 false.
func investorFlows(in XIRRInput) ([]dated, bool) {
	if !finite(in.StartCapital) || !finite(in.EndCapital) {
		return nil, false
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || !in.EndDate.After(in.StartDate) {
		return nil, false
	}

	years := func(d float64) float64 { return d / daysPerYear }
	out := []dated{{years: 0, amount: -in.StartCapital}}
	for _, f := range in.Flows {
		if !finite(f.Amount) || f.Amount == 0 || f.Date.IsZero() {
			continue
		}
		out = append(out, dated{years: years(f.Date.Sub(in.StartDate).Hours() / 24), amount: -f.Amount})
	}
	out = append(out, dated{years: years(in.EndDate.Sub(in.StartDate).Hours() / 24), amount: in.EndCapital})

	var pos, neg bool
	for _, c := range out {
		if c.amount > 0 {
			pos = true
		}
		if c.amount < 0 {
			neg = true
		}
	}
	return out, pos && neg
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Fingerprint XIRR 입력의 캐시 키
// 동일한 입력(중간 흐름 순서 무관)은 동일한 키를 만든다.
func Fingerprint(in XIRRInput) string {
	flows := make([]string, 0, len(in.Flows))
	for _, f := range in.Flows {
		flows = append(flows, strconv.FormatInt(f.Date.UnixMilli(), 10)+":"+formatAmount(f.Amount))
	}
	sort.Strings(flows)

	var b strings.Builder
	b.WriteString(strconv.FormatInt(in.StartDate.UnixMilli(), 10))
	b.WriteByte('-')
	b.WriteString(formatAmount(in.StartCapital))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(in.EndDate.UnixMilli(), 10))
	b.WriteByte('-')
	b.WriteString(formatAmount(in.EndCapital))
	b.WriteByte('-')
	b.WriteString(strings.Join(flows, ","))
	return b.String()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
