package sizing

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
)

// Lookup 월별 자본 기준 조회 (month, year) → capital
// ok=false 이면 해당 월의 설정이 없다는 뜻.
type Lookup func(month time.Month, year int) (float64, bool)

// MonthlySizes is a "YYYY-MM" → capital table
type MonthlySizes map[string]float64

// Lookup adapts the table to a Lookup function
func (m MonthlySizes) Lookup(month time.Month, year int) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[contracts.MonthKey(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))]
	return v, ok
}

// Valid reports a positive, finite capital base
func Valid(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Ratio returns num/base, or 0 when base is not a valid capital base
// ⭐ 자본 기준이 무효이면 NaN/Inf 대신 0을 반환
func Ratio(num, base float64) float64 {
	if !Valid(base) {
		return 0
	}
	r := num / base
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Resolver maps a date to the capital base in effect on that date
// ⭐ SSOT: 자본 기준 결정은 여기서만
//
// 우선순위: 유효한 월별 override → 기본 자본 + 해당 날짜까지의 누적 입출금
type Resolver struct {
	defaultBase float64
	lookup      Lookup
	changes     []datedChange
}

type datedChange struct {
	date   time.Time
	amount float64
}

// NewResolver creates a resolver; lookup may be nil
// CapitalChange entries with unparseable dates or non-finite amounts are skipped.
func NewResolver(defaultBase float64, lookup Lookup, changes []contracts.CapitalChange) *Resolver {
	r := &Resolver{defaultBase: defaultBase, lookup: lookup}
	for _, c := range changes {
		d, err := contracts.ParseDate(c.Date)
		if err != nil || math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
			continue
		}
		r.changes = append(r.changes, datedChange{date: d, amount: c.Amount})
	}
	sort.SliceStable(r.changes, func(i, j int) bool {
		return r.changes[i].date.Before(r.changes[j].date)
	})
	return r
}

// Resolve returns the capital base for date
// ok=false 이면 유효한 자본 기준이 없으므로 호출자는 비율 계산을 생략해야 한다.
func (r *Resolver) Resolve(date time.Time) (float64, bool) {
	if r.lookup != nil {
		if v, ok := r.lookup(date.Month(), date.Year()); ok && Valid(v) {
			return v, true
		}
	}

	base := r.defaultBase
	for _, c := range r.changes {
		if c.date.After(date) {
			break
		}
		base += c.amount
	}

	if !Valid(base) {
		return 0, false
	}
	return base, true
}

// ResolveString is Resolve over a date string; unparseable dates use the default base
func (r *Resolver) ResolveString(date string) (float64, bool) {
	d, err := contracts.ParseDate(date)
	if err != nil {
		if Valid(r.defaultBase) {
			return r.defaultBase, true
		}
		return 0, false
	}
	return r.Resolve(d)
}

// Default returns the fallback base
func (r *Resolver) Default() float64 {
	return r.defaultBase
}

// ResolveMonths resolves every distinct trade month (entry and exit months)
// at the first day of the month and returns a "YYYY-MM" → capital table. Months without a valid base are omitted.
func (r *Resolver) ResolveMonths(trades []contracts.Trade) MonthlySizes {
	out := make(MonthlySizes)
	add := func(date string) {
		d, err := contracts.ParseDate(date)
		if err != nil {
			return
		}
		key := contracts.MonthKey(d)
		if _, done := out[key]; done {
			return
		}
		// 월초 기준: 월 중 입출금은 다음 달부터 반영 (1일자 변경은 해당 월 포함)
		monthStart := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		if v, ok := r.Resolve(monthStart); ok {
			out[key] = v
		}
	}

	for _, t := range trades {
		add(t.Date)
		for _, e := range t.Entries {
			if e.Filled() {
				add(e.Date)
			}
		}
		for _, x := range t.Exits {
			if x.Filled() {
				add(x.Date)
			}
		}
	}
	return out
}

// TableResolver resolves dates against a precomputed MonthlySizes table
// 워커로 전달되는 자본 테이블은 이 타입으로 다시 조회된다.
type TableResolver struct {
	sizes       MonthlySizes
	defaultBase float64
}

// NewTableResolver creates a resolver over a month table with a fallback base
func NewTableResolver(sizes MonthlySizes, defaultBase float64) *TableResolver {
	return &TableResolver{sizes: sizes, defaultBase: defaultBase}
}

// ResolveString returns the table entry for the date's month, else the default
func (t *TableResolver) ResolveString(date string) (float64, bool) {
	if key, ok := contracts.MonthKeyOf(date); ok {
		if v, found := t.sizes[key]; found && Valid(v) {
			return v, true
		}
	}
	if Valid(t.defaultBase) {
		return t.defaultBase, true
	}
	return 0, false
}
