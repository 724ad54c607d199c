package audit

import (
	"sort"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
)

// CurvePoint 자본 곡선의 한 점
type CurvePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	PnL   float64   `json:"pnl"` // 이 시점에 실현된 손익
}

type realizedEvent struct {
	date time.Time
	pnl  float64
}

type datedFlow struct {
	date   time.Time
	amount float64
}

// realizedEvents 실현일 순 실현손익 (날짜를 파싱할 수 없는 거래 제외)
func realizedEvents(trades []contracts.Trade) []realizedEvent {
	var out []realizedEvent
	for _, t := range chronological(trades) {
		d, err := contracts.ParseDate(t.RealizationDate())
		if err != nil {
			continue
		}
		out = append(out, realizedEvent{date: d, pnl: t.RealizedPnL})
	}
	return out
}

func parseFlows(changes []contracts.CapitalChange) []datedFlow {
	var out []datedFlow
	for _, c := range changes {
		d, err := contracts.ParseDate(c.Date)
		if err != nil || !finite(c.Amount) {
			continue
		}
		out = append(out, datedFlow{date: d, amount: c.Amount})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

// EquityCurve 시작 자본 + 누적 실현손익 곡선 (외부 입출금 제외)
// 첫 점은 최초 진입일의 시작 자본이다. 실현된 거래가 없으면 nil.
func EquityCurve(trades []contracts.Trade, startCapital float64) []CurvePoint {
	events := realizedEvents(trades)
	if len(events) == 0 {
		return nil
	}

	start := events[0].date
	if first, ok := firstEntryDate(trades); ok && first.Before(start) {
		start = first
	}

	curve := make([]CurvePoint, 0, len(events)+1)
	curve = append(curve, CurvePoint{Date: start, Value: startCapital})
	value := startCapital
	for _, e := range events {
		value += e.pnl
		curve = append(curve, CurvePoint{Date: e.date, Value: value, PnL: e.pnl})
	}
	return curve
}

// MonthlyReturns 실현 기준 월별 수익률 (소수, 0.01 = 1%)
// r_m = 해당 월 실현손익 / (월초 자본 + 해당 월 입출금). 실현이 없는 중간 월은 0.
func MonthlyReturns(trades []contracts.Trade, startCapital float64, changes []contracts.CapitalChange) []contracts.PeriodReturn {
	events := realizedEvents(trades)
	if len(events) == 0 {
		return nil
	}
	flows := parseFlows(changes)

	first := monthStart(events[0].date)
	last := monthStart(events[len(events)-1].date)

	var out []contracts.PeriodReturn
	capital := startCapital
	ei, fi := 0, 0
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		next := m.AddDate(0, 1, 0)
		for fi < len(flows) && flows[fi].date.Before(next) {
			capital += flows[fi].amount
			fi++
		}
		var pnl float64
		for ei < len(events) && events[ei].date.Before(next) {
			pnl += events[ei].pnl
			ei++
		}

		r := 0.0
		if capital > 0 {
			r = pnl / capital
		}
		out = append(out, contracts.PeriodReturn{Period: contracts.MonthKey(m), Return: r})
		capital += pnl
	}
	return out
}

// firstEntryDate 가장 이른 진입 lot 날짜
// cash 기준 레코드는 Date가 청산일이므로 lot 날짜를 우선하고, 파싱 가능한 lot이 없을 때만 Date를 쓴다.
func firstEntryDate(trades []contracts.Trade) (time.Time, bool) {
	var first time.Time
	found := false
	for _, t := range trades {
		d, ok := entryDate(t)
		if !ok {
			continue
		}
		if !found || d.Before(first) {
			first, found = d, true
		}
	}
	return first, found
}

func entryDate(t contracts.Trade) (time.Time, bool) {
	var first time.Time
	found := false
	for _, e := range t.Entries {
		if !e.Filled() {
			continue
		}
		d, err := contracts.ParseDate(e.Date)
		if err != nil {
			continue
		}
		if !found || d.Before(first) {
			first, found = d, true
		}
	}
	if found {
		return first, true
	}
	d, err := contracts.ParseDate(t.Date)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func curveValues(curve []CurvePoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Value
	}
	return out
}

func returnValues(series []contracts.PeriodReturn) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Return
	}
	return out
}
