package basis

import (
	"fmt"
	"math"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/sizing"
)

// CapitalSource resolves the capital base for a date
type CapitalSource interface {
	ResolveString(date string) (float64, bool)
}

// Parse returns the basis for s; "" means accrual
func Parse(s string) (contracts.Basis, error) {
	switch contracts.Basis(s) {
	case "", contracts.BasisAccrual:
		return contracts.BasisAccrual, nil
	case contracts.BasisCash:
		return contracts.BasisCash, nil
	default:
		return "", fmt.Errorf("unknown accounting basis %q (accrual|cash)", s)
	}
}

// Expand 회계 기준에 따라 정규화된 거래 목록을 변환
//
// accrual: 거래당 1건, 진입일 기준 (입력 그대로 복사)
// cash:    청산 lot마다 1건 (청산일 기준, 해당 청산의 FIFO 매칭 수량/손익/보유일)
//          + 미청산 수량이 남으면 진입일 기준 잔여 1건 (실현손익 0)
//
// 청산이 없는 거래는 두 기준 모두 그대로 유지된다.
// capital이 nil이면 원 거래의 Capital을 그대로 사용한다.
func Expand(trades []contracts.Trade, b contracts.Basis, capital CapitalSource) []contracts.Trade {
	out := make([]contracts.Trade, 0, len(trades))
	for _, t := range trades {
		if b != contracts.BasisCash || len(t.Matches) == 0 {
			out = append(out, t.Clone())
			continue
		}
		out = append(out, cashRecords(t, capital)...)
	}
	return out
}

type exitGroup struct {
	exitIndex int
	matches   []contracts.LotMatch
}

// groupByExit keeps the first-seen exit order, which is the FIFO date order
func groupByExit(matches []contracts.LotMatch) []exitGroup {
	var groups []exitGroup
	pos := make(map[int]int)
	for _, m := range matches {
		i, ok := pos[m.ExitIndex]
		if !ok {
			i = len(groups)
			pos[m.ExitIndex] = i
			groups = append(groups, exitGroup{exitIndex: m.ExitIndex})
		}
		groups[i].matches = append(groups[i].matches, m)
	}
	return groups
}

func cashRecords(t contracts.Trade, capital CapitalSource) []contracts.Trade {
	riskPerShare := 0.0
	if t.StopLoss > 0 && t.Entries[0].Filled() {
		riskPerShare = math.Abs(t.Entries[0].Price - t.StopLoss)
	}

	var out []contracts.Trade
	leg := 0
	for _, g := range groupByExit(t.Matches) {
		leg++
		exit := t.Exits[g.exitIndex]

		var qty, cost, pnl, weightedDays float64
		for _, m := range g.matches {
			qty += m.Quantity
			cost += m.EntryPrice * m.Quantity
			pnl += m.PnL
			weightedDays += float64(m.HoldingDays) * m.Quantity
		}

		r := baseRecord(t, leg)
		r.Date = exit.Date
		r.Status = contracts.StatusClosed
		r.Exits = [contracts.MaxExitLots]contracts.Lot{exit}
		r.Matches = append([]contracts.LotMatch(nil), g.matches...)
		r.TotalEntryQty = qty
		r.TotalExitQty = qty
		r.AvgEntry = div(cost, qty)
		r.AvgExit = exit.Price
		r.PositionSize = cost
		r.RealizedPnL = pnl
		r.HoldingDays = div(weightedDays, qty)
		r.StockMovePct = movePct(r.AvgEntry, r.AvgExit, t.Direction)
		r.StopLossAmount = riskPerShare * qty
		if riskPerShare > 0 && qty > 0 {
			r.RewardRisk = pnl / qty / riskPerShare
		}
		r.Capital = resolve(capital, exit.Date, t.Capital)
		r.AllocationPct = sizing.Ratio(r.PositionSize, r.Capital) * 100
		r.PfImpact = sizing.Ratio(r.RealizedPnL, r.Capital) * 100
		out = append(out, r)
	}

	if t.OpenQty > 0 {
		leg++
		var qty, cost, weightedDays float64
		for _, ol := range t.OpenLots {
			qty += ol.Quantity
			cost += ol.Price * ol.Quantity
			weightedDays += float64(ol.HoldingDays) * ol.Quantity
		}

		r := baseRecord(t, leg)
		r.Status = contracts.StatusOpen
		r.OpenLots = append([]contracts.OpenLot(nil), t.OpenLots...)
		r.TotalEntryQty = qty
		r.OpenQty = qty
		r.AvgEntry = div(cost, qty)
		r.PositionSize = cost
		r.UnrealizedPnL = t.UnrealizedPnL
		r.HoldingDays = div(weightedDays, qty)
		if t.CurrentPrice > 0 {
			r.StockMovePct = movePct(r.AvgEntry, t.CurrentPrice, t.Direction)
		}
		r.StopLossAmount = riskPerShare * qty
		if riskPerShare > 0 && qty > 0 {
			r.RewardRisk = t.UnrealizedPnL / qty / riskPerShare
		}
		r.Capital = t.Capital
		r.AllocationPct = sizing.Ratio(r.PositionSize, r.Capital) * 100
		r.OpenImpact = sizing.Ratio(r.UnrealizedPnL, r.Capital) * 100
		out = append(out, r)
	}
	return out
}

// baseRecord copies identity and inputs of t and clears all derived quantities
func baseRecord(t contracts.Trade, leg int) contracts.Trade {
	return contracts.Trade{
		ID:           fmt.Sprintf("%s#%d", t.ID, leg),
		TradeNo:      t.TradeNo,
		Name:         t.Name,
		Setup:        t.Setup,
		Notes:        t.Notes,
		Date:         t.Date,
		Direction:    t.Direction,
		Entries:      t.Entries,
		StopLoss:     t.StopLoss,
		TrailingStop: t.TrailingStop,
		CurrentPrice: t.CurrentPrice,
		Normalized:   t.Normalized,
		SourceID:     t.ID,
		Leg:          leg,
	}
}

func resolve(capital CapitalSource, date string, fallback float64) float64 {
	if capital == nil {
		return fallback
	}
	if v, ok := capital.ResolveString(date); ok {
		return v
	}
	return 0
}

func movePct(from, to float64, d contracts.Direction) float64 {
	if from <= 0 || to <= 0 {
		return 0
	}
	return (to - from) / from * 100 * d.Sign()
}

func div(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
