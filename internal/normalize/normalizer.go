package normalize

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/sizing"
)

// CapitalSource resolves the capital base for a trade date
type CapitalSource interface {
	ResolveString(date string) (float64, bool)
}

// Normalizer derives per-trade quantities from raw position fields
// ⭐ SSOT: 파생 필드 계산은 여기서만 (입력 Trade는 변경하지 않음)
type Normalizer struct {
	now func() time.Time
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithClock sets the reference date source for open lots
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer using time.Now as the reference date
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeAll normalizes a batch, preserving order
func (n *Normalizer) NormalizeAll(trades []contracts.Trade, capital CapitalSource) []contracts.Trade {
	out := make([]contracts.Trade, len(trades))
	for i := range trades {
		out[i] = n.Normalize(trades[i], capital)
	}
	return out
}

type entrySlot struct {
	index     int
	lot       contracts.Lot
	remaining decimal.Decimal
}

type exitSlot struct {
	index int
	lot   contracts.Lot
	date  time.Time
	ok    bool
}

// Normalize returns a copy of raw with every derived field populated
// FIFO: 각 진입 lot은 날짜순으로 가장 이른 미소진 청산 lot부터 소진된다.
// 진입 수량을 초과하는 청산 수량은 무시되므로 OpenQty >= 0 이 항상 성립한다.
func (n *Normalizer) Normalize(raw contracts.Trade, capital CapitalSource) contracts.Trade {
	t := raw.Clone()
	t.Matches = nil
	t.OpenLots = nil
	sign := decimal.NewFromFloat(t.Direction.Sign())
	ref := n.now()

	// 1. 진입 lot (슬롯 순서 = 최초 진입, 피라미딩1, 피라미딩2)
	var entries []*entrySlot
	totalEntryQty := decimal.Zero
	entryCost := decimal.Zero
	for i, lot := range t.Entries {
		if !lot.Filled() {
			continue
		}
		qty := decimal.NewFromFloat(lot.Quantity)
		entries = append(entries, &entrySlot{index: i, lot: lot, remaining: qty})
		totalEntryQty = totalEntryQty.Add(qty)
		entryCost = entryCost.Add(qty.Mul(decimal.NewFromFloat(lot.Price)))
	}

	// 2. 청산 lot 날짜순 정렬 (파싱 실패는 뒤로, 상대 순서 유지)
	var exits []exitSlot
	for i, lot := range t.Exits {
		if !lot.Filled() {
			continue
		}
		d, err := contracts.ParseDate(lot.Date)
		exits = append(exits, exitSlot{index: i, lot: lot, date: d, ok: err == nil})
	}
	sort.SliceStable(exits, func(i, j int) bool {
		a, b := exits[i], exits[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.date.Before(b.date)
	})

	// 3. FIFO 매칭
	realized := decimal.Zero
	matchedQty := decimal.Zero
	exitValue := decimal.Zero
	next := 0
	for _, ex := range exits {
		want := decimal.NewFromFloat(ex.lot.Quantity)
		for want.IsPositive() && next < len(entries) {
			en := entries[next]
			take := decimal.Min(want, en.remaining)
			exitPrice := decimal.NewFromFloat(ex.lot.Price)
			pnl := exitPrice.Sub(decimal.NewFromFloat(en.lot.Price)).Mul(take).Mul(sign)

			t.Matches = append(t.Matches, contracts.LotMatch{
				EntryIndex:  en.index,
				ExitIndex:   ex.index,
				Quantity:    take.InexactFloat64(),
				EntryPrice:  en.lot.Price,
				ExitPrice:   ex.lot.Price,
				EntryDate:   en.lot.Date,
				ExitDate:    ex.lot.Date,
				PnL:         pnl.InexactFloat64(),
				HoldingDays: contracts.HoldingDaysOf(en.lot.Date, ex.lot.Date),
			})

			realized = realized.Add(pnl)
			matchedQty = matchedQty.Add(take)
			exitValue = exitValue.Add(exitPrice.Mul(take))
			en.remaining = en.remaining.Sub(take)
			want = want.Sub(take)
			if !en.remaining.IsPositive() {
				next++
			}
		}
	}

	// 4. 미소진 진입 lot → open lot (기준일 = 오늘)
	unrealized := decimal.Zero
	current := decimal.NewFromFloat(t.CurrentPrice)
	for _, en := range entries {
		if !en.remaining.IsPositive() {
			continue
		}
		days := 0
		if d, err := contracts.ParseDate(en.lot.Date); err == nil {
			days = contracts.HoldingDays(d, ref)
		}
		t.OpenLots = append(t.OpenLots, contracts.OpenLot{
			EntryIndex:  en.index,
			Quantity:    en.remaining.InexactFloat64(),
			Price:       en.lot.Price,
			Date:        en.lot.Date,
			HoldingDays: days,
		})
		if t.CurrentPrice > 0 {
			unrealized = unrealized.Add(current.Sub(decimal.NewFromFloat(en.lot.Price)).Mul(en.remaining).Mul(sign))
		}
	}

	// 5. 수량/평균가
	openQty := totalEntryQty.Sub(matchedQty)
	t.TotalEntryQty = totalEntryQty.InexactFloat64()
	t.TotalExitQty = matchedQty.InexactFloat64()
	t.OpenQty = openQty.InexactFloat64()
	t.AvgEntry = safeDiv(entryCost, totalEntryQty)
	t.AvgExit = safeDiv(exitValue, matchedQty)
	t.PositionSize = entryCost.InexactFloat64()
	t.RealizedPnL = realized.InexactFloat64()
	t.UnrealizedPnL = unrealized.InexactFloat64()
	t.Status = deriveStatus(totalEntryQty, matchedQty, raw.Status)

	// 6. 자본 대비 비율 (자본 기준 무효 시 0)
	t.Capital = 0
	if capital != nil {
		if base, ok := capital.ResolveString(t.Date); ok {
			t.Capital = base
		}
	}
	t.AllocationPct = sizing.Ratio(t.PositionSize, t.Capital) * 100
	t.PfImpact = sizing.Ratio(t.RealizedPnL, t.Capital) * 100
	t.OpenImpact = sizing.Ratio(t.UnrealizedPnL, t.Capital) * 100

	// 7. 리스크/보상
	initial := t.Entries[0]
	riskPerShare := 0.0
	if t.StopLoss > 0 && initial.Filled() {
		riskPerShare = abs(initial.Price - t.StopLoss)
		t.StopLossAmount = riskPerShare * initial.Quantity
	} else {
		t.StopLossAmount = 0
	}
	t.RewardRisk = 0
	if riskPerShare > 0 && t.TotalEntryQty > 0 {
		rewardPerShare := (t.RealizedPnL + t.UnrealizedPnL) / t.TotalEntryQty
		t.RewardRisk = rewardPerShare / riskPerShare
	}
	t.StockMovePct = stockMove(t)

	// 8. 보유일
	t.HoldingDays = holdingDays(t)
	t.Normalized = true
	return t
}

// deriveStatus derives the status from quantities
// 진입 수량이 없으면 입력 상태(유효한 경우)를 유지한다.
func deriveStatus(entryQty, exitQty decimal.Decimal, given contracts.PositionStatus) contracts.PositionStatus {
	switch {
	case !entryQty.IsPositive():
		if given.Valid() {
			return given
		}
		return contracts.StatusOpen
	case !exitQty.IsPositive():
		return contracts.StatusOpen
	case exitQty.GreaterThanOrEqual(entryQty):
		return contracts.StatusClosed
	default:
		return contracts.StatusPartial
	}
}

// stockMove 방향 보정된 가격 변동률 (%)
func stockMove(t contracts.Trade) float64 {
	if t.AvgEntry <= 0 {
		return 0
	}
	var refPrice float64
	switch {
	case t.OpenQty <= 0:
		refPrice = t.AvgExit
	case t.CurrentPrice > 0:
		refPrice = (t.AvgExit*t.TotalExitQty + t.CurrentPrice*t.OpenQty) / t.TotalEntryQty
	case t.TotalExitQty > 0:
		refPrice = t.AvgExit
	default:
		return 0
	}
	return (refPrice - t.AvgEntry) / t.AvgEntry * 100 * t.Direction.Sign()
}

// holdingDays 수량 가중 평균 보유일
// Open/Partial: 미청산 lot만, Closed: 청산된 매칭 전체
func holdingDays(t contracts.Trade) float64 {
	var weighted, qty float64
	if t.OpenQty > 0 {
		for _, ol := range t.OpenLots {
			weighted += float64(ol.HoldingDays) * ol.Quantity
			qty += ol.Quantity
		}
	} else {
		for _, m := range t.Matches {
			weighted += float64(m.HoldingDays) * m.Quantity
			qty += m.Quantity
		}
	}
	if qty <= 0 {
		return 0
	}
	return weighted / qty
}

func safeDiv(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.Div(den).InexactFloat64()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
