package basis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/normalize"
	"github.com/wonny/tradelens/internal/sizing"
)

var refDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func normalized(t *testing.T, raw ...contracts.Trade) []contracts.Trade {
	t.Helper()
	n := normalize.New(normalize.WithClock(func() time.Time { return refDate }))
	return n.NormalizeAll(raw, sizing.NewTableResolver(nil, 100000))
}

func pyramidTrade() contracts.Trade {
	return contracts.Trade{
		ID:        "t1",
		Name:      "ACME",
		Setup:     "breakout",
		Date:      "2024-01-01",
		Direction: contracts.DirectionBuy,
		Entries: [contracts.MaxEntryLots]contracts.Lot{
			{Price: 10, Quantity: 100, Date: "2024-01-01"},
			{Price: 12, Quantity: 50, Date: "2024-01-05"},
		},
		Exits: [contracts.MaxExitLots]contracts.Lot{
			{Price: 15, Quantity: 120, Date: "2024-01-20"},
			{Price: 14, Quantity: 30, Date: "2024-01-10"},
		},
		StopLoss: 9,
	}
}

func partialTrade() contracts.Trade {
	return contracts.Trade{
		ID:           "t2",
		Date:         "2024-01-01",
		Direction:    contracts.DirectionBuy,
		Entries:      [contracts.MaxEntryLots]contracts.Lot{{Price: 10, Quantity: 100, Date: "2024-01-01"}},
		Exits:        [contracts.MaxExitLots]contracts.Lot{{Price: 12, Quantity: 40, Date: "2024-01-15"}},
		CurrentPrice: 11,
	}
}

func openTrade() contracts.Trade {
	return contracts.Trade{
		ID:        "t3",
		Date:      "2024-02-01",
		Direction: contracts.DirectionSell,
		Entries:   [contracts.MaxEntryLots]contracts.Lot{{Price: 50, Quantity: 10, Date: "2024-02-01"}},
	}
}

func TestExpand_AccrualKeepsOneRecordPerTrade(t *testing.T) {
	in := normalized(t, pyramidTrade(), partialTrade(), openTrade())
	out := Expand(in, contracts.BasisAccrual, nil)

	require.Len(t, out, 3)
	assert.Equal(t, in, out)

	// copies, not aliases
	out[0].Matches[0].PnL = -1
	assert.NotEqual(t, -1.0, in[0].Matches[0].PnL)
}

func TestExpand_CashSplitsPerExitInDateOrder(t *testing.T) {
	parent := normalized(t, pyramidTrade())[0]
	out := Expand([]contracts.Trade{parent}, contracts.BasisCash, nil)
	require.Len(t, out, 2)

	first, second := out[0], out[1]
	assert.Equal(t, "t1#1", first.ID)
	assert.Equal(t, "t1", first.SourceID)
	assert.Equal(t, 1, first.Leg)
	assert.Equal(t, "2024-01-10", first.Date)
	assert.Equal(t, contracts.StatusClosed, first.Status)
	assert.InDelta(t, 30.0, first.TotalExitQty, 1e-9)
	assert.InDelta(t, 120.0, first.RealizedPnL, 1e-9)
	assert.InDelta(t, 9.0, first.HoldingDays, 1e-9)
	assert.InDelta(t, 10.0, first.AvgEntry, 1e-9)
	assert.InDelta(t, 0.12, first.PfImpact, 1e-9)
	assert.Equal(t, "2024-01-10", first.RealizationDate())

	assert.Equal(t, "t1#2", second.ID)
	assert.Equal(t, "2024-01-20", second.Date)
	assert.InDelta(t, 120.0, second.TotalExitQty, 1e-9)
	assert.InDelta(t, 500.0, second.RealizedPnL, 1e-9)
	assert.InDelta(t, 2080.0/120, second.HoldingDays, 1e-9)
	assert.InDelta(t, 1300.0/120, second.AvgEntry, 1e-9)
	assert.Len(t, second.Matches, 2)

	assert.InDelta(t, parent.RealizedPnL, first.RealizedPnL+second.RealizedPnL, 1e-9)
}

func TestExpand_CashAddsOpenRemainder(t *testing.T) {
	out := Expand(normalized(t, partialTrade()), contracts.BasisCash, nil)
	require.Len(t, out, 2)

	closed, open := out[0], out[1]
	assert.Equal(t, contracts.StatusClosed, closed.Status)
	assert.Equal(t, "2024-01-15", closed.Date)
	assert.InDelta(t, 80.0, closed.RealizedPnL, 1e-9)

	assert.Equal(t, "t2#2", open.ID)
	assert.Equal(t, contracts.StatusOpen, open.Status)
	assert.Equal(t, "2024-01-01", open.Date)
	assert.Zero(t, open.RealizedPnL)
	assert.InDelta(t, 60.0, open.OpenQty, 1e-9)
	assert.InDelta(t, 60.0, open.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 60.0, open.HoldingDays, 1e-9)
	assert.InDelta(t, 10.0, open.StockMovePct, 1e-9)
}

func TestExpand_CashPassesThroughTradesWithoutExits(t *testing.T) {
	in := normalized(t, openTrade())
	out := Expand(in, contracts.BasisCash, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "t3", out[0].ID)
	assert.Empty(t, out[0].SourceID)
}

func TestExpand_CashUsesExitMonthCapital(t *testing.T) {
	in := normalized(t, partialTrade())
	capital := sizing.NewTableResolver(sizing.MonthlySizes{"2024-01": 40000}, 100000)

	out := Expand(in, contracts.BasisCash, capital)
	require.Len(t, out, 2)
	assert.Equal(t, 40000.0, out[0].Capital)
	assert.InDelta(t, 0.2, out[0].PfImpact, 1e-9)
}

func TestParse(t *testing.T) {
	b, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, contracts.BasisAccrual, b)

	b, err = Parse("cash")
	require.NoError(t, err)
	assert.Equal(t, contracts.BasisCash, b)

	_, err = Parse("mark-to-market")
	assert.Error(t, err)
}
