package contracts

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Direction & Position Status
// =============================================================================

// Direction 포지션 방향
type Direction string

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
)

// Sign returns +1 for long positions and -1 for short positions
func (d Direction) Sign() float64 {
	if d == DirectionSell {
		return -1
	}
	return 1
}

// ParseDirection parses a direction case-insensitively; "" is Buy
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "buy", "long":
		return DirectionBuy, nil
	case "sell", "short":
		return DirectionSell, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// PositionStatus 포지션 상태 (Open | Partial | Closed)
// ⭐ SSOT: 상태 문자열은 이 상수만 사용
type PositionStatus string

const (
	StatusOpen    PositionStatus = "Open"
	StatusPartial PositionStatus = "Partial"
	StatusClosed  PositionStatus = "Closed"
)

// Valid reports whether s is one of the three known statuses
func (s PositionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPartial, StatusClosed:
		return true
	}
	return false
}

// ParseStatus parses a status case-insensitively
func ParseStatus(s string) (PositionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return StatusOpen, nil
	case "partial":
		return StatusPartial, nil
	case "closed":
		return StatusClosed, nil
	}
	return "", fmt.Errorf("unknown position status %q", s)
}

// =============================================================================
// Lots
// =============================================================================

const (
	// MaxEntryLots 최초 진입 + 피라미딩 2회
	MaxEntryLots = 3
	// MaxExitLots 분할 청산 최대 3회
	MaxExitLots = 3
)

// Lot is a single fill (entry, pyramid addition or exit)
// Quantity 0 means the slot is unused.
type Lot struct {
	Price    float64 `json:"price" yaml:"price"`
	Quantity float64 `json:"quantity" yaml:"quantity"`
	Date     string  `json:"date" yaml:"date"` // YYYY-MM-DD
}

// Filled reports whether the slot holds a usable fill
func (l Lot) Filled() bool {
	return l.Quantity > 0 && l.Price > 0
}

// LotMatch is one FIFO pairing of an entry lot against an exit lot
type LotMatch struct {
	EntryIndex  int     `json:"entry_index"`
	ExitIndex   int     `json:"exit_index"`
	Quantity    float64 `json:"quantity"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	EntryDate   string  `json:"entry_date"`
	ExitDate    string  `json:"exit_date"`
	PnL         float64 `json:"pnl"`
	HoldingDays int     `json:"holding_days"`
}

// OpenLot is the unconsumed remainder of an entry lot
type OpenLot struct {
	EntryIndex  int     `json:"entry_index"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Date        string  `json:"date"`
	HoldingDays int     `json:"holding_days"`
}

// =============================================================================
// Trade
// =============================================================================

// Trade 포지션 기록
// 입력 필드(식별자, 방향, 체결 lot, 손절가, 현재가)와 정규화 단계에서 채워지는 파생 필드로 구성.
// 정규화 이후에는 불변으로 취급한다.
type Trade struct {
	ID        string    `json:"id" yaml:"id"`
	TradeNo   string    `json:"trade_no" yaml:"trade_no"`
	Name      string    `json:"name" yaml:"name"`
	Setup     string    `json:"setup" yaml:"setup"`
	Notes     string    `json:"notes,omitempty" yaml:"notes"`
	Date      string    `json:"date" yaml:"date"` // 최초 진입일
	Direction Direction `json:"direction" yaml:"direction"`

	Entries [MaxEntryLots]Lot `json:"entries" yaml:"entries"` // [0]=initial, [1..2]=pyramids
	Exits   [MaxExitLots]Lot  `json:"exits" yaml:"exits"`

	StopLoss     float64        `json:"stop_loss" yaml:"stop_loss"`
	TrailingStop float64        `json:"trailing_stop,omitempty" yaml:"trailing_stop"`
	CurrentPrice float64        `json:"current_price,omitempty" yaml:"current_price"`
	Status       PositionStatus `json:"status" yaml:"status"`

	// Derived (normalizer)
	TotalEntryQty   float64    `json:"total_entry_qty"`
	TotalExitQty    float64    `json:"total_exit_qty"`
	OpenQty         float64    `json:"open_qty"`
	AvgEntry        float64    `json:"avg_entry"`
	AvgExit         float64    `json:"avg_exit"`
	PositionSize    float64    `json:"position_size"`
	AllocationPct   float64    `json:"allocation_pct"`
	StopLossAmount  float64    `json:"stop_loss_amount"`
	RealizedPnL     float64    `json:"realized_pnl"`
	UnrealizedPnL   float64    `json:"unrealized_pnl"`
	PfImpact        float64    `json:"pf_impact"`   // realized P&L / capital (%)
	OpenImpact      float64    `json:"open_impact"` // unrealized P&L / capital (%)
	StockMovePct    float64    `json:"stock_move_pct"`
	RewardRisk      float64    `json:"reward_risk"`
	HoldingDays     float64    `json:"holding_days"`
	Capital         float64    `json:"capital"`
	Matches         []LotMatch `json:"matches,omitempty"`
	OpenLots        []OpenLot  `json:"open_lots,omitempty"`
	Normalized      bool       `json:"normalized"`

	// Basis expansion
	SourceID string `json:"source_id,omitempty"`
	Leg      int    `json:"leg,omitempty"`

	// Cumulative (pipeline stage 6)
	CumulativeImpact float64 `json:"cumulative_impact"`
	CumulativePnL    float64 `json:"cumulative_pnl"`
}

// Clone returns a deep copy; slices are not shared with the receiver
func (t Trade) Clone() Trade {
	c := t
	if t.Matches != nil {
		c.Matches = append([]LotMatch(nil), t.Matches...)
	}
	if t.OpenLots != nil {
		c.OpenLots = append([]OpenLot(nil), t.OpenLots...)
	}
	return c
}

// IsWin reports a strictly positive realized P&L
func (t Trade) IsWin() bool {
	return t.RealizedPnL > 0
}

// IsLoss reports a strictly negative realized P&L
func (t Trade) IsLoss() bool {
	return t.RealizedPnL < 0
}

// HasExits reports whether any quantity was realized
func (t Trade) HasExits() bool {
	return t.TotalExitQty > 0
}

// LastExitDate returns the latest filled exit date, or "" when none
func (t Trade) LastExitDate() string {
	var last time.Time
	lastStr := ""
	for _, ex := range t.Exits {
		if !ex.Filled() {
			continue
		}
		d, err := ParseDate(ex.Date)
		if err != nil {
			continue
		}
		if lastStr == "" || d.After(last) {
			last, lastStr = d, ex.Date
		}
	}
	return lastStr
}

// RealizationDate 실현 손익이 귀속되는 날짜 (마지막 청산일, 없으면 진입일)
func (t Trade) RealizationDate() string {
	if d := t.LastExitDate(); d != "" {
		return d
	}
	return t.Date
}
