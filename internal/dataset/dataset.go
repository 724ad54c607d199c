package dataset

import (
	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/sizing"
)

// File 거래 일지 파일 스키마 (.json / .yaml / .yml)
type File struct {
	DefaultCapital float64                   `json:"default_capital" yaml:"default_capital"`
	MonthlySizes   map[string]float64        `json:"monthly_sizes" yaml:"monthly_sizes"` // "YYYY-MM" → capital
	CapitalChanges []contracts.CapitalChange `json:"capital_changes" yaml:"capital_changes"`
	Trades         []Record                  `json:"trades" yaml:"trades"`
	Benchmark      []contracts.PeriodReturn  `json:"benchmark" yaml:"benchmark"`
}

// Record 파일 상의 거래 입력 (lot은 가변 길이 목록)
type Record struct {
	ID           string          `json:"id" yaml:"id"`
	TradeNo      string          `json:"trade_no" yaml:"trade_no"`
	Name         string          `json:"name" yaml:"name"`
	Setup        string          `json:"setup" yaml:"setup"`
	Notes        string          `json:"notes" yaml:"notes"`
	Date         string          `json:"date" yaml:"date"`
	Direction    string          `json:"direction" yaml:"direction"`
	Entries      []contracts.Lot `json:"entries" yaml:"entries"`
	Exits        []contracts.Lot `json:"exits" yaml:"exits"`
	StopLoss     float64         `json:"stop_loss" yaml:"stop_loss"`
	TrailingStop float64         `json:"trailing_stop" yaml:"trailing_stop"`
	CurrentPrice float64         `json:"current_price" yaml:"current_price"`
	Status       string          `json:"status" yaml:"status"`
}

// Dataset 검증을 통과한 일지
// Checksum은 원본 바이트의 SHA256 (변경 감지용).
type Dataset struct {
	Path           string
	Checksum       string
	DefaultCapital float64
	MonthlySizes   sizing.MonthlySizes
	CapitalChanges []contracts.CapitalChange
	Trades         []contracts.Trade
	Benchmark      []contracts.PeriodReturn
}

// SizeLookup 월별 자본 기준 조회 함수
func (d *Dataset) SizeLookup() sizing.Lookup {
	if len(d.MonthlySizes) == 0 {
		return nil
	}
	return d.MonthlySizes.Lookup
}

// trade converts a validated record into a raw Trade
func (r Record) trade() contracts.Trade {
	t := contracts.Trade{
		ID:           r.ID,
		TradeNo:      r.TradeNo,
		Name:         r.Name,
		Setup:        r.Setup,
		Notes:        r.Notes,
		Date:         r.Date,
		Direction:    contracts.DirectionBuy,
		StopLoss:     r.StopLoss,
		TrailingStop: r.TrailingStop,
		CurrentPrice: r.CurrentPrice,
	}
	if d, err := contracts.ParseDirection(r.Direction); err == nil {
		t.Direction = d
	}
	if s, err := contracts.ParseStatus(r.Status); err == nil {
		t.Status = s
	}
	copy(t.Entries[:], r.Entries)
	copy(t.Exits[:], r.Exits)
	if t.Date == "" && len(r.Entries) > 0 {
		t.Date = r.Entries[0].Date
	}
	return t
}
