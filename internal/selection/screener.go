package selection

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/pkg/logger"
)

// DateRange 전역 기간 필터 (양 끝 포함, zero = 무제한)
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// IsZero reports an unbounded range
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains reports whether date falls in the range
// 범위가 지정된 경우 파싱할 수 없는 날짜는 제외된다.
func (r DateRange) Contains(date string) bool {
	if r.IsZero() {
		return true
	}
	d, err := contracts.ParseDate(date)
	if err != nil {
		return false
	}
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// ParseDateRange parses "YYYY-MM-DD" bounds; empty strings are unbounded
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	if from != "" {
		d, err := contracts.ParseDate(from)
		if err != nil {
			return r, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		r.From = d
	}
	if to != "" {
		d, err := contracts.ParseDate(to)
		if err != nil {
			return r, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		r.To = d
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("date range end %s is before start %s", to, from)
	}
	return r, nil
}

// ParseStatusFilter "" 또는 "all" → 전체 (빈 상태값)
func ParseStatusFilter(s string) (contracts.PositionStatus, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return "", nil
	}
	return contracts.ParseStatus(s)
}

// Criteria 필터 조건
type Criteria struct {
	Range  DateRange
	Search string                   // 종목명/셋업/거래번호/메모 대소문자 무시 부분일치
	Status contracts.PositionStatus // "" = 전체
}

// Screener 거래 필터
// 적용 순서: 기간 → 검색어 → 상태
type Screener struct {
	criteria Criteria
	search   string
	logger   *logger.Logger
}

// NewScreener creates a new screener
func NewScreener(criteria Criteria, log *logger.Logger) *Screener {
	return &Screener{
		criteria: criteria,
		search:   strings.ToLower(strings.TrimSpace(criteria.Search)),
		logger:   logger.OrNop(log).WithComponent("selection"),
	}
}

// Screen returns the trades that pass every filter, preserving order
func (s *Screener) Screen(trades []contracts.Trade) []contracts.Trade {
	passed := make([]contracts.Trade, 0, len(trades))
	filtered := make(map[string]int) // filter name → count

	for _, t := range trades {
		if reason := s.checkConditions(t); reason != "" {
			filtered[reason]++
			continue
		}
		passed = append(passed, t)
	}

	s.logger.WithFields(map[string]interface{}{
		"total_input":  len(trades),
		"passed":       len(passed),
		"filtered_out": len(trades) - len(passed),
		"filters":      filtered,
	}).Debug("Screening completed")

	return passed
}

// checkConditions returns the name of the first failing filter, or ""
func (s *Screener) checkConditions(t contracts.Trade) string {
	if !s.criteria.Range.Contains(t.Date) {
		return "date_range"
	}
	if s.search != "" && !matchesSearch(t, s.search) {
		return "search"
	}
	if s.criteria.Status != "" && t.Status != s.criteria.Status {
		return "status"
	}
	return ""
}

// matchesSearch needle must already be lower-cased
func matchesSearch(t contracts.Trade, needle string) bool {
	for _, field := range []string{t.Name, t.Setup, t.TradeNo, t.Notes} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
