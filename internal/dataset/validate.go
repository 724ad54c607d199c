package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/tradelens/internal/contracts"
)

// ValidationError 검증 실패
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks structural constraints of a journal file
// lot 날짜 오류는 정규화 단계에서 0일로 처리되므로 여기서 거부하지 않는다.
func Validate(f *File) error {
	// === Capital ===
	if !positive(f.DefaultCapital) {
		return ValidationError{"default_capital", "must be > 0"}
	}
	for month, v := range f.MonthlySizes {
		if _, err := time.Parse("2006-01", month); err != nil {
			return ValidationError{fmt.Sprintf("monthly_sizes[%s]", month), "key must be YYYY-MM"}
		}
		if !positive(v) {
			return ValidationError{fmt.Sprintf("monthly_sizes[%s]", month), "must be > 0"}
		}
	}
	for i, c := range f.CapitalChanges {
		field := fmt.Sprintf("capital_changes[%d]", i)
		if _, err := contracts.ParseDate(c.Date); err != nil {
			return ValidationError{field + ".date", err.Error()}
		}
		if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
			return ValidationError{field + ".amount", "must be finite"}
		}
	}

	// === Trades ===
	seen := make(map[string]int, len(f.Trades))
	for i, r := range f.Trades {
		field := fmt.Sprintf("trades[%d]", i)
		if r.ID != "" {
			if j, dup := seen[r.ID]; dup {
				return ValidationError{field + ".id", fmt.Sprintf("duplicate of trades[%d]", j)}
			}
			seen[r.ID] = i
		}
		if _, err := contracts.ParseDirection(r.Direction); err != nil {
			return ValidationError{field + ".direction", err.Error()}
		}
		if r.Status != "" {
			if _, err := contracts.ParseStatus(r.Status); err != nil {
				return ValidationError{field + ".status", err.Error()}
			}
		}
		if len(r.Entries) > contracts.MaxEntryLots {
			return ValidationError{field + ".entries", fmt.Sprintf("at most %d lots", contracts.MaxEntryLots)}
		}
		if len(r.Exits) > contracts.MaxExitLots {
			return ValidationError{field + ".exits", fmt.Sprintf("at most %d lots", contracts.MaxExitLots)}
		}
		if err := validateLots(field+".entries", r.Entries); err != nil {
			return err
		}
		if err := validateLots(field+".exits", r.Exits); err != nil {
			return err
		}
		if r.StopLoss < 0 || r.CurrentPrice < 0 {
			return ValidationError{field, "prices must be >= 0"}
		}
	}

	// === Benchmark ===
	for i, p := range f.Benchmark {
		field := fmt.Sprintf("benchmark[%d]", i)
		if _, err := time.Parse("2006-01", p.Period); err != nil {
			return ValidationError{field + ".period", "must be YYYY-MM"}
		}
		if math.IsNaN(p.Return) || math.IsInf(p.Return, 0) {
			return ValidationError{field + ".return", "must be finite"}
		}
	}
	return nil
}

func validateLots(field string, lots []contracts.Lot) error {
	for i, l := range lots {
		if l.Price < 0 || l.Quantity < 0 || math.IsNaN(l.Price) || math.IsNaN(l.Quantity) {
			return ValidationError{fmt.Sprintf("%s[%d]", field, i), "price and quantity must be >= 0"}
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
