package contracts

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout 거래 기록의 날짜 형식
const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD, falling back to RFC3339 timestamps
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// MonthKey returns the "YYYY-MM" key used by monthly portfolio sizes
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// MonthKeyOf parses a date string and returns its month key
func MonthKeyOf(date string) (string, bool) {
	t, err := ParseDate(date)
	if err != nil {
		return "", false
	}
	return MonthKey(t), true
}

// HoldingDays ceil((to - from) in days), 최소 1일
// 음수 구간도 1일로 취급한다.
func HoldingDays(from, to time.Time) int {
	days := int(math.Ceil(to.Sub(from).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// HoldingDaysOf is HoldingDays over date strings; any parse failure yields 0
func HoldingDaysOf(from, to string) int {
	f, err := ParseDate(from)
	if err != nil {
		return 0
	}
	t, err := ParseDate(to)
	if err != nil {
		return 0
	}
	return HoldingDays(f, t)
}
