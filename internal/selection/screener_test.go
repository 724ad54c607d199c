package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradelens/internal/contracts"
)

func fixtures() []contracts.Trade {
	return []contracts.Trade{
		{ID: "a", TradeNo: "T-001", Name: "Acme Corp", Setup: "Breakout", Date: "2024-01-05", Status: contracts.StatusClosed},
		{ID: "b", TradeNo: "T-002", Name: "Beta Inc", Setup: "Pullback", Notes: "earnings gap", Date: "2024-02-10", Status: contracts.StatusOpen},
		{ID: "c", TradeNo: "T-003", Name: "Gamma", Setup: "breakout", Date: "2024-03-15", Status: contracts.StatusPartial},
		{ID: "d", TradeNo: "T-004", Name: "Delta", Setup: "Reversal", Date: "bad-date", Status: contracts.StatusClosed},
	}
}

func ids(trades []contracts.Trade) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.ID
	}
	return out
}

func TestScreener_Screen(t *testing.T) {
	feb, err := ParseDateRange("2024-02-01", "2024-03-31")
	require.NoError(t, err)

	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"no filters", Criteria{}, []string{"a", "b", "c", "d"}},
		{"search is case-insensitive on setup", Criteria{Search: "BREAKOUT"}, []string{"a", "c"}},
		{"search matches notes", Criteria{Search: "earnings"}, []string{"b"}},
		{"search matches trade number", Criteria{Search: "t-004"}, []string{"d"}},
		{"whitespace-only search is ignored", Criteria{Search: "   "}, []string{"a", "b", "c", "d"}},
		{"status", Criteria{Status: contracts.StatusClosed}, []string{"a", "d"}},
		{"date range excludes unparseable dates", Criteria{Range: feb}, []string{"b", "c"}},
		{"filters combine", Criteria{Range: feb, Search: "breakout", Status: contracts.StatusPartial}, []string{"c"}},
		{"nothing matches", Criteria{Search: "zzz"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewScreener(tt.criteria, nil).Screen(fixtures())
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestDateRange_InclusiveBounds(t *testing.T) {
	r, err := ParseDateRange("2024-01-05", "2024-01-05")
	require.NoError(t, err)
	assert.True(t, r.Contains("2024-01-05"))
	assert.False(t, r.Contains("2024-01-06"))
	assert.False(t, r.Contains("2024-01-04"))

	open, err := ParseDateRange("", "2024-01-31")
	require.NoError(t, err)
	assert.True(t, open.Contains("1999-01-01"))

	_, err = ParseDateRange("2024-02-01", "2024-01-01")
	assert.Error(t, err)
	_, err = ParseDateRange("yesterday", "")
	assert.Error(t, err)
}

func TestParseStatusFilter(t *testing.T) {
	s, err := ParseStatusFilter("all")
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = ParseStatusFilter("")
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = ParseStatusFilter("Partial")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPartial, s)

	_, err = ParseStatusFilter("pending")
	assert.Error(t, err)
}
