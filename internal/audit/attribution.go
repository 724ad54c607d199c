package audit

import (
	"sort"
	"strings"

	"github.com/wonny/tradelens/internal/contracts"
)

// NoSetup 셋업이 비어 있는 거래의 그룹 이름
const NoSetup = "(none)"

// SetupPerformance 셋업별 기여도
type SetupPerformance struct {
	Setup       string  `json:"setup"`
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // 청산 거래 기준 %
	TotalPnL    float64 `json:"total_pnl"`
	TotalImpact float64 `json:"total_impact"` // Σ PfImpact (%)
	AvgImpact   float64 `json:"avg_impact"`
}

// Setups 셋업별 성과 기여도 (TotalImpact 내림차순)
func (a *Analyzer) Setups(trades []contracts.Trade) []SetupPerformance {
	return safely(a, "setups", func() []SetupPerformance { return []SetupPerformance{} }, func() []SetupPerformance {
		return attributeSetups(trades)
	})
}

func attributeSetups(trades []contracts.Trade) []SetupPerformance {
	index := make(map[string]int)
	out := make([]SetupPerformance, 0)
	realized := make(map[string]int)

	for _, t := range trades {
		name := strings.TrimSpace(t.Setup)
		if name == "" {
			name = NoSetup
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, SetupPerformance{Setup: name})
		}

		sp := &out[i]
		sp.Trades++
		sp.TotalPnL += t.RealizedPnL + t.UnrealizedPnL
		sp.TotalImpact += t.PfImpact
		if t.HasExits() {
			realized[name]++
			switch {
			case t.IsWin():
				sp.Wins++
			case t.IsLoss():
				sp.Losses++
			}
		}
	}

	for i := range out {
		sp := &out[i]
		sp.AvgImpact = sp.TotalImpact / float64(sp.Trades)
		if n := realized[sp.Setup]; n > 0 {
			sp.WinRate = float64(sp.Wins) / float64(n) * 100
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalImpact > out[j].TotalImpact })
	return out
}
