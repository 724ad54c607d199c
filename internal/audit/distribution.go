package audit

import (
	"math"
	"sort"
	"strings"

	"github.com/wonny/tradelens/internal/contracts"
)

// =============================================================================
// Distribution Buckets
// =============================================================================

// Bucket 분포 구간 [Min, Max)
// 열린 끝과 범주형 분포(셋업)는 Min/Max가 nil이며 JSON에서 null로 직렬화된다.
type Bucket struct {
	Label string   `json:"label"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Count int      `json:"count"`
	Pct   float64  `json:"pct"`
}

// Distribution 거래 분포
type Distribution struct {
	PnLPct       []Bucket `json:"pnl_pct"`
	HoldingDays  []Bucket `json:"holding_days"`
	PositionSize []Bucket `json:"position_size"` // 자본 대비 비중 %
	Setup        []Bucket `json:"setup"`
}

type bucketDef struct {
	label    string
	min, max float64
}

var inf = math.Inf(1)

var (
	pnlBuckets = []bucketDef{
		{"< -10%", -inf, -10},
		{"-10% ~ -5%", -10, -5},
		{"-5% ~ 0%", -5, 0},
		{"0% ~ 5%", 0, 5},
		{"5% ~ 10%", 5, 10},
		{"10% ~ 20%", 10, 20},
		{">= 20%", 20, inf},
	}
	holdingBuckets = []bucketDef{
		{"0-3d", 0, 4},
		{"4-7d", 4, 8},
		{"8-14d", 8, 15},
		{"15-30d", 15, 31},
		{"31-60d", 31, 61},
		{"61d+", 61, inf},
	}
	sizeBuckets = []bucketDef{
		{"< 5%", 0, 5},
		{"5% ~ 10%", 5, 10},
		{"10% ~ 20%", 10, 20},
		{"20% ~ 30%", 20, 30},
		{">= 30%", 30, inf},
	}
)

func zeroDistribution() Distribution {
	return Distribution{
		PnLPct:       emptyBuckets(pnlBuckets),
		HoldingDays:  emptyBuckets(holdingBuckets),
		PositionSize: emptyBuckets(sizeBuckets),
		Setup:        []Bucket{},
	}
}

// Distribution 손익률/보유기간/비중/셋업 분포 (빈 입력이면 라벨만 있는 0값)
func (a *Analyzer) Distribution(trades []contracts.Trade) Distribution {
	return safely(a, "distribution", zeroDistribution, func() Distribution {
		return distribute(trades)
	})
}

func distribute(trades []contracts.Trade) Distribution {
	d := zeroDistribution()
	if len(trades) == 0 {
		return d
	}

	pnl := make([]float64, 0, len(trades))
	holding := make([]float64, 0, len(trades))
	size := make([]float64, 0, len(trades))
	for _, t := range trades {
		pnl = append(pnl, pnlPct(t))
		holding = append(holding, t.HoldingDays)
		size = append(size, t.AllocationPct)
	}

	d.PnLPct = fill(pnlBuckets, pnl)
	d.HoldingDays = fill(holdingBuckets, holding)
	d.PositionSize = fill(sizeBuckets, size)
	d.Setup = setupBuckets(trades)
	return d
}

// pnlPct (실현 + 미실현) / 포지션 금액 × 100
func pnlPct(t contracts.Trade) float64 {
	if t.PositionSize == 0 {
		return 0
	}
	return (t.RealizedPnL + t.UnrealizedPnL) / t.PositionSize * 100
}

func emptyBuckets(defs []bucketDef) []Bucket {
	out := make([]Bucket, len(defs))
	for i, def := range defs {
		out[i] = Bucket{Label: def.label, Min: bound(def.min), Max: bound(def.max)}
	}
	return out
}

func bound(v float64) *float64 {
	if math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// fill 값을 구간에 배정. 범위 밖(또는 NaN) 값은 가장 가까운 끝 구간으로.
func fill(defs []bucketDef, values []float64) []Bucket {
	out := emptyBuckets(defs)
	for _, v := range values {
		out[bucketIndex(defs, v)].Count++
	}
	percentages(out, len(values))
	return out
}

func bucketIndex(defs []bucketDef, v float64) int {
	if math.IsNaN(v) || v < defs[0].min {
		return 0
	}
	for i, def := range defs {
		if v >= def.min && v < def.max {
			return i
		}
	}
	return len(defs) - 1
}

func setupBuckets(trades []contracts.Trade) []Bucket {
	index := make(map[string]int)
	out := make([]Bucket, 0)
	for _, t := range trades {
		name := strings.TrimSpace(t.Setup)
		if name == "" {
			name = NoSetup
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, Bucket{Label: name})
		}
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	percentages(out, len(trades))
	return out
}

func percentages(buckets []Bucket, total int) {
	if total == 0 {
		return
	}
	for i := range buckets {
		buckets[i].Pct = float64(buckets[i].Count) / float64(total) * 100
	}
}
