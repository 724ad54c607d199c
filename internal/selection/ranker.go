package selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/tradelens/internal/contracts"
)

// LessFunc orders two trades
type LessFunc func(a, b contracts.Trade) bool

// SortDescriptor 정렬 조건 (컬럼 + 방향)
// Less가 지정되면 Column보다 우선한다.
type SortDescriptor struct {
	Column string   `json:"column"`
	Desc   bool     `json:"desc"`
	Less   LessFunc `json:"-"`
}

// DefaultSortColumn 기본 정렬 컬럼 (시간순)
const DefaultSortColumn = "date"

var columns = map[string]LessFunc{
	"date":           byDate(func(t contracts.Trade) string { return t.Date }),
	"exit_date":      byDate(contracts.Trade.RealizationDate),
	"name":           byString(func(t contracts.Trade) string { return t.Name }),
	"setup":          byString(func(t contracts.Trade) string { return t.Setup }),
	"trade_no":       byString(func(t contracts.Trade) string { return t.TradeNo }),
	"status":         byString(func(t contracts.Trade) string { return string(t.Status) }),
	"realized_pnl":   byFloat(func(t contracts.Trade) float64 { return t.RealizedPnL }),
	"unrealized_pnl": byFloat(func(t contracts.Trade) float64 { return t.UnrealizedPnL }),
	"pf_impact":      byFloat(func(t contracts.Trade) float64 { return t.PfImpact }),
	"position_size":  byFloat(func(t contracts.Trade) float64 { return t.PositionSize }),
	"allocation_pct": byFloat(func(t contracts.Trade) float64 { return t.AllocationPct }),
	"holding_days":   byFloat(func(t contracts.Trade) float64 { return t.HoldingDays }),
	"stock_move_pct": byFloat(func(t contracts.Trade) float64 { return t.StockMovePct }),
	"reward_risk":    byFloat(func(t contracts.Trade) float64 { return t.RewardRisk }),
}

// Columns returns the sortable column names
func Columns() []string {
	out := make([]string, 0, len(columns))
	for name := range columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the comparator for the descriptor
func (d SortDescriptor) Resolve() (LessFunc, error) {
	less := d.Less
	if less == nil {
		col := strings.ToLower(strings.TrimSpace(d.Column))
		if col == "" {
			col = DefaultSortColumn
		}
		var ok bool
		if less, ok = columns[col]; !ok {
			return nil, fmt.Errorf("unknown sort column %q", d.Column)
		}
	}
	if d.Desc {
		asc := less
		less = func(a, b contracts.Trade) bool { return asc(b, a) }
	}
	return less, nil
}

// Sort returns a stably sorted copy; equal keys keep their input order
func Sort(trades []contracts.Trade, d SortDescriptor) ([]contracts.Trade, error) {
	less, err := d.Resolve()
	if err != nil {
		return nil, err
	}
	out := append([]contracts.Trade(nil), trades...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out, nil
}

// byDate 오름차순에서 파싱할 수 없는 날짜는 뒤에 둔다
func byDate(key func(contracts.Trade) string) LessFunc {
	return func(a, b contracts.Trade) bool {
		da, errA := contracts.ParseDate(key(a))
		if errA != nil {
			return false
		}
		db, errB := contracts.ParseDate(key(b))
		if errB != nil {
			return true
		}
		return da.Before(db)
	}
}

func byString(key func(contracts.Trade) string) LessFunc {
	return func(a, b contracts.Trade) bool {
		return strings.ToLower(key(a)) < strings.ToLower(key(b))
	}
}

func byFloat(key func(contracts.Trade) float64) LessFunc {
	return func(a, b contracts.Trade) bool {
		return key(a) < key(b)
	}
}
