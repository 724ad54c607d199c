package contracts

// CapitalChange 입출금 기록
// Amount > 0 는 입금, Amount < 0 는 출금. 해당 날짜부터 자본 기준에 반영된다.
type CapitalChange struct {
	Date        string  `json:"date" yaml:"date"`
	Amount      float64 `json:"amount" yaml:"amount"`
	Description string  `json:"description,omitempty" yaml:"description"`
}

// Basis 손익 귀속 기준
type Basis string

const (
	// BasisAccrual 진입 시점 기준
	BasisAccrual Basis = "accrual"
	// BasisCash 청산(실현) 시점 기준
	BasisCash Basis = "cash"
)

// PeriodReturn is a keyed periodic return, e.g. "2024-03" -> 0.021
type PeriodReturn struct {
	Period string  `json:"period" yaml:"period"`
	Return float64 `json:"return" yaml:"return"`
}
