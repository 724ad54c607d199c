package risk

// =============================================================================
// Trade Statistics
// =============================================================================

// Expectancy 거래당 기대 손익 (평균 P&L)
func Expectancy(pnls []float64) float64 {
	return guard(Mean(pnls))
}

// ProfitFactor 총이익 / |총손실|
// 손실이 없으면 0 (무한대 대신)
func ProfitFactor(pnls []float64) float64 {
	var gains, losses float64
	for _, p := range pnls {
		switch {
		case p > 0:
			gains += p
		case p < 0:
			losses -= p
		}
	}
	if losses == 0 {
		return 0
	}
	return guard(gains / losses)
}

// CalculateStreaks 연승/연패 계산 (입력 순서 기준)
// P&L 0 은 연속 기록을 끊지도 늘리지도 않는다.
func CalculateStreaks(pnls []float64) Streaks {
	var s Streaks
	win, loss := 0, 0
	for _, p := range pnls {
		switch {
		case p > 0:
			win++
			loss = 0
			if win > s.MaxWin {
				s.MaxWin = win
			}
			s.Current = win
		case p < 0:
			loss++
			win = 0
			if loss > s.MaxLoss {
				s.MaxLoss = loss
			}
			s.Current = -loss
		}
	}
	return s
}
