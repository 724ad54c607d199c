package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_XIRRSolvesOncePerInput(t *testing.T) {
	e, err := NewEngineWithCapacity(8, nil)
	require.NoError(t, err)

	calls := 0
	e.solve = func(in XIRRInput) XIRRResult {
		calls++
		return SolveXIRR(in)
	}

	in := XIRRInput{
		StartDate:    day("2023-01-01"),
		StartCapital: 100000,
		EndDate:      day("2024-01-01"),
		EndCapital:   110000,
	}

	first := e.XIRR(in)
	second := e.XIRR(in)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.InDelta(t, 0.10, first.Rate, 1e-6)

	stats := e.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestEngine_ClearCacheForcesRecompute(t *testing.T) {
	e, err := NewEngineWithCapacity(8, nil)
	require.NoError(t, err)

	calls := 0
	e.solve = func(in XIRRInput) XIRRResult {
		calls++
		return SolveXIRR(in)
	}

	in := XIRRInput{StartDate: day("2023-01-01"), StartCapital: 1, EndDate: day("2024-01-01"), EndCapital: 2}
	e.XIRR(in)
	e.ClearCache()
	e.XIRR(in)

	assert.Equal(t, 2, calls)
}

func TestEngine_UndeterminedIsCached(t *testing.T) {
	e, err := NewEngineWithCapacity(8, nil)
	require.NoError(t, err)

	calls := 0
	e.solve = func(in XIRRInput) XIRRResult {
		calls++
		return SolveXIRR(in)
	}

	in := XIRRInput{StartDate: day("2024-06-01"), StartCapital: 1, EndDate: day("2024-01-01"), EndCapital: 2}
	assert.False(t, e.XIRR(in).Determined())
	assert.False(t, e.XIRR(in).Determined())
	assert.Equal(t, 1, calls)
}

func TestEngine_WithoutCache(t *testing.T) {
	e := NewEngine(nil, nil)
	r := e.XIRR(XIRRInput{StartDate: day("2023-01-01"), StartCapital: 100, EndDate: day("2024-01-01"), EndCapital: 110})
	assert.True(t, r.Determined())
	assert.Zero(t, e.CacheStats().Capacity)
	e.ClearCache()
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	e, err := NewEngineWithCapacity(4, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := XIRRInput{
				StartDate:    day("2023-01-01"),
				StartCapital: 100,
				EndDate:      day("2024-01-01"),
				EndCapital:   float64(100 + i%6),
			}
			e.XIRR(in)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, e.CacheStats().Size, 4)
}

func TestEngine_VaRDelegates(t *testing.T) {
	e := NewEngine(nil, nil)
	returns := []float64{0.02, -0.03, 0.01, -0.05, 0.04}

	assert.Equal(t, CalculateVaR(returns, DefaultConfidence), e.VaR(returns, DefaultConfidence))
	assert.Equal(t, CalculateParametricVaR(0.001, 0.02, 0.99), e.ParametricVaR(0.001, 0.02, 0.99))

	v := e.VaR(returns, 0.9)
	assert.InDelta(t, 0.05, v.VaR, 1e-12)
	assert.InDelta(t, 0.05, v.CVaR, 1e-12)
}
