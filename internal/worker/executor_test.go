package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/normalize"
	"github.com/wonny/tradelens/internal/sizing"
	"github.com/wonny/tradelens/pkg/config"
)

var refDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testNormalizer() *normalize.Normalizer {
	return normalize.New(normalize.WithClock(func() time.Time { return refDate }))
}

func makeTrades(n int) []contracts.Trade {
	out := make([]contracts.Trade, n)
	for i := range out {
		out[i] = contracts.Trade{
			ID:        fmt.Sprintf("t%03d", i),
			Date:      "2024-01-02",
			Direction: contracts.DirectionBuy,
			Entries:   [contracts.MaxEntryLots]contracts.Lot{{Price: 10, Quantity: float64(10 + i), Date: "2024-01-02"}},
			Exits:     [contracts.MaxExitLots]contracts.Lot{{Price: 11, Quantity: float64(10 + i), Date: "2024-01-12"}},
			StopLoss:  9,
		}
	}
	return out
}

func testBatch(n int) Batch {
	return Batch{
		Trades:         makeTrades(n),
		Sizes:          sizing.MonthlySizes{"2024-01": 50000},
		DefaultCapital: 100000,
	}
}

func TestSyncExecutor_Normalize(t *testing.T) {
	exec := NewSyncExecutor(testNormalizer())
	out, err := exec.Normalize(context.Background(), testBatch(3))
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, tr := range out {
		assert.True(t, tr.Normalized)
		assert.Equal(t, 50000.0, tr.Capital, "month table wins over default")
		assert.InDelta(t, float64(10+i), tr.RealizedPnL, 1e-9)
	}
	assert.Equal(t, "sync", exec.Name())
}

func TestSyncExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSyncExecutor(nil).Normalize(ctx, testBatch(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsyncExecutor_MatchesSyncOutput(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 3, ChunkSize: 7}, nil)
	require.NoError(t, err)
	defer async.Close()

	batch := testBatch(60)
	got, err := async.Normalize(context.Background(), batch)
	require.NoError(t, err)

	want, err := NewSyncExecutor(testNormalizer()).Normalize(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Zero(t, async.Pending())
}

func TestAsyncExecutor_ConcurrentRequestsAreCorrelated(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 2, ChunkSize: 4}, nil)
	require.NoError(t, err)
	defer async.Close()

	type result struct {
		n   int
		out []contracts.Trade
		err error
	}
	results := make(chan result, 8)
	for n := 1; n <= 8; n++ {
		go func(n int) {
			out, err := async.Normalize(context.Background(), testBatch(n))
			results <- result{n: n, out: out, err: err}
		}(n)
	}

	for i := 0; i < 8; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Len(t, r.out, r.n, "each caller receives its own batch")
	}
}

func TestAsyncExecutor_ProcessErrorAndPanic(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 1}, nil)
	require.NoError(t, err)
	defer async.Close()

	boom := errors.New("boom")
	async.process = func(context.Context, Batch) ([]contracts.Trade, error) { return nil, boom }
	_, err = async.Normalize(context.Background(), testBatch(1))
	assert.ErrorIs(t, err, boom)

	async.process = func(context.Context, Batch) ([]contracts.Trade, error) { panic("bad lot") }
	_, err = async.Normalize(context.Background(), testBatch(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad lot")
}

func TestAsyncExecutor_Closed(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 1}, nil)
	require.NoError(t, err)
	async.Close()
	async.Close()

	_, err = async.Normalize(context.Background(), testBatch(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAsyncExecutor_ContextCancelWhileWaiting(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 1}, nil)
	require.NoError(t, err)
	defer async.Close()

	release := make(chan struct{})
	async.process = func(context.Context, Batch) ([]contracts.Trade, error) {
		<-release
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = async.Normalize(ctx, testBatch(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.Eventually(t, func() bool { return async.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewAsyncExecutor_Disabled(t *testing.T) {
	_, err := NewAsyncExecutor(nil, config.WorkerConfig{Concurrency: 0}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewExecutor_Selection(t *testing.T) {
	exec, closeFn := NewExecutor(config.WorkerConfig{Concurrency: 0}, testNormalizer(), nil)
	defer closeFn()
	assert.Equal(t, "sync", exec.Name())

	exec, closeFn = NewExecutor(config.WorkerConfig{Concurrency: 2, ChunkSize: 10}, testNormalizer(), nil)
	defer closeFn()
	assert.Equal(t, "async+sync", exec.Name())

	out, err := exec.Normalize(context.Background(), testBatch(5))
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestFallbackExecutor_UsesSyncWhenWorkerClosed(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 1}, nil)
	require.NoError(t, err)
	async.Close()

	exec := WithFallback(async, NewSyncExecutor(testNormalizer()), nil)
	out, err := exec.Normalize(context.Background(), testBatch(4))
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestFallbackExecutor_PropagatesOtherErrors(t *testing.T) {
	async, err := NewAsyncExecutor(testNormalizer(), config.WorkerConfig{Concurrency: 1}, nil)
	require.NoError(t, err)
	defer async.Close()

	boom := errors.New("boom")
	async.process = func(context.Context, Batch) ([]contracts.Trade, error) { return nil, boom }

	exec := WithFallback(async, NewSyncExecutor(testNormalizer()), nil)
	_, err = exec.Normalize(context.Background(), testBatch(1))
	assert.ErrorIs(t, err, boom)
}
