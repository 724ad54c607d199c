package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/selection"
	"github.com/wonny/tradelens/internal/worker"
)

// closedTrade buys qty@entry and sells everything at exit
func closedTrade(id, date, exitDate string, entry, exit, qty float64) contracts.Trade {
	return contracts.Trade{
		ID:        id,
		Name:      "Stock " + id,
		Setup:     "breakout",
		Date:      date,
		Direction: contracts.DirectionBuy,
		Entries:   [contracts.MaxEntryLots]contracts.Lot{{Price: entry, Quantity: qty, Date: date}},
		Exits:     [contracts.MaxExitLots]contracts.Lot{{Price: exit, Quantity: qty, Date: exitDate}},
	}
}

func threeTrades() []contracts.Trade {
	return []contracts.Trade{
		closedTrade("c", "2024-03-01", "2024-03-10", 100, 120, 100), // +2000
		closedTrade("a", "2024-01-02", "2024-01-20", 100, 110, 100), // +1000
		closedTrade("b", "2024-02-01", "2024-02-05", 50, 45, 100),   // -500
	}
}

func manyTrades(n int) []contracts.Trade {
	out := make([]contracts.Trade, n)
	for i := range out {
		out[i] = closedTrade(fmt.Sprintf("m%02d", i), "2024-01-02", "2024-01-09", 10, 11, 10)
	}
	return out
}

func ids(trades []contracts.Trade) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.ID
	}
	return out
}

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func TestPipeline_RunProducesSortedCumulativeOutput(t *testing.T) {
	p := New(nil)
	run, err := p.Run(context.Background(), Input{Trades: threeTrades(), DefaultCapital: 100000})
	require.NoError(t, err)
	require.NotNil(t, run.Output)

	out := run.Output.Trades
	assert.Equal(t, []string{"a", "b", "c"}, ids(out))
	assert.InDelta(t, 1.0, out[0].CumulativeImpact, 1e-9)
	assert.InDelta(t, 0.5, out[1].CumulativeImpact, 1e-9)
	assert.InDelta(t, 2.5, out[2].CumulativeImpact, 1e-9)
	assert.InDelta(t, 2500.0, out[2].CumulativePnL, 1e-9)

	assert.Equal(t, "sync", run.Output.Executor)
	assert.Equal(t, 100000.0, run.Output.Sizes["2024-01"])
	assert.Equal(t, 100.0, run.Progress())
	assert.NotEmpty(t, run.ID)
	for _, s := range run.Stages {
		assert.Equal(t, contracts.StatusCompleted, s.Status, s.Stage)
	}
}

func TestPipeline_StageOrdering(t *testing.T) {
	rec := &recorder{}
	p := New(nil, WithObserver(rec.observe))
	_, err := p.Run(context.Background(), Input{Trades: threeTrades(), DefaultCapital: 100000})
	require.NoError(t, err)

	// 6 stages × (processing, completed)
	require.Len(t, rec.snapshots, 12)

	for _, snap := range rec.snapshots {
		for i := 1; i < len(snap.Stages); i++ {
			cur, prev := snap.Stages[i], snap.Stages[i-1]
			if cur.Status != contracts.StatusPending {
				assert.Equal(t, contracts.StatusCompleted, prev.Status,
					"%s is %s before %s completed", cur.Stage, cur.Status, prev.Stage)
			}
		}
	}

	last := rec.snapshots[len(rec.snapshots)-1]
	assert.Equal(t, 100.0, last.Progress)
	assert.InDelta(t, 100.0/6, rec.snapshots[1].Progress, 1e-9)
}

func TestPipeline_StageFailurePreservesCompletedStages(t *testing.T) {
	p := New(nil)
	run, err := p.Run(context.Background(), Input{
		Trades:         threeTrades(),
		DefaultCapital: 100000,
		Basis:          "mark-to-market",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "P3 failed")
	assert.Nil(t, run.Output)
	assert.Equal(t, err, run.Err)

	want := []contracts.StageStatus{
		contracts.StatusCompleted,
		contracts.StatusCompleted,
		contracts.StatusError,
		contracts.StatusPending,
		contracts.StatusPending,
		contracts.StatusPending,
	}
	for i, s := range run.Stages {
		assert.Equal(t, want[i], s.Status, s.Stage)
	}

	basisStage, ok := run.Stage(contracts.StageBasis)
	require.True(t, ok)
	assert.NotEmpty(t, basisStage.Error)

	normalized, ok := run.Stage(contracts.StageNormalize)
	require.True(t, ok)
	assert.Len(t, normalized.Result, 3)
	assert.InDelta(t, 100.0*2/6, run.Progress(), 1e-9)
}

func TestPipeline_SortFailure(t *testing.T) {
	run, err := New(nil).Run(context.Background(), Input{
		Trades:         threeTrades(),
		DefaultCapital: 100000,
		Sort:           selection.SortDescriptor{Column: "ticker"},
	})
	require.Error(t, err)
	s, _ := run.Stage(contracts.StageSort)
	assert.Equal(t, contracts.StatusError, s.Status)
}

func TestPipeline_FilterBasisAndSort(t *testing.T) {
	partial := contracts.Trade{
		ID:        "p",
		Name:      "Partial Co",
		Date:      "2024-01-10",
		Direction: contracts.DirectionBuy,
		Entries:   [contracts.MaxEntryLots]contracts.Lot{{Price: 10, Quantity: 100, Date: "2024-01-10"}},
		Exits:     [contracts.MaxExitLots]contracts.Lot{{Price: 12, Quantity: 50, Date: "2024-02-15"}},
	}
	trades := append(threeTrades(), partial)
	rng, err := selection.ParseDateRange("2024-02-01", "2024-12-31")
	require.NoError(t, err)

	run, err := New(nil).Run(context.Background(), Input{
		Trades:         trades,
		DefaultCapital: 100000,
		Basis:          contracts.BasisCash,
		Status:         contracts.StatusClosed,
		DateRange:      rng,
		Sort:           selection.SortDescriptor{Column: "realized_pnl", Desc: true},
	})
	require.NoError(t, err)

	// cash basis: the partial's exit leg is dated 2024-02-15; its open remainder is dated in January
	assert.Equal(t, []string{"c#1", "p#1", "b#1"}, ids(run.Output.Trades))
}

type stubExecutor struct {
	name string
	err  error
	sync *worker.SyncExecutor
}

func (s *stubExecutor) Name() string { return s.name }

func (s *stubExecutor) Normalize(ctx context.Context, batch worker.Batch) ([]contracts.Trade, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sync.Normalize(ctx, batch)
}

func TestPipeline_OffloadAboveThreshold(t *testing.T) {
	offload := &stubExecutor{name: "offload", sync: worker.NewSyncExecutor(nil)}
	p := New(nil, WithOffload(offload, 5))

	run, err := p.Run(context.Background(), Input{Trades: manyTrades(6), DefaultCapital: 100000})
	require.NoError(t, err)
	assert.Equal(t, "offload", run.Output.Executor)

	run, err = p.Run(context.Background(), Input{Trades: manyTrades(5), DefaultCapital: 100000})
	require.NoError(t, err)
	assert.Equal(t, "sync", run.Output.Executor, "threshold is exclusive")
}

func TestPipeline_OffloadFallsBackWhenUnavailable(t *testing.T) {
	offload := &stubExecutor{name: "offload", err: worker.ErrUnavailable}
	p := New(nil, WithOffload(offload, 1))

	run, err := p.Run(context.Background(), Input{Trades: manyTrades(3), DefaultCapital: 100000})
	require.NoError(t, err)
	assert.Equal(t, "sync", run.Output.Executor)
	assert.Len(t, run.Output.Trades, 3)
}

func TestPipeline_OffloadErrorFailsStage(t *testing.T) {
	offload := &stubExecutor{name: "offload", err: fmt.Errorf("disk on fire")}
	p := New(nil, WithOffload(offload, 1))

	run, err := p.Run(context.Background(), Input{Trades: manyTrades(3), DefaultCapital: 100000})
	require.Error(t, err)
	s, _ := run.Stage(contracts.StageNormalize)
	assert.Equal(t, contracts.StatusError, s.Status)
}

type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingExecutor) Name() string { return "blocking" }

func (b *blockingExecutor) Normalize(ctx context.Context, batch worker.Batch) ([]contracts.Trade, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return worker.NewSyncExecutor(nil).Normalize(ctx, batch)
}

func TestPipeline_NewerRunSupersedesOlder(t *testing.T) {
	block := &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
	p := New(nil, WithOffload(block, 2))

	var (
		oldRun *Run
		oldErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		oldRun, oldErr = p.Run(context.Background(), Input{Trades: manyTrades(5), DefaultCapital: 100000})
	}()
	<-block.started

	newRun, err := p.Run(context.Background(), Input{Trades: threeTrades()[:1], DefaultCapital: 100000})
	require.NoError(t, err)
	require.NotNil(t, newRun.Output)

	close(block.release)
	<-done

	assert.ErrorIs(t, oldErr, ErrSuperseded)
	assert.Nil(t, oldRun.Output)
	assert.Less(t, oldRun.Generation, newRun.Generation)

	snap := p.Snapshot()
	assert.Equal(t, newRun.ID, snap.RunID)
	assert.Equal(t, 100.0, snap.Progress)
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := New(nil).Run(ctx, Input{Trades: threeTrades(), DefaultCapital: 100000})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, run.Output)
}

func TestPipeline_SnapshotBeforeFirstRun(t *testing.T) {
	snap := New(nil).Snapshot()
	assert.Len(t, snap.Stages, 6)
	assert.Zero(t, snap.Progress)
	for _, s := range snap.Stages {
		assert.Equal(t, contracts.StatusPending, s.Status)
	}
}

func TestPipeline_EmptyInput(t *testing.T) {
	run, err := New(nil).Run(context.Background(), Input{DefaultCapital: 100000})
	require.NoError(t, err)
	assert.Empty(t, run.Output.Trades)
	assert.Equal(t, 100.0, run.Progress())
}

func TestAccumulate_DoesNotMutateInput(t *testing.T) {
	in := []contracts.Trade{{ID: "x", PfImpact: 1, RealizedPnL: 10}, {ID: "y", PfImpact: -3, RealizedPnL: -30}}
	out := Accumulate(in)

	assert.Zero(t, in[1].CumulativeImpact)
	assert.InDelta(t, -2.0, out[1].CumulativeImpact, 1e-12)
	assert.InDelta(t, -20.0, out[1].CumulativePnL, 1e-12)
}
