package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wonny/tradelens/internal/basis"
	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/selection"
	"github.com/wonny/tradelens/internal/sizing"
	"github.com/wonny/tradelens/internal/worker"
	"github.com/wonny/tradelens/pkg/logger"
)

// ErrSuperseded 더 새로운 실행이 시작되어 이 실행의 결과는 버려짐
var ErrSuperseded = errors.New("pipeline: run superseded by a newer run")

// DefaultOffloadThreshold 이 거래 수를 넘으면 정규화를 백그라운드 워커로 넘긴다
const DefaultOffloadThreshold = 50

// Input 실행 입력
type Input struct {
	Trades         []contracts.Trade
	CapitalChanges []contracts.CapitalChange
	SizeLookup     sizing.Lookup
	DefaultCapital float64
	Basis          contracts.Basis
	Search         string
	Status         contracts.PositionStatus // "" = 전체
	DateRange      selection.DateRange
	Sort           selection.SortDescriptor
}

// Output 최종 결과
type Output struct {
	Trades   []contracts.Trade   `json:"trades"`
	Sizes    sizing.MonthlySizes `json:"sizes"`
	Executor string              `json:"executor"`
}

// Run 한 번의 파이프라인 실행 기록
// 실패 시 Output은 nil이고, 완료된 단계의 Result는 진단용으로 남는다.
type Run struct {
	ID         string                      `json:"id"`
	Generation uint64                      `json:"generation"`
	Stages     []contracts.ProcessingStage `json:"stages"`
	Output     *Output                     `json:"output,omitempty"`
	Err        error                       `json:"-"`
	StartedAt  time.Time                   `json:"started_at"`
	Duration   time.Duration               `json:"duration"`
}

// Progress completed / total × 100
func (r *Run) Progress() float64 {
	return progress(r.Stages)
}

// Stage returns the record for stage
func (r *Run) Stage(stage contracts.Stage) (contracts.ProcessingStage, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return contracts.ProcessingStage{}, false
}

// Snapshot 진행 상태 스냅샷
type Snapshot struct {
	RunID      string                      `json:"run_id"`
	Generation uint64                      `json:"generation"`
	Stages     []contracts.ProcessingStage `json:"stages"`
	Progress   float64                     `json:"progress"`
}

// Observer 단계 상태가 바뀔 때마다 호출된다 (실행 goroutine에서 동기 호출)
type Observer func(Snapshot)

// Pipeline 6단계 처리 파이프라인
// ⭐ SSOT: 단계 순서/상태 전이는 여기서만
type Pipeline struct {
	inline    worker.Executor
	offload   worker.Executor
	threshold int
	observer  Observer
	logger    *logger.Logger

	mu         sync.Mutex
	generation uint64
	current    *runState
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithExecutor sets the inline normalization executor
func WithExecutor(exec worker.Executor) Option {
	return func(p *Pipeline) {
		p.inline = exec
	}
}

// WithOffload sets the executor used when the trade count exceeds threshold
func WithOffload(exec worker.Executor, threshold int) Option {
	return func(p *Pipeline) {
		p.offload = exec
		p.threshold = threshold
	}
}

// WithObserver registers a progress callback
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		p.observer = obs
	}
}

// New creates a pipeline; without options normalization runs synchronously
func New(log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		threshold: DefaultOffloadThreshold,
		logger:    logger.OrNop(log).WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inline == nil {
		p.inline = worker.NewSyncExecutor(nil)
	}
	return p
}

// Snapshot returns the stage state of the most recent run
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	st := p.current
	p.mu.Unlock()
	if st == nil {
		return Snapshot{Stages: pendingStages()}
	}
	return st.snapshot()
}

// flow 단계 간 전달되는 중간 결과
type flow struct {
	sizes      sizing.MonthlySizes
	normalized []contracts.Trade
	expanded   []contracts.Trade
	filtered   []contracts.Trade
	sorted     []contracts.Trade
	cumulative []contracts.Trade
	executor   string
}

// Run executes every stage in dependency order
// 실행 중 새 Run이 시작되면 ErrSuperseded를 반환하고 결과를 버린다.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Run, error) {
	st := p.begin()
	log := p.logger.WithRun(st.id)
	started := time.Now()

	run := &Run{ID: st.id, Generation: st.gen, StartedAt: started}
	finish := func(err error) (*Run, error) {
		run.Stages = st.stagesCopy()
		run.Duration = time.Since(started)
		run.Err = err
		return run, err
	}

	log.WithFields(map[string]interface{}{
		"trades":     len(in.Trades),
		"basis":      in.Basis,
		"generation": st.gen,
	}).Info("Starting pipeline run")

	f := &flow{}
	graph, err := p.buildGraph(in, f, log)
	if err != nil {
		return finish(err)
	}
	order, err := graph.Order()
	if err != nil {
		return finish(err)
	}

	for _, stage := range order {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if p.superseded(st) {
			log.WithField("stage", stage).Info("Pipeline run superseded")
			return finish(ErrSuperseded)
		}

		task, _ := graph.Task(stage)
		p.transition(st, stage, contracts.StatusProcessing, nil, nil)

		begin := time.Now()
		result, err := execute(ctx, task)
		elapsed := time.Since(begin)

		if err != nil {
			p.transition(st, stage, contracts.StatusError, nil, err, elapsed)
			log.WithError(err).WithFields(map[string]interface{}{
				"stage":       stage,
				"duration_ms": elapsed.Milliseconds(),
			}).Error("Pipeline stage failed")
			return finish(fmt.Errorf("%s failed: %w", stage.ShortName(), err))
		}

		p.transition(st, stage, contracts.StatusCompleted, result, nil, elapsed)
		log.WithFields(map[string]interface{}{
			"stage":       stage,
			"duration_ms": elapsed.Milliseconds(),
		}).Debug("Pipeline stage completed")
	}

	if p.superseded(st) {
		log.Info("Pipeline run superseded")
		return finish(ErrSuperseded)
	}

	run.Output = &Output{
		Trades:   f.cumulative,
		Sizes:    f.sizes,
		Executor: f.executor,
	}
	log.WithFields(map[string]interface{}{
		"output":      len(f.cumulative),
		"executor":    f.executor,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Pipeline run completed")
	return finish(nil)
}

// buildGraph P1 → P2 → P3 → P4 → P5 → P6
func (p *Pipeline) buildGraph(in Input, f *flow, log *logger.Logger) (*Graph, error) {
	g := NewGraph()
	tasks := []Task{
		{
			Stage: contracts.StageSizing,
			Run: func(context.Context) (interface{}, error) {
				resolver := sizing.NewResolver(in.DefaultCapital, in.SizeLookup, in.CapitalChanges)
				f.sizes = resolver.ResolveMonths(in.Trades)
				return f.sizes, nil
			},
		},
		{
			Stage:     contracts.StageNormalize,
			DependsOn: []contracts.Stage{contracts.StageSizing},
			Run: func(ctx context.Context) (interface{}, error) {
				batch := worker.Batch{Trades: in.Trades, Sizes: f.sizes, DefaultCapital: in.DefaultCapital}
				out, name, err := p.normalize(ctx, batch, log)
				if err != nil {
					return nil, err
				}
				f.normalized, f.executor = out, name
				return f.normalized, nil
			},
		},
		{
			Stage:     contracts.StageBasis,
			DependsOn: []contracts.Stage{contracts.StageNormalize},
			Run: func(context.Context) (interface{}, error) {
				b, err := basis.Parse(string(in.Basis))
				if err != nil {
					return nil, err
				}
				f.expanded = basis.Expand(f.normalized, b, sizing.NewTableResolver(f.sizes, in.DefaultCapital))
				return f.expanded, nil
			},
		},
		{
			Stage:     contracts.StageFilter,
			DependsOn: []contracts.Stage{contracts.StageBasis},
			Run: func(context.Context) (interface{}, error) {
				screener := selection.NewScreener(selection.Criteria{
					Range:  in.DateRange,
					Search: in.Search,
					Status: in.Status,
				}, log)
				f.filtered = screener.Screen(f.expanded)
				return f.filtered, nil
			},
		},
		{
			Stage:     contracts.StageSort,
			DependsOn: []contracts.Stage{contracts.StageFilter},
			Run: func(context.Context) (interface{}, error) {
				sorted, err := selection.Sort(f.filtered, in.Sort)
				if err != nil {
					return nil, err
				}
				f.sorted = sorted
				return f.sorted, nil
			},
		},
		{
			Stage:     contracts.StageCumulative,
			DependsOn: []contracts.Stage{contracts.StageSort},
			Run: func(context.Context) (interface{}, error) {
				f.cumulative = Accumulate(f.sorted)
				return f.cumulative, nil
			},
		},
	}
	for _, t := range tasks {
		if err := g.Add(t); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// normalize picks the offload executor above the threshold
// 워커를 사용할 수 없으면 inline 실행기로 대체한다.
func (p *Pipeline) normalize(ctx context.Context, batch worker.Batch, log *logger.Logger) ([]contracts.Trade, string, error) {
	if p.offload != nil && len(batch.Trades) > p.threshold {
		out, err := p.offload.Normalize(ctx, batch)
		if err == nil {
			return out, p.offload.Name(), nil
		}
		if !errors.Is(err, worker.ErrUnavailable) && !errors.Is(err, worker.ErrClosed) {
			return nil, "", err
		}
		log.WithError(err).Warn("Offload executor unavailable, normalizing inline")
	}
	out, err := p.inline.Normalize(ctx, batch)
	if err != nil {
		return nil, "", err
	}
	return out, p.inline.Name(), nil
}

// Accumulate 정렬 순서대로 누적 포트폴리오 영향(%)과 누적 실현손익을 채운 사본
func Accumulate(trades []contracts.Trade) []contracts.Trade {
	out := make([]contracts.Trade, len(trades))
	var impact, pnl float64
	for i, t := range trades {
		c := t.Clone()
		impact += t.PfImpact
		pnl += t.RealizedPnL
		c.CumulativeImpact = impact
		c.CumulativePnL = pnl
		out[i] = c
	}
	return out
}

// execute runs a task, converting panics into errors
func execute(ctx context.Context, t Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", t.Stage, r)
		}
	}()
	return t.Run(ctx)
}

// =============================================================================
// Run state
// =============================================================================

type runState struct {
	id  string
	gen uint64

	mu     sync.Mutex
	stages []contracts.ProcessingStage
}

func (p *Pipeline) begin() *runState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	st := &runState{
		id:     ulid.Make().String(),
		gen:    p.generation,
		stages: pendingStages(),
	}
	p.current = st
	return st
}

func (p *Pipeline) superseded(st *runState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation != st.gen
}

// transition moves stage forward and notifies the observer
// 역방향 전이는 무시된다.
func (p *Pipeline) transition(st *runState, stage contracts.Stage, next contracts.StageStatus, result interface{}, err error, elapsed ...time.Duration) {
	st.mu.Lock()
	changed := false
	for i := range st.stages {
		s := &st.stages[i]
		if s.Stage != stage || !s.Status.CanTransition(next) {
			continue
		}
		s.Status = next
		switch next {
		case contracts.StatusProcessing:
			s.StartedAt = time.Now()
		case contracts.StatusCompleted:
			s.Result = result
		case contracts.StatusError:
			if err != nil {
				s.Error = err.Error()
			}
		}
		if len(elapsed) > 0 {
			s.Duration = elapsed[0]
		}
		changed = true
	}
	st.mu.Unlock()

	if changed && p.observer != nil {
		p.observer(st.snapshot())
	}
}

func (st *runState) stagesCopy() []contracts.ProcessingStage {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]contracts.ProcessingStage(nil), st.stages...)
}

func (st *runState) snapshot() Snapshot {
	stages := st.stagesCopy()
	return Snapshot{
		RunID:      st.id,
		Generation: st.gen,
		Stages:     stages,
		Progress:   progress(stages),
	}
}

func pendingStages() []contracts.ProcessingStage {
	all := contracts.AllStages()
	out := make([]contracts.ProcessingStage, len(all))
	for i, s := range all {
		out[i] = contracts.ProcessingStage{Stage: s, Status: contracts.StatusPending}
	}
	return out
}

func progress(stages []contracts.ProcessingStage) float64 {
	if len(stages) == 0 {
		return 0
	}
	done := 0
	for _, s := range stages {
		if s.Status == contracts.StatusCompleted {
			done++
		}
	}
	return float64(done) / float64(len(stages)) * 100
}
