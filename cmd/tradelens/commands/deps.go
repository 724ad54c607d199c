package commands

import (
	"fmt"
	"time"

	"github.com/wonny/tradelens/internal/audit"
	"github.com/wonny/tradelens/internal/normalize"
	"github.com/wonny/tradelens/internal/pipeline"
	"github.com/wonny/tradelens/internal/risk"
	"github.com/wonny/tradelens/internal/worker"
	"github.com/wonny/tradelens/pkg/config"
	"github.com/wonny/tradelens/pkg/logger"
)

// deps 커맨드 공통 의존성
// ⭐ 엔진(XIRR 캐시)은 파이프라인/집계기/refresh job이 공유한다.
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	engine   *risk.Engine
	pipeline *pipeline.Pipeline
	analyzer *audit.Analyzer
	close    func()
}

// initDeps loads config and wires the analytics core; observer may be nil
func initDeps(obs pipeline.Observer) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyGlobalFlags(cfg)

	log := logger.New(cfg)

	engine, err := risk.NewEngineWithCapacity(cfg.Analytics.XIRRCacheSize, log)
	if err != nil {
		return nil, fmt.Errorf("init risk engine: %w", err)
	}

	today := todayIn(cfg.Location())
	// inline과 offload 경로는 같은 기준일로 보유일을 계산해야 한다
	n := normalize.New(normalize.WithClock(today))
	exec, closeExec := worker.NewExecutor(cfg.Worker, n, log)

	opts := []pipeline.Option{
		pipeline.WithExecutor(worker.NewSyncExecutor(n)),
		pipeline.WithOffload(exec, cfg.Worker.OffloadThreshold),
	}
	if obs != nil {
		opts = append(opts, pipeline.WithObserver(obs))
	}

	settings := audit.DefaultSettings()
	settings.RiskFreeRate = cfg.Analytics.RiskFreeRate
	settings.PeriodsPerYear = cfg.Analytics.PeriodsPerYear
	settings.Now = today

	return &deps{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		pipeline: pipeline.New(log, opts...),
		analyzer: audit.NewAnalyzer(engine, settings, log),
		close:    closeExec,
	}, nil
}

func applyGlobalFlags(cfg *config.Config) {
	if env != "" {
		cfg.Env = env
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
}

// todayIn returns the calendar date in loc as a UTC midnight
// 거래 날짜(YYYY-MM-DD)는 UTC 자정으로 파싱되므로 같은 기준으로 맞춘다.
func todayIn(loc *time.Location) func() time.Time {
	return func() time.Time {
		n := time.Now().In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	}
}
