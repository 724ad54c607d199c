package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradelens/internal/dataset"
	"github.com/wonny/tradelens/internal/scheduler"
	"github.com/wonny/tradelens/internal/scheduler/jobs"
)

var (
	watchOpts     analyzeOptions
	watchSchedule string
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "일지 파일 변경 감시 및 재계산",
	Long: `스케줄에 따라 일지 파일을 다시 읽고, 내용(SHA256)이 바뀌면
XIRR 캐시를 비운 뒤 파이프라인과 리포트를 다시 계산합니다.

등록되는 작업:
- refresh: --schedule 주기 (기본 REFRESH_SCHEDULE)
- cache_stats: 10분마다 (XIRR 캐시 통계 로그)

Ctrl+C로 종료할 수 있습니다.

Example:
  go run ./cmd/tradelens watch --file trades.yaml
  go run ./cmd/tradelens watch --file trades.yaml --schedule "*/5 * * * *" --basis cash`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addAnalyzeFlags(watchCmd, &watchOpts)
	watchCmd.Flags().IntVar(&watchOpts.Limit, "limit", 20, "max trade rows per report (0 = all)")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron schedule, default REFRESH_SCHEDULE")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single refresh and exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	d, err := initDeps(nil)
	if err != nil {
		return err
	}
	defer d.close()

	refreshCfg := d.cfg.Refresh
	if watchOpts.File != "" {
		refreshCfg.TradesFile = watchOpts.File
	}
	if watchSchedule != "" {
		refreshCfg.Schedule = watchSchedule
	}
	if refreshCfg.TradesFile == "" {
		return fmt.Errorf("no journal file: use --file or TRADES_FILE")
	}

	watchOpts.Output = "text"
	w := cmd.OutOrStdout()
	refresh := jobs.NewRefreshJob(refreshCfg, d.engine, func(ctx context.Context, ds *dataset.Dataset) error {
		result, err := analyzeDataset(ctx, d, ds, watchOpts)
		if err != nil {
			return err
		}
		return renderResult(w, result, watchOpts)
	}, d.log)

	sched, err := initScheduler(d, refresh, jobs.NewCacheStatsJob(d.engine, d.log))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	first, err := sched.RunNow(ctx, refresh.Name())
	if err != nil {
		return err
	}
	if !first.Success {
		PrintWarning(w, "initial refresh failed: "+first.Error)
	}
	if watchOnce {
		if !first.Success {
			return fmt.Errorf("refresh failed: %s", first.Error)
		}
		return nil
	}

	sched.Start()
	PrintSuccess(w, fmt.Sprintf("Watching %s (%s)", refreshCfg.TradesFile, refresh.Schedule()))
	PrintInfo(w, "Press Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	fmt.Fprintln(w, "\nShutting down scheduler...")
	sched.Stop()
	printJobStats(w, sched)
	return nil
}

func initScheduler(d *deps, list ...scheduler.Job) (*scheduler.Scheduler, error) {
	sched := scheduler.New(d.log,
		scheduler.WithLocation(d.cfg.Location()),
		scheduler.WithRetry(1, 5*time.Second),
	)
	for _, job := range list {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func printJobStats(w io.Writer, sched *scheduler.Scheduler) {
	stats := sched.Stats()
	for _, name := range sched.Jobs() {
		st := stats[name]
		fmt.Fprintf(w, "📊 %s\n", name)
		PrintKeyValue(w, "Schedule", st.Schedule, 10)
		PrintKeyValue(w, "Runs", fmt.Sprintf("%d (success %.1f%%, skipped %d)", st.TotalRuns, st.SuccessRate*100, st.SkippedCount), 10)
		if st.LastRun != nil {
			PrintKeyValue(w, "Last Run", st.LastRun.Format("2006-01-02 15:04:05"), 10)
		}
	}
}
