package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/tradelens/internal/audit"
	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/dataset"
	"github.com/wonny/tradelens/internal/pipeline"
	"github.com/wonny/tradelens/internal/selection"
)

// analyzeOptions analyze/watch 공통 옵션
type analyzeOptions struct {
	File   string
	Basis  string
	Search string
	Status string
	From   string
	To     string
	Sort   string
	Desc   bool
	Output string
	Limit  int
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "매매 일지 분석",
	Long: `매매 일지를 파이프라인으로 처리하고 성과/리스크 리포트를 출력합니다.

리포트 내용:
- 성과 요약 (승률, 평균 손익, 기대값, Profit Factor, 연승/연패)
- 리스크 요약 (XIRR, MDD, 변동성, Sharpe/Sortino/Calmar, VaR/CVaR)
- 셋업별 기여도, 손익률/보유기간/비중 분포
- 벤치마크 비교 (일지에 benchmark가 있을 때)

Example:
  go run ./cmd/tradelens analyze --file trades.yaml
  go run ./cmd/tradelens analyze --file trades.yaml --basis cash --from 2024-01-01 --to 2024-06-30
  go run ./cmd/tradelens analyze --file trades.json --search breakout --sort pf_impact --desc --output json`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addAnalyzeFlags(analyzeCmd, &analyzeOpts)
	analyzeCmd.Flags().StringVarP(&analyzeOpts.Output, "output", "o", "text", "output format (text|json)")
	analyzeCmd.Flags().IntVar(&analyzeOpts.Limit, "limit", 20, "max trade rows in text output (0 = all)")
}

// addAnalyzeFlags registers the dataset and pipeline flags shared with watch
func addAnalyzeFlags(cmd *cobra.Command, o *analyzeOptions) {
	cmd.Flags().StringVarP(&o.File, "file", "f", "", "journal file (.json|.yaml|.yml), default TRADES_FILE")
	cmd.Flags().StringVar(&o.Basis, "basis", string(contracts.BasisAccrual), "P&L attribution basis (accrual|cash)")
	cmd.Flags().StringVar(&o.Search, "search", "", "case-insensitive search over name, setup, notes, trade no")
	cmd.Flags().StringVar(&o.Status, "status", "all", "status filter (Open|Partial|Closed|all)")
	cmd.Flags().StringVar(&o.From, "from", "", "date range start YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&o.To, "to", "", "date range end YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&o.Sort, "sort", selection.DefaultSortColumn, "sort column ("+strings.Join(selection.Columns(), ", ")+")")
	cmd.Flags().BoolVar(&o.Desc, "desc", false, "sort descending")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeOpts.Output != "text" && analyzeOpts.Output != "json" {
		return fmt.Errorf("invalid output %q (text|json)", analyzeOpts.Output)
	}

	d, err := initDeps(nil)
	if err != nil {
		return err
	}
	defer d.close()

	path := analyzeOpts.File
	if path == "" {
		path = d.cfg.Refresh.TradesFile
	}
	if path == "" {
		return fmt.Errorf("no journal file: use --file or TRADES_FILE")
	}

	ds, err := dataset.Load(path)
	if err != nil {
		return err
	}

	result, err := analyzeDataset(cmd.Context(), d, ds, analyzeOpts)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), result, analyzeOpts)
}

// analysisResult 파이프라인 실행 + 리포트
type analysisResult struct {
	Dataset string        `json:"dataset"`
	Run     *pipeline.Run `json:"run"`
	Report  *audit.Report `json:"report"`
}

// buildInput converts CLI options into a pipeline input
func buildInput(ds *dataset.Dataset, o analyzeOptions) (pipeline.Input, error) {
	status, err := selection.ParseStatusFilter(o.Status)
	if err != nil {
		return pipeline.Input{}, err
	}
	dr, err := selection.ParseDateRange(o.From, o.To)
	if err != nil {
		return pipeline.Input{}, err
	}
	return pipeline.Input{
		Trades:         ds.Trades,
		CapitalChanges: ds.CapitalChanges,
		SizeLookup:     ds.SizeLookup(),
		DefaultCapital: ds.DefaultCapital,
		Basis:          contracts.Basis(strings.ToLower(strings.TrimSpace(o.Basis))),
		Search:         o.Search,
		Status:         status,
		DateRange:      dr,
		Sort:           selection.SortDescriptor{Column: o.Sort, Desc: o.Desc},
	}, nil
}

// analyzeDataset runs the pipeline and aggregates its output
func analyzeDataset(ctx context.Context, d *deps, ds *dataset.Dataset, o analyzeOptions) (*analysisResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	in, err := buildInput(ds, o)
	if err != nil {
		return nil, err
	}

	run, err := d.pipeline.Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	report := d.analyzer.Analyze(audit.ReportInput{
		Trades:         run.Output.Trades,
		StartCapital:   ds.DefaultCapital,
		CapitalChanges: ds.CapitalChanges,
		Benchmark:      ds.Benchmark,
	})
	return &analysisResult{Dataset: ds.Path, Run: run, Report: report}, nil
}

func renderResult(w io.Writer, r *analysisResult, o analyzeOptions) error {
	if o.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	trades := r.Run.Output.Trades
	PrintHeader(w, "tradelens analyze",
		fmt.Sprintf("Dataset   : %s", r.Dataset),
		fmt.Sprintf("Run ID    : %s", r.Run.ID),
		fmt.Sprintf("Basis     : %s", o.Basis),
		fmt.Sprintf("Records   : %d (executor %s, %dms)", len(trades), r.Run.Output.Executor, r.Run.Duration.Milliseconds()),
	)
	printStages(w, r.Run)
	PrintSeparator(w)
	printTrades(w, trades, o.Limit)
	fmt.Fprintln(w)
	fmt.Fprint(w, r.Report.ToSummary())
	return nil
}

func printStages(w io.Writer, run *pipeline.Run) {
	for _, st := range run.Stages {
		fmt.Fprintf(w, "  %s %-20s %-10s %dms\n", st.Stage.ShortName(), st.Stage.Description(), st.Status, st.Duration.Milliseconds())
	}
}

func printTrades(w io.Writer, trades []contracts.Trade, limit int) {
	if len(trades) == 0 {
		PrintInfo(w, "no trades matched")
		return
	}

	columns := []string{"ID", "Date", "Name", "Status", "Size", "Realized", "Impact%", "Cum%", "Days"}
	widths := []int{10, 10, 16, 7, 12, 12, 8, 8, 6}
	PrintTableHeader(w, columns, widths)

	shown := trades
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, t := range shown {
		PrintTableRow(w, []string{
			t.ID,
			t.Date,
			t.Name,
			string(t.Status),
			fmt.Sprintf("%.2f", t.PositionSize),
			fmt.Sprintf("%.2f", t.RealizedPnL),
			fmt.Sprintf("%.2f", t.PfImpact),
			fmt.Sprintf("%.2f", t.CumulativeImpact),
			fmt.Sprintf("%.0f", t.HoldingDays),
		}, widths)
	}
	if len(shown) < len(trades) {
		PrintInfo(w, fmt.Sprintf("%d more rows (use --limit 0 to show all)", len(trades)-len(shown)))
	}
}
