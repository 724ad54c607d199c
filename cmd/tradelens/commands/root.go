package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env       string
	logFormat string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tradelens",
	Short: "tradelens - 매매 일지 분석 도구",
	Long: `tradelens CLI

매매 일지(JSON/YAML)를 정규화하고 성과/리스크 지표를 계산합니다.
6단계 파이프라인: 자본 기준 → 정규화 → 손익 귀속 → 필터 → 정렬 → 누적.

Usage:
  go run ./cmd/tradelens [command]

Examples:
  go run ./cmd/tradelens analyze --file trades.yaml
  go run ./cmd/tradelens analyze --file trades.yaml --basis cash --status closed --sort realized_pnl --desc
  go run ./cmd/tradelens xirr --start-date 2024-01-01 --start-capital 100000 --end-date 2024-12-31 --end-capital 112000
  go run ./cmd/tradelens watch --file trades.yaml --schedule "@every 30s"`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (json|console)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs, stage progress)")
}
