package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/risk"
)

var (
	xirrStartDate    string
	xirrStartCapital float64
	xirrEndDate      string
	xirrEndCapital   float64
	xirrFlows        []string
	xirrOutput       string
)

var xirrCmd = &cobra.Command{
	Use:   "xirr",
	Short: "XIRR (자금가중 수익률) 계산",
	Long: `시작/종료 자본과 중간 입출금으로 연환산 XIRR을 계산합니다.

--flow 는 "YYYY-MM-DD:amount" 형식이며 여러 번 지정할 수 있습니다.
amount > 0 은 입금, amount < 0 은 출금입니다.
근을 찾지 못하면 "undetermined"로 표시합니다 (0% 수익률과 다름).

Example:
  go run ./cmd/tradelens xirr --start-date 2024-01-01 --start-capital 100000 --end-date 2024-12-31 --end-capital 112000
  go run ./cmd/tradelens xirr --start-date 2024-01-01 --start-capital 100000 --end-date 2024-12-31 --end-capital 131000 --flow 2024-07-01:20000`,
	RunE: runXIRR,
}

func init() {
	rootCmd.AddCommand(xirrCmd)
	xirrCmd.Flags().StringVar(&xirrStartDate, "start-date", "", "start date YYYY-MM-DD")
	xirrCmd.Flags().Float64Var(&xirrStartCapital, "start-capital", 0, "capital at start")
	xirrCmd.Flags().StringVar(&xirrEndDate, "end-date", "", "end date YYYY-MM-DD")
	xirrCmd.Flags().Float64Var(&xirrEndCapital, "end-capital", 0, "capital at end")
	xirrCmd.Flags().StringArrayVar(&xirrFlows, "flow", nil, "interim flow date:amount (repeatable)")
	xirrCmd.Flags().StringVarP(&xirrOutput, "output", "o", "text", "output format (text|json)")
	_ = xirrCmd.MarkFlagRequired("start-date")
	_ = xirrCmd.MarkFlagRequired("end-date")
}

func runXIRR(cmd *cobra.Command, args []string) error {
	in, err := buildXIRRInput(xirrStartDate, xirrStartCapital, xirrEndDate, xirrEndCapital, xirrFlows)
	if err != nil {
		return err
	}

	result := risk.NewEngine(nil, nil).XIRR(in)

	w := cmd.OutOrStdout()
	if xirrOutput == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Input  risk.XIRRInput  `json:"input"`
			Result risk.XIRRResult `json:"result"`
		}{in, result})
	}

	PrintHeader(w, "tradelens xirr")
	PrintKeyValue(w, "Start", fmt.Sprintf("%s  %.2f", xirrStartDate, in.StartCapital), 8)
	PrintKeyValue(w, "End", fmt.Sprintf("%s  %.2f", xirrEndDate, in.EndCapital), 8)
	for _, f := range in.Flows {
		PrintKeyValue(w, "Flow", fmt.Sprintf("%s  %+.2f", f.Date.Format(contracts.DateLayout), f.Amount), 8)
	}
	PrintSeparator(w)
	PrintKeyValue(w, "XIRR", formatPct(result.Rate*100, result.Determined()), 8)
	PrintKeyValue(w, "Status", string(result.Status), 8)
	PrintKeyValue(w, "Method", fmt.Sprintf("%s (%d iterations)", result.Method, result.Iterations), 8)
	return nil
}

func buildXIRRInput(startDate string, startCapital float64, endDate string, endCapital float64, flows []string) (risk.XIRRInput, error) {
	start, err := contracts.ParseDate(startDate)
	if err != nil {
		return risk.XIRRInput{}, fmt.Errorf("invalid --start-date: %w", err)
	}
	end, err := contracts.ParseDate(endDate)
	if err != nil {
		return risk.XIRRInput{}, fmt.Errorf("invalid --end-date: %w", err)
	}

	in := risk.XIRRInput{StartDate: start, StartCapital: startCapital, EndDate: end, EndCapital: endCapital}
	for _, raw := range flows {
		f, err := parseFlow(raw)
		if err != nil {
			return risk.XIRRInput{}, err
		}
		in.Flows = append(in.Flows, f)
	}
	return in, nil
}

// parseFlow parses "YYYY-MM-DD:amount"; the last colon separates the amount
func parseFlow(raw string) (risk.CashFlow, error) {
	i := strings.LastIndex(raw, ":")
	if i < 0 {
		return risk.CashFlow{}, fmt.Errorf("invalid --flow %q: want date:amount", raw)
	}
	date, amount := raw[:i], raw[i+1:]
	d, err := contracts.ParseDate(date)
	if err != nil {
		return risk.CashFlow{}, fmt.Errorf("invalid --flow %q: %w", raw, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return risk.CashFlow{}, fmt.Errorf("invalid --flow %q: %w", raw, err)
	}
	return risk.CashFlow{Date: d, Amount: v}, nil
}
