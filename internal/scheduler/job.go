package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression
	// Examples: "*/5 * * * *", "@every 1m", "@hourly"
	Schedule() string
}

// FuncJob adapts a function to the Job interface
type FuncJob struct {
	JobName string
	Spec    string
	Fn      func(ctx context.Context) error
}

func (j FuncJob) Name() string                  { return j.JobName }
func (j FuncJob) Schedule() string              { return j.Spec }
func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"` // 이전 실행이 끝나지 않아 건너뜀
	Error     string        `json:"error,omitempty"`
}

// historyLimit 작업별 보관 결과 수
const historyLimit = 100

// JobHistory stores job execution history (oldest first)
type JobHistory struct {
	Results []JobResult
}

// Add appends a result, keeping only the latest historyLimit entries
func (h *JobHistory) Add(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = append([]JobResult(nil), h.Results[len(h.Results)-historyLimit:]...)
	}
}

// Latest returns a copy of the latest n results
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	return append([]JobResult(nil), h.Results[len(h.Results)-n:]...)
}

// Failed returns all failed results
func (h *JobHistory) Failed() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success && !result.Skipped {
			failed = append(failed, result)
		}
	}
	return failed
}

// SuccessRate returns the success rate (0.0 - 1.0), skipped runs excluded
func (h *JobHistory) SuccessRate() float64 {
	var total, ok int
	for _, result := range h.Results {
		if result.Skipped {
			continue
		}
		total++
		if result.Success {
			ok++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}
