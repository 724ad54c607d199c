package contracts

import "time"

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 스냅샷에서 이 상수를 사용해야 함
//
// 파이프라인 흐름 (선형 의존 체인):
//   P1 → P2 → P3 → P4 → P5 → P6
//   Sizing  Normalize  Basis  Filter  Sort  Cumulative

// Stage represents a pipeline stage
type Stage string

const (
	// StageSizing P1: 거래 월별 자본 기준 산출
	StageSizing Stage = "P1_SIZING"

	// StageNormalize P2: 거래 정규화 (FIFO lot 매칭, 파생 필드)
	StageNormalize Stage = "P2_NORMALIZE"

	// StageBasis P3: 손익 귀속 기준 확장 (cash / accrual)
	StageBasis Stage = "P3_BASIS"

	// StageFilter P4: 기간 → 검색어 → 상태 필터
	StageFilter Stage = "P4_FILTER"

	// StageSort P5: 정렬
	StageSort Stage = "P5_SORT"

	// StageCumulative P6: 누적 포트폴리오 영향 계산
	StageCumulative Stage = "P6_CUMULATIVE"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "P1", "P2")
func (s Stage) ShortName() string {
	switch s {
	case StageSizing:
		return "P1"
	case StageNormalize:
		return "P2"
	case StageBasis:
		return "P3"
	case StageFilter:
		return "P4"
	case StageSort:
		return "P5"
	case StageCumulative:
		return "P6"
	default:
		return "UNKNOWN"
	}
}

// Description returns Korean description of the stage
func (s Stage) Description() string {
	switch s {
	case StageSizing:
		return "자본 기준 산출"
	case StageNormalize:
		return "거래 정규화"
	case StageBasis:
		return "손익 귀속 기준 확장"
	case StageFilter:
		return "기간/검색/상태 필터"
	case StageSort:
		return "정렬"
	case StageCumulative:
		return "누적 성과 계산"
	default:
		return "알 수 없음"
	}
}

// AllStages returns all pipeline stages in dependency order
func AllStages() []Stage {
	return []Stage{
		StageSizing,
		StageNormalize,
		StageBasis,
		StageFilter,
		StageSort,
		StageCumulative,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}

// StageStatus 단계 상태
// pending → processing → completed | error (terminal)
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusProcessing StageStatus = "processing"
	StatusCompleted  StageStatus = "completed"
	StatusError      StageStatus = "error"
)

// rank orders statuses along the lifecycle; completed and error share the terminal rank
func (s StageStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether s → next is exactly one lifecycle step
// processing은 건너뛸 수 없다.
func (s StageStatus) CanTransition(next StageStatus) bool {
	if s.rank() < 0 || next.rank() < 0 || s.Terminal() {
		return false
	}
	return next.rank() == s.rank()+1
}

// Terminal reports completed or error
func (s StageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ProcessingStage records one stage of one pipeline run
type ProcessingStage struct {
	Stage     Stage         `json:"stage"`
	Status    StageStatus   `json:"status"`
	Result    interface{}   `json:"-"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
}
