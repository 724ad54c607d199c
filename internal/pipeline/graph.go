package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/tradelens/internal/contracts"
)

// ErrCycle 의존 그래프에 순환이 있음
var ErrCycle = errors.New("pipeline: dependency cycle")

// TaskFunc 단계 계산 (결과는 ProcessingStage.Result로 기록된다)
type TaskFunc func(ctx context.Context) (interface{}, error)

// Task 그래프의 노드
type Task struct {
	Stage     contracts.Stage
	DependsOn []contracts.Stage
	Run       TaskFunc
}

// Graph 단계 의존 그래프 (DAG)
// 실행 순서는 Kahn 위상 정렬로 결정되며, 진입 차수가 같으면 등록 순서를 따른다.
// 기본 파이프라인은 P1 → P2 → P3 → P4 → P5 → P6 선형 체인이다.
type Graph struct {
	tasks map[contracts.Stage]Task
	order []contracts.Stage
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{tasks: make(map[contracts.Stage]Task)}
}

// Add registers a task; a stage may be added once
func (g *Graph) Add(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %s has no run function", t.Stage)
	}
	if _, dup := g.tasks[t.Stage]; dup {
		return fmt.Errorf("task %s already registered", t.Stage)
	}
	g.tasks[t.Stage] = t
	g.order = append(g.order, t.Stage)
	return nil
}

// Task returns the registered task for stage
func (g *Graph) Task(stage contracts.Stage) (Task, bool) {
	t, ok := g.tasks[stage]
	return t, ok
}

// Len returns the number of tasks
func (g *Graph) Len() int {
	return len(g.order)
}

// Order returns a topological order of the stages
func (g *Graph) Order() ([]contracts.Stage, error) {
	indegree := make(map[contracts.Stage]int, len(g.order))
	dependents := make(map[contracts.Stage][]contracts.Stage, len(g.order))
	for _, s := range g.order {
		indegree[s] += 0
		for _, dep := range g.tasks[s].DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown stage %s", s, dep)
			}
			indegree[s]++
			dependents[dep] = append(dependents[dep], s)
		}
	}

	var ready []contracts.Stage
	for _, s := range g.order {
		if indegree[s] == 0 {
			ready = append(ready, s)
		}
	}

	out := make([]contracts.Stage, 0, len(g.order))
	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]
		out = append(out, s)
		for _, d := range dependents[s] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(g.order) {
		return nil, fmt.Errorf("%w: %d of %d stages unreachable", ErrCycle, len(g.order)-len(out), len(g.order))
	}
	return out, nil
}
