package guidance

import (
	"container/heap"
	"sort"
	"time"

	"github.com/stepline/stepline/pkg/models"
)

// PathResult is the outcome of a shortest-path search. An unreachable target
// yields Found=false, never an error.
type PathResult struct {
	Found         bool          `json:"found"`
	StepIDs       []string      `json:"step_ids,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
}

// edge weight when the target step carries no duration estimate.
const defaultStepWeight = time.Second

// FindOptimalPath searches the shortest-duration path from the execution's
// current step to the given outcome step, or to the definition's first
// outcome step (by display order) when none is named. Edge weight is the
// target step's estimated duration; a missing estimate weighs one unit.
func FindOptimalPath(exec *models.Execution, targetStepID string) PathResult {
	def := exec.Definition

	if targetStepID == "" {
		target := defaultOutcomeStep(def)
		if target == nil {
			return PathResult{}
		}

		targetStepID = target.ID
	}

	if def.StepByID(targetStepID) == nil {
		return PathResult{}
	}

	return shortestPath(def, exec.CurrentStepID, targetStepID)
}

// RemainingEstimate sums the estimated durations of the not-yet-completed
// steps along the optimal path to the default outcome. Steps without an
// estimate contribute nothing.
func RemainingEstimate(exec *models.Execution) time.Duration {
	path := FindOptimalPath(exec, "")
	if !path.Found {
		return 0
	}

	var total time.Duration

	for _, stepID := range path.StepIDs {
		state := exec.StepExecutionFor(stepID)
		if state != nil && state.Status == models.StepExecutionStatusCompleted {
			continue
		}

		if step := exec.Definition.StepByID(stepID); step != nil && step.EstimatedDuration > 0 {
			total += step.EstimatedDuration
		}
	}

	return total
}

func defaultOutcomeStep(def *models.WorkflowDefinition) *models.Step {
	outcomes := make([]*models.Step, 0)

	for _, s := range def.Steps {
		if s.IsOutcome {
			outcomes = append(outcomes, s)
		}
	}

	if len(outcomes) == 0 {
		return nil
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].DisplayOrder < outcomes[j].DisplayOrder
	})

	return outcomes[0]
}

type pathNode struct {
	stepID string
	cost   time.Duration
	index  int
}

type pathQueue []*pathNode

func (q pathQueue) Len() int           { return len(q) }
func (q pathQueue) Less(i, j int) bool { return q[i].cost < q[j].cost }
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *pathQueue) Push(x any)        { n := x.(*pathNode); n.index = len(*q); *q = append(*q, n) }
func (q *pathQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]

	return n
}

func shortestPath(def *models.WorkflowDefinition, fromID, toID string) PathResult {
	dist := map[string]time.Duration{fromID: 0}
	prev := make(map[string]string)
	visited := make(map[string]bool)

	queue := &pathQueue{{stepID: fromID, cost: 0}}
	heap.Init(queue)

	for queue.Len() > 0 {
		node := heap.Pop(queue).(*pathNode)

		if visited[node.stepID] {
			continue
		}

		visited[node.stepID] = true

		if node.stepID == toID {
			break
		}

		for _, conn := range def.OutgoingConnections(node.stepID) {
			target := def.StepByID(conn.TargetStepID)
			if target == nil {
				continue
			}

			weight := target.EstimatedDuration
			if weight <= 0 {
				weight = defaultStepWeight
			}

			next := node.cost + weight

			if current, seen := dist[target.ID]; !seen || next < current {
				dist[target.ID] = next
				prev[target.ID] = node.stepID

				heap.Push(queue, &pathNode{stepID: target.ID, cost: next})
			}
		}
	}

	if !visited[toID] {
		return PathResult{}
	}

	steps := []string{toID}
	for at := toID; at != fromID; at = prev[at] {
		steps = append(steps, prev[at])
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	return PathResult{Found: true, StepIDs: steps, TotalDuration: dist[toID]}
}
