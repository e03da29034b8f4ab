// Package planner turns natural-language requests into ordered subtask
// plans, each tagged with a target agent kind.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/common/logger"
)

// DefaultAgent is the agent kind fallback plans target.
const DefaultAgent = "claude_code"

// SubTask is one unit of a decomposition. Dependency ids are descriptive
// metadata; dispatch runs subtasks in list order regardless.
type SubTask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Agent        string   `json:"agent"`
	Priority     string   `json:"priority"`
	Dependencies []string `json:"dependencies"`
}

// TaskDecomposition is the planner output. Strategy is informational
// (direct, delegate or hybrid) and is not separately enforced.
type TaskDecomposition struct {
	Strategy  string    `json:"strategy"`
	Reasoning string    `json:"reasoning"`
	Subtasks  []SubTask `json:"subtasks"`
}

// Completer is the remote text-completion capability. It is optional;
// planning degrades to a single-subtask fallback without it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Planner produces task decompositions, preferring the remote completion
// capability and falling back to a trivial delegate plan.
type Planner struct {
	completer Completer
	logger    *logger.Logger
}

// New creates a planner. A nil completer always takes the fallback path.
func New(completer Completer, log *logger.Logger) *Planner {
	return &Planner{completer: completer, logger: log}
}

// Plan decomposes the task. The returned decomposition always carries at
// least one subtask; the only error case is a completion response that
// contains no JSON object at all.
func (p *Planner) Plan(ctx context.Context, task, taskContext string) (*TaskDecomposition, error) {
	if p.completer == nil {
		return fallbackPlan(task), nil
	}

	response, err := p.completer.Complete(ctx, buildPrompt(task, taskContext))
	if err != nil {
		p.logger.Warn("planning capability unavailable, using fallback decomposition", zap.Error(err))
		return fallbackPlan(task), nil
	}

	return parseDecomposition(response)
}

// fallbackPlan wraps the whole task in one subtask for the default agent.
func fallbackPlan(task string) *TaskDecomposition {
	return &TaskDecomposition{
		Strategy:  "delegate",
		Reasoning: "Task requires code analysis and implementation",
		Subtasks: []SubTask{
			{
				ID:           uuid.New().String(),
				Description:  task,
				Agent:        DefaultAgent,
				Priority:     "high",
				Dependencies: []string{},
			},
		},
	}
}

// parseDecomposition extracts the first balanced JSON object between the
// first '{' and the last '}'. A blob that does not match the expected
// shape degrades to a fallback plan built from the response's first line;
// only a response with no JSON-looking substring is an error.
func parseDecomposition(response string) (*TaskDecomposition, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no valid JSON found in response")
	}

	var decomposition TaskDecomposition
	if err := json.Unmarshal([]byte(response[start:end+1]), &decomposition); err != nil || len(decomposition.Subtasks) == 0 {
		firstLine := response
		if idx := strings.Index(response, "\n"); idx != -1 {
			firstLine = response[:idx]
		}
		if firstLine == "" {
			firstLine = "AI generated task"
		}
		return &TaskDecomposition{
			Strategy:  "delegate",
			Reasoning: "Parsed from AI response",
			Subtasks: []SubTask{
				{
					ID:           uuid.New().String(),
					Description:  firstLine,
					Agent:        DefaultAgent,
					Priority:     "high",
					Dependencies: []string{},
				},
			},
		}, nil
	}

	return &decomposition, nil
}
