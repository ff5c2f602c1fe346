package plan

import (
	"context"
	"fmt"
	"os"
	"time"

	"pipewright/internal/ctxlog"
)

// ExecutionPlan is the staleness verdict for a task graph: which tasks
// must run this time, in dependency order, and which are already up to
// date.
type ExecutionPlan struct {
	// Run holds the stale tasks in dependency order.
	Run []*Task
	// UpToDate holds the remaining tasks, also in dependency order.
	UpToDate []*Task
	// Reasons maps a stale task's ID to why it must run.
	Reasons map[string]string
}

// WillRun reports whether the task with the given ID is scheduled.
func (p *ExecutionPlan) WillRun(id string) bool {
	_, ok := p.Reasons[id]
	return ok
}

// Plan walks the graph in dependency order and marks each task stale or
// up to date. A task is stale if any declared output is missing, if any
// input was modified strictly later than any output, or if any ancestor
// task is itself scheduled to run (its inputs are about to be rewritten).
// A multi-output task is always scheduled as a whole, never partially.
func (g *Graph) Plan(ctx context.Context) (*ExecutionPlan, error) {
	logger := ctxlog.FromContext(ctx)

	order, err := g.TaskOrder()
	if err != nil {
		return nil, err
	}

	p := &ExecutionPlan{Reasons: make(map[string]string)}
	for _, task := range order {
		reason, err := g.staleness(p, task)
		if err != nil {
			return nil, err
		}
		if reason == "" {
			p.UpToDate = append(p.UpToDate, task)
			continue
		}
		logger.Debug("Task is stale.", "task", task.ID(), "reason", reason)
		p.Reasons[task.ID()] = reason
		p.Run = append(p.Run, task)
	}

	logger.Debug("Staleness pass complete.", "stale", len(p.Run), "up_to_date", len(p.UpToDate))
	return p, nil
}

// staleness returns the reason a task must run, or "" if it is up to
// date. Ancestor staleness dominates: timestamps of soon-to-be-rewritten
// inputs are meaningless.
func (g *Graph) staleness(p *ExecutionPlan, task *Task) (string, error) {
	for _, dep := range g.Dependencies(task) {
		if p.WillRun(dep.ID()) {
			return fmt.Sprintf("inputs will be rebuilt by %s", dep.ID()), nil
		}
	}

	var oldestOutput time.Time
	haveOutput := false
	for _, out := range task.Outputs {
		info, err := os.Stat(out)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Sprintf("output %s is missing", out), nil
			}
			return "", fmt.Errorf("stat output %s: %w", out, err)
		}
		if !haveOutput || info.ModTime().Before(oldestOutput) {
			oldestOutput = info.ModTime()
			haveOutput = true
		}
	}

	for _, in := range task.Inputs {
		info, err := os.Stat(in)
		if err != nil {
			if os.IsNotExist(err) {
				// The producer was judged fresh yet the input is gone:
				// the filesystem changed underneath the planning pass.
				return "", fmt.Errorf("input %s of %s disappeared during planning", in, task.ID())
			}
			return "", fmt.Errorf("stat input %s: %w", in, err)
		}
		if haveOutput && info.ModTime().After(oldestOutput) {
			return fmt.Sprintf("input %s is newer than output", in), nil
		}
	}

	return "", nil
}
