// Package executor runs the stale tasks of an execution plan over the
// task graph, respecting a global concurrency budget and per-task thread
// requests.
//
// Failure policy is fail-fast per branch: a failed task skips its
// transitive dependents, while independent branches run to completion.
// Task processes are never retried.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"pipewright/internal/config"
	"pipewright/internal/ctxlog"
	"pipewright/internal/journal"
	"pipewright/internal/plan"
	"pipewright/internal/provision"
)

// Status is the terminal state of one task within a run.
type Status int

const (
	// Pending tasks have not reached a terminal state yet.
	Pending Status = iota
	// Succeeded tasks exited zero; their outputs are fresh.
	Succeeded
	// Failed tasks exited non-zero or could not be started.
	Failed
	// Skipped tasks were not executed because an upstream task failed
	// or the run was interrupted.
	Skipped
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Result is the outcome of one task.
type Result struct {
	Status   Status
	Err      error
	LogPath  string
	Duration time.Duration
}

// Options configures an Executor.
type Options struct {
	// Budget is the global number of execution slots. Zero means all
	// available CPUs. A task's thread request is reserved from this
	// budget for its duration.
	Budget int
	// Provisioner supplies isolated environments for tasks that declare
	// one. Tasks without an env declaration always run on the host.
	Provisioner provision.Provisioner
	// Envs maps env names to their declarations.
	Envs map[string]*config.Env
	// LogDir receives the log files of tasks that declare no log path.
	LogDir string
	// Journal, when non-nil, records task outcomes. The journal is
	// diagnostic only; errors writing it are logged, never fatal.
	Journal *journal.Journal
	// RunID tags journal records.
	RunID string
}

// Executor executes one planned run. It is single-use.
type Executor struct {
	graph *plan.Graph
	exec  *plan.ExecutionPlan
	opts  Options

	budget int64
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu        sync.Mutex
	results   map[string]*Result
	remaining map[string]int
	ready     chan *plan.Task

	envMu   sync.Mutex
	runners map[string]provision.Runner
}

// New creates an executor for the given graph and plan.
func New(graph *plan.Graph, exec *plan.ExecutionPlan, opts Options) *Executor {
	budget := opts.Budget
	if budget <= 0 {
		budget = runtime.NumCPU()
	}
	if opts.Provisioner == nil {
		opts.Provisioner = provision.Passthrough{}
	}
	if opts.LogDir == "" {
		opts.LogDir = "logs"
	}

	return &Executor{
		graph:   graph,
		exec:    exec,
		opts:    opts,
		budget:  int64(budget),
		sem:     semaphore.NewWeighted(int64(budget)),
		results: make(map[string]*Result, len(exec.Run)),
		runners: make(map[string]provision.Runner),
	}
}

// Run executes every stale task and returns the per-task results. The
// returned error is non-nil when any task failed or was skipped; callers
// decide the run's overall verdict from the results and the requested
// targets.
func (e *Executor) Run(ctx context.Context) (map[string]*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if len(e.exec.Run) == 0 {
		logger.Info("Nothing to do, all targets are up to date.")
		return e.results, nil
	}

	e.ready = make(chan *plan.Task, len(e.exec.Run))
	e.remaining = make(map[string]int, len(e.exec.Run))

	for _, task := range e.exec.Run {
		e.results[task.ID()] = &Result{Status: Pending}

		pending := 0
		for _, dep := range e.graph.Dependencies(task) {
			if e.exec.WillRun(dep.ID()) {
				pending++
			}
		}
		e.remaining[task.ID()] = pending
	}

	rootCount := 0
	for _, task := range e.exec.Run {
		if e.remaining[task.ID()] == 0 {
			e.ready <- task
			rootCount++
		}
	}
	logger.Debug("Executor initialized.", "tasks", len(e.exec.Run), "ready", rootCount, "budget", e.budget)

	e.wg.Add(len(e.exec.Run))

	go e.dispatch(ctx)

	e.wg.Wait()
	close(e.ready)

	var firstErr error
	for _, task := range e.exec.Run {
		res := e.results[task.ID()]
		if res.Status == Failed && firstErr == nil {
			firstErr = fmt.Errorf("task %s failed: %w", task.ID(), res.Err)
		}
	}
	if firstErr == nil {
		for _, task := range e.exec.Run {
			if res := e.results[task.ID()]; res.Status == Skipped {
				firstErr = fmt.Errorf("task %s was skipped: %w", task.ID(), res.Err)
				break
			}
		}
	}
	return e.results, firstErr
}

// Results returns the per-task results recorded so far.
func (e *Executor) Results() map[string]*Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*Result, len(e.results))
	for id, res := range e.results {
		copied := *res
		out[id] = &copied
	}
	return out
}

// dispatch pulls ready tasks and launches them once their thread request
// fits into the remaining budget. Semaphore FIFO ordering means a wide
// task at the head of the queue waits for slots rather than starving.
func (e *Executor) dispatch(ctx context.Context) {
	for task := range e.ready {
		weight := int64(task.Threads)
		if weight > e.budget {
			// A request larger than the whole budget degrades to the
			// whole budget, mirroring the clamp build tools apply.
			weight = e.budget
		}

		if err := e.sem.Acquire(ctx, weight); err != nil {
			e.abandon(ctx, task, err)
			continue
		}

		go func(task *plan.Task, weight int64) {
			defer e.sem.Release(weight)
			e.execute(ctx, task)
		}(task, weight)
	}
}

// abandon marks a ready task as skipped without executing it. Used when
// the run context is canceled while the task waits for budget.
func (e *Executor) abandon(ctx context.Context, task *plan.Task, cause error) {
	logger := ctxlog.FromContext(ctx)

	e.mu.Lock()
	res := e.results[task.ID()]
	if res.Status != Pending {
		e.mu.Unlock()
		return
	}
	res.Status = Skipped
	res.Err = cause
	e.mu.Unlock()

	logger.Warn("Task abandoned.", "task", task.ID(), "cause", cause)
	e.record(ctx, task, journal.StatusSkipped, 0, cause)
	e.wg.Done()
	e.skipDependents(ctx, task, fmt.Errorf("skipped due to interrupted run"))
}

// skipDependents recursively marks all downstream tasks as skipped.
func (e *Executor) skipDependents(ctx context.Context, task *plan.Task, cause error) {
	logger := ctxlog.FromContext(ctx)

	for _, dependent := range e.graph.Dependents(task) {
		if !e.exec.WillRun(dependent.ID()) {
			// An up-to-date dependent keeps its artifacts; nothing to skip.
			continue
		}

		e.mu.Lock()
		res := e.results[dependent.ID()]
		if res.Status != Pending {
			e.mu.Unlock()
			continue
		}
		res.Status = Skipped
		res.Err = cause
		e.mu.Unlock()

		logger.Warn("Skipping task due to upstream failure.",
			"task", dependent.ID(), "upstream", task.ID())
		e.record(ctx, dependent, journal.StatusSkipped, 0, cause)
		e.wg.Done()
		e.skipDependents(ctx, dependent, fmt.Errorf("skipped due to upstream failure of '%s'", task.ID()))
	}
}

// unlockDependents decrements dependents' pending counts after a success
// and enqueues any that became ready.
func (e *Executor) unlockDependents(task *plan.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, dependent := range e.graph.Dependents(task) {
		if !e.exec.WillRun(dependent.ID()) {
			continue
		}
		e.remaining[dependent.ID()]--
		// A dependent already skipped through another path must not be
		// enqueued again.
		if e.remaining[dependent.ID()] == 0 && e.results[dependent.ID()].Status == Pending {
			e.ready <- dependent
		}
	}
}

// record writes a task outcome to the journal, if one is attached.
func (e *Executor) record(ctx context.Context, task *plan.Task, status string, duration time.Duration, cause error) {
	if e.opts.Journal == nil {
		return
	}
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	rec := journal.TaskRecord{
		RunID:    e.opts.RunID,
		TaskID:   task.ID(),
		Rule:     task.Rule.Name,
		Status:   status,
		Duration: duration,
		LogPath:  e.logPath(task),
		Detail:   detail,
	}
	// Journalling must never take down a run.
	if err := e.opts.Journal.RecordTask(context.WithoutCancel(ctx), rec); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to journal task outcome.", "task", task.ID(), "error", err)
	}
}
