package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pipewright/internal/ctxlog"
	"pipewright/internal/journal"
	"pipewright/internal/plan"
	"pipewright/internal/provision"
)

// execute runs one task process end to end: claim, provision, spawn,
// capture, and settle the task's terminal state.
func (e *Executor) execute(ctx context.Context, task *plan.Task) {
	logger := ctxlog.FromContext(ctx).With("task", task.ID())

	// Claim the task. It may have been skipped while queued.
	e.mu.Lock()
	res := e.results[task.ID()]
	if res.Status != Pending {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if ctx.Err() != nil {
		e.settleFailure(ctx, task, Skipped, 0, ctx.Err())
		return
	}

	logger.Info("▶️ Starting task", "rule", task.Rule.Name)
	started := time.Now()

	runner, err := e.runnerFor(ctx, task)
	if err != nil {
		e.settleFailure(ctx, task, Failed, time.Since(started), err)
		return
	}

	logFile, err := e.openLog(task)
	if err != nil {
		e.settleFailure(ctx, task, Failed, time.Since(started), err)
		return
	}
	defer logFile.Close()

	if err := ensureOutputDirs(task); err != nil {
		e.settleFailure(ctx, task, Failed, time.Since(started), err)
		return
	}

	cmd := runner.Command(ctx, task.Shell)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	logger.Debug("Spawning task process.", "shell", task.Shell, "log", e.logPath(task))
	err = cmd.Run()
	duration := time.Since(started)

	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("interrupted: %w", ctx.Err())
		} else {
			err = fmt.Errorf("%w (see %s)", err, e.logPath(task))
		}
		// Outputs of a failed or interrupted process may be partial;
		// removing them makes the missing-output check mark the task
		// stale on the next run.
		removeOutputs(task)
		e.settleFailure(ctx, task, Failed, duration, err)
		return
	}

	e.mu.Lock()
	res.Status = Succeeded
	res.Duration = duration
	res.LogPath = e.logPath(task)
	e.mu.Unlock()

	logger.Info("✅ Finished task", "duration", duration.Round(time.Millisecond))
	e.record(ctx, task, journal.StatusSucceeded, duration, nil)
	e.unlockDependents(task)
	e.wg.Done()
}

// settleFailure marks a task's terminal failure state and propagates the
// skip to its dependents.
func (e *Executor) settleFailure(ctx context.Context, task *plan.Task, status Status, duration time.Duration, cause error) {
	logger := ctxlog.FromContext(ctx)

	e.mu.Lock()
	res := e.results[task.ID()]
	res.Status = status
	res.Err = cause
	res.Duration = duration
	res.LogPath = e.logPath(task)
	e.mu.Unlock()

	journalStatus := journal.StatusFailed
	if status == Skipped {
		journalStatus = journal.StatusSkipped
		logger.Warn("Task skipped.", "task", task.ID(), "cause", cause)
	} else {
		logger.Error("Task failed.", "task", task.ID(), "error", cause)
	}
	e.record(ctx, task, journalStatus, duration, cause)
	e.wg.Done()
	e.skipDependents(ctx, task, fmt.Errorf("skipped due to upstream failure of '%s'", task.ID()))
}

// runnerFor resolves the execution runner for a task, provisioning its
// declared environment at most once per run.
func (e *Executor) runnerFor(ctx context.Context, task *plan.Task) (provision.Runner, error) {
	if task.Rule.Env == "" {
		return provision.Passthrough{}.Provision(ctx, nil)
	}

	env, ok := e.opts.Envs[task.Rule.Env]
	if !ok {
		return nil, fmt.Errorf("task %s references undeclared env %q", task.ID(), task.Rule.Env)
	}

	e.envMu.Lock()
	defer e.envMu.Unlock()

	if runner, ok := e.runners[env.Name]; ok {
		return runner, nil
	}
	runner, err := e.opts.Provisioner.Provision(ctx, env)
	if err != nil {
		return nil, err
	}
	e.runners[env.Name] = runner
	return runner, nil
}

// logPath returns the task's log artifact path, defaulting into the
// executor's log directory when the rule declares none.
func (e *Executor) logPath(task *plan.Task) string {
	if task.Log != "" {
		return task.Log
	}
	name := strings.NewReplacer(" ", "_", "=", "-", "/", "_").Replace(task.ID())
	return filepath.Join(e.opts.LogDir, name+".log")
}

// openLog creates (truncating) the task's log file.
func (e *Executor) openLog(task *plan.Task) (*os.File, error) {
	path := e.logPath(task)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory for %s: %w", task.ID(), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating log %s: %w", path, err)
	}
	return f, nil
}

// ensureOutputDirs creates the parent directories of every declared output.
func ensureOutputDirs(task *plan.Task) error {
	for _, out := range task.Outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("creating output directory for %s: %w", out, err)
		}
	}
	return nil
}

// removeOutputs deletes a task's declared outputs, ignoring absence.
func removeOutputs(task *plan.Task) {
	for _, out := range task.Outputs {
		os.Remove(out)
	}
}
