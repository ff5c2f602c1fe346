package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"pipewright/internal/ctxlog"
	"pipewright/internal/executor"
	"pipewright/internal/journal"
	"pipewright/internal/plan"
	"pipewright/internal/provision"
)

// Run plans and executes the requested targets. It returns nil only when
// every requested target exists on disk afterwards.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	targets, err := a.targets()
	if err != nil {
		return err
	}
	a.logger.Info("Resolving targets.", "targets", targets)

	graph, execPlan, err := a.plan(ctx, targets)
	if err != nil {
		return err
	}
	a.logger.Debug("Dependency graph built.",
		"tasks", len(graph.Tasks), "scheduled", len(execPlan.Run))

	if a.cfg.DryRun {
		a.printDryRun(execPlan)
		return nil
	}

	if len(execPlan.Run) == 0 {
		a.logger.Info("Nothing to do, all targets are up to date.")
		a.printSummary(targets, graph, execPlan, nil)
		return nil
	}

	unlock, err := a.acquireRunLock()
	if err != nil {
		return err
	}
	defer unlock()

	runID := uuid.NewString()
	jnl := a.openJournal(ctx, runID, targets)
	if jnl != nil {
		defer jnl.Close()
	}

	var provisioner provision.Provisioner
	if a.cfg.NoEnvs {
		provisioner = provision.Passthrough{}
	} else {
		provisioner = provision.NewConda(a.cfg.CondaBinary)
	}

	a.logger.Info("Starting execution.",
		"run_id", runID, "tasks", len(execPlan.Run), "jobs", a.cfg.Jobs)
	exec := executor.New(graph, execPlan, executor.Options{
		Budget:      a.cfg.Jobs,
		Provisioner: provisioner,
		Envs:        a.model.Envs,
		LogDir:      a.cfg.LogDir,
		Journal:     jnl,
		RunID:       runID,
	})
	results, runErr := exec.Run(ctx)

	if jnl != nil {
		status := journal.StatusSucceeded
		if runErr != nil {
			status = journal.StatusFailed
		}
		if err := jnl.FinishRun(context.WithoutCancel(ctx), runID, status, time.Now()); err != nil {
			a.logger.Warn("Failed to finalize journal run.", "error", err)
		}
	}

	a.printSummary(targets, graph, execPlan, results)

	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	return a.verdict(targets)
}

// plan builds the dependency graph for the targets and computes the
// staleness verdict. It has no filesystem side effects.
func (a *App) plan(ctx context.Context, targets []string) (*plan.Graph, *plan.ExecutionPlan, error) {
	builder, err := plan.NewBuilder(a.model, a.runCfg)
	if err != nil {
		return nil, nil, err
	}
	graph, err := builder.Build(ctx, targets)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	execPlan, err := graph.Plan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to plan run: %w", err)
	}
	return graph, execPlan, nil
}

// acquireRunLock takes the single-instance lock in the work area. Two
// concurrent runs would race on artifacts and their timestamps.
func (a *App) acquireRunLock() (func(), error) {
	if err := os.MkdirAll(a.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work area: %w", err)
	}
	lock := flock.New(filepath.Join(a.cfg.WorkDir, "run.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another pipewright run is already in progress in this directory")
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("Failed to release run lock.", "error", err)
		}
	}, nil
}

// openJournal opens the run journal and records the run start. The
// journal is diagnostic only, so any failure degrades to a warning and a
// nil journal.
func (a *App) openJournal(ctx context.Context, runID string, targets []string) *journal.Journal {
	jnl, err := journal.Open(filepath.Join(a.cfg.WorkDir, "journal.db"))
	if err != nil {
		a.logger.Warn("Run journal unavailable, continuing without it.", "error", err)
		return nil
	}
	if err := jnl.BeginRun(ctx, runID, strings.Join(targets, " "), time.Now()); err != nil {
		a.logger.Warn("Failed to record run start, continuing without journal.", "error", err)
		jnl.Close()
		return nil
	}
	return jnl
}

// verdict checks that every requested target actually exists on disk. The
// filesystem is the authoritative record of the run's outcome.
func (a *App) verdict(targets []string) error {
	var missing []string
	for _, target := range targets {
		if _, err := os.Stat(target); err != nil {
			missing = append(missing, target)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("run finished but targets were not produced: %s", strings.Join(missing, ", "))
	}
	a.logger.Info("All requested targets produced.", "count", len(targets))
	return nil
}

func (a *App) printDryRun(execPlan *plan.ExecutionPlan) {
	if len(execPlan.Run) == 0 {
		fmt.Fprintln(a.outW, "Nothing to do, all targets are up to date.")
		return
	}
	fmt.Fprintf(a.outW, "Would run %d task(s):\n", len(execPlan.Run))
	for _, task := range execPlan.Run {
		fmt.Fprintf(a.outW, "  %s\n    reason: %s\n", task.ID(), execPlan.Reasons[task.ID()])
	}
	if len(execPlan.UpToDate) > 0 {
		fmt.Fprintf(a.outW, "%d task(s) already up to date.\n", len(execPlan.UpToDate))
	}
}
