package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"pipewright/internal/ctxlog"
)

// Clean removes every artifact a resolvable task instance produces, every
// declared task log, and the default log directory. Root inputs are never
// touched.
func (a *App) Clean(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	targets, err := a.targets()
	if err != nil {
		return err
	}
	graph, _, err := a.plan(ctx, targets)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(graph.Producers))
	for artifact := range graph.Producers {
		paths = append(paths, artifact)
	}
	for _, task := range graph.Tasks {
		if task.Log != "" {
			paths = append(paths, task.Log)
		}
	}
	sort.Strings(paths)

	removed := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		a.logger.Debug("Removed artifact.", "path", path)
		removed++
	}

	if err := os.RemoveAll(a.cfg.LogDir); err != nil {
		return fmt.Errorf("failed to remove log directory: %w", err)
	}

	a.logger.Info("Clean finished.", "removed", removed)
	fmt.Fprintf(a.outW, "Removed %d generated file(s).\n", removed)
	return nil
}
