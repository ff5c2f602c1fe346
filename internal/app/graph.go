package app

import (
	"context"

	"pipewright/internal/ctxlog"
)

// Graph resolves the requested targets and writes the dependency graph in
// DOT format. It has no artifact side effects.
func (a *App) Graph(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	targets, err := a.targets()
	if err != nil {
		return err
	}
	graph, _, err := a.plan(ctx, targets)
	if err != nil {
		return err
	}
	return graph.WriteDot(a.outW)
}
