package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"pipewright/internal/journal"
)

// Status prints recent runs from the journal, and the per-task outcomes
// of the most recent one. The journal is diagnostic only; an absent one
// just means nothing has been recorded yet.
func (a *App) Status(ctx context.Context, limit int) error {
	path := filepath.Join(a.cfg.WorkDir, "journal.db")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(a.outW, "No runs recorded yet.")
		return nil
	}

	jnl, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer jnl.Close()

	runs, err := jnl.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.outW, "No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.StartedAt.Format(time.RFC3339),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
			r.Status,
			r.Targets,
		})
	}
	fmt.Fprintln(a.outW, renderTable([]string{"Run", "Started", "Duration", "Status", "Targets"}, rows))

	tasks, err := jnl.RunTasks(ctx, runs[0].ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	fmt.Fprintf(a.outW, "\nTasks of run %s:\n", shortID(runs[0].ID))
	taskRows := make([][]string, 0, len(tasks))
	for _, rec := range tasks {
		taskRows = append(taskRows, []string{
			rec.TaskID,
			rec.Status,
			rec.Duration.Round(time.Millisecond).String(),
			rec.LogPath,
		})
	}
	fmt.Fprintln(a.outW, renderTable([]string{"Task", "Status", "Duration", "Log"}, taskRows))
	return nil
}

// shortID truncates a UUID to its first group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
