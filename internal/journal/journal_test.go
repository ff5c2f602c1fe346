package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.BeginRun(ctx, "run-1", "results/report.pdf", start))

	require.NoError(t, j.RecordTask(ctx, TaskRecord{
		RunID:    "run-1",
		TaskID:   "bandpass_filter sample=s1",
		Rule:     "bandpass_filter",
		Status:   StatusSucceeded,
		Duration: 1500 * time.Millisecond,
		LogPath:  "logs/bandpass_filter_s1.log",
	}))
	require.NoError(t, j.RecordTask(ctx, TaskRecord{
		RunID:  "run-1",
		TaskID: "ica sample=s1",
		Rule:   "ica",
		Status: StatusFailed,
		Detail: "exit status 1",
	}))

	require.NoError(t, j.FinishRun(ctx, "run-1", "failed", start.Add(time.Minute)))

	runs, err := j.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Equal(t, "results/report.pdf", runs[0].Targets)

	tasks, err := j.RunTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "bandpass_filter sample=s1", tasks[0].TaskID)
	assert.Equal(t, 1500*time.Millisecond, tasks[0].Duration)
	assert.Equal(t, StatusFailed, tasks[1].Status)
	assert.Equal(t, "exit status 1", tasks[1].Detail)
}

func TestRecentRunsOrdering(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, j.BeginRun(ctx, id, "", base.Add(time.Duration(i)*time.Hour)))
	}

	runs, err := j.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestRunTasksEmpty(t *testing.T) {
	j := openTestJournal(t)
	tasks, err := j.RunTasks(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
