// Package testutil provides the end-to-end harness used by integration
// tests: it materializes a workflow tree in a temp directory and drives
// the app against real shell commands.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pipewright/internal/app"
	"pipewright/internal/hclwf"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Result holds the outcomes of one harness invocation.
type Result struct {
	LogOutput string
	Err       error
	App       *app.App
}

// Workspace is a temp directory holding a workflow tree. The harness
// chdirs into it, so all workflow paths are relative.
type Workspace struct {
	t   *testing.T
	Dir string
}

// NewWorkspace creates a temp directory, writes the given file tree into
// it, and makes it the working directory for the rest of the test.
func NewWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	ws := &Workspace{t: t, Dir: dir}
	for name, content := range files {
		ws.WriteFile(name, content)
	}
	return ws
}

// WriteFile writes one file under the workspace, creating parents.
func (w *Workspace) WriteFile(name, content string) {
	w.t.Helper()
	path := filepath.Join(w.Dir, name)
	require.NoError(w.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(w.t, os.WriteFile(path, []byte(content), 0o644))
}

// Remove deletes one file under the workspace.
func (w *Workspace) Remove(name string) {
	w.t.Helper()
	require.NoError(w.t, os.Remove(filepath.Join(w.Dir, name)))
}

// Run executes `run` for the given targets against the workspace.
// Provisioning is disabled so every task runs on the host shell.
func (w *Workspace) Run(ctx context.Context, targets ...string) *Result {
	return w.RunWithConfig(ctx, &app.Config{Targets: targets})
}

// RunWithConfig executes `run` with full control over the app config.
func (w *Workspace) RunWithConfig(ctx context.Context, cfg *app.Config) *Result {
	w.t.Helper()

	cfg.NoEnvs = true
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 4
	}

	logBuffer := &SafeBuffer{}
	testApp, err := app.New(ctx, logBuffer, cfg, hclwf.NewLoader())
	if err != nil {
		return &Result{LogOutput: logBuffer.String(), Err: err}
	}

	runErr := testApp.Run(ctx)
	if os.Getenv("PIPEWRIGHT_TEST_LOGS") == "true" {
		w.t.Logf("--- Full Log Output for %s ---\n%s", w.t.Name(), logBuffer.String())
	}
	return &Result{LogOutput: logBuffer.String(), Err: runErr, App: testApp}
}
