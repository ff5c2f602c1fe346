package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipewright/internal/config"
	"pipewright/internal/plan"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), "parse %q: %s", src, diags.Error())
	return e
}

func testRule(t *testing.T, name string, inputs, outputs []string, shell string) *config.Rule {
	t.Helper()
	return &config.Rule{
		Name:    name,
		Inputs:  inputs,
		Outputs: outputs,
		Shell:   expr(t, shell),
		Threads: 1,
	}
}

func testModel(rules ...*config.Rule) *config.Model {
	m := &config.Model{
		Rules: make(map[string]*config.Rule, len(rules)),
		Envs:  make(map[string]*config.Env),
	}
	for _, r := range rules {
		m.Rules[r.Name] = r
	}
	return m
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(path), 0o644))
}

// planRun builds the graph and execution plan for the given targets.
func planRun(t *testing.T, model *config.Model, targets ...string) (*plan.Graph, *plan.ExecutionPlan) {
	t.Helper()
	b, err := plan.NewBuilder(model, &config.RunConfig{})
	require.NoError(t, err)
	g, err := b.Build(context.Background(), targets)
	require.NoError(t, err)
	p, err := g.Plan(context.Background())
	require.NoError(t, err)
	return g, p
}

func TestRunChain(t *testing.T) {
	t.Chdir(t.TempDir())
	touch(t, "data/raw.csv")

	model := testModel(
		testRule(t, "load", []string{"data/raw.csv"}, []string{"work/loaded.txt"},
			`"cp ${input[0]} ${output[0]}"`),
		testRule(t, "truncate", []string{"work/loaded.txt"}, []string{"work/truncated.txt"},
			`"cp ${input[0]} ${output[0]}"`),
	)
	g, p := planRun(t, model, "work/truncated.txt")
	require.Len(t, p.Run, 2)

	results, err := New(g, p, Options{Budget: 2}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Succeeded, results["load"].Status)
	assert.Equal(t, Succeeded, results["truncate"].Status)
	assert.FileExists(t, "work/truncated.txt")

	t.Run("logs are captured per task", func(t *testing.T) {
		assert.FileExists(t, results["load"].LogPath)
	})

	t.Run("second run executes nothing", func(t *testing.T) {
		g, p := planRun(t, model, "work/truncated.txt")
		assert.Empty(t, p.Run)

		results, err := New(g, p, Options{Budget: 2}).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestRunCapturesCombinedOutput(t *testing.T) {
	t.Chdir(t.TempDir())

	rule := testRule(t, "noisy", nil, []string{"out.txt"},
		`"echo to-stdout; echo to-stderr 1>&2; touch ${output[0]}"`)
	rule.Log = "logs/noisy.log"

	g, p := planRun(t, testModel(rule), "out.txt")
	results, err := New(g, p, Options{Budget: 1}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Succeeded, results["noisy"].Status)

	data, err := os.ReadFile("logs/noisy.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "to-stdout")
	assert.Contains(t, string(data), "to-stderr")
}

func TestDiamondPartialFailureIsolation(t *testing.T) {
	t.Chdir(t.TempDir())
	touch(t, "data/a.in")

	// a -> b -> d and a -> c -> e; b fails, so d is skipped while the
	// independent c/e branch completes.
	model := testModel(
		testRule(t, "a", []string{"data/a.in"}, []string{"work/a.out"}, `"cp ${input[0]} ${output[0]}"`),
		testRule(t, "b", []string{"work/a.out"}, []string{"work/b.out"}, `"exit 1"`),
		testRule(t, "c", []string{"work/a.out"}, []string{"work/c.out"}, `"cp ${input[0]} ${output[0]}"`),
		testRule(t, "d", []string{"work/b.out"}, []string{"work/d.out"}, `"cp ${input[0]} ${output[0]}"`),
		testRule(t, "e", []string{"work/c.out"}, []string{"work/e.out"}, `"cp ${input[0]} ${output[0]}"`),
	)

	g, p := planRun(t, model, "work/d.out", "work/e.out")
	require.Len(t, p.Run, 5)

	results, err := New(g, p, Options{Budget: 4}).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, Succeeded, results["a"].Status)
	assert.Equal(t, Failed, results["b"].Status)
	assert.Equal(t, Succeeded, results["c"].Status)
	assert.Equal(t, Skipped, results["d"].Status)
	assert.Equal(t, Succeeded, results["e"].Status)

	assert.FileExists(t, "work/e.out")
	assert.NoFileExists(t, "work/d.out")
	assert.ErrorContains(t, results["d"].Err, "upstream failure of 'b'")
}

func TestFailedTaskOutputsAreRemoved(t *testing.T) {
	t.Chdir(t.TempDir())

	// The process writes a partial output before failing; the executor
	// must not leave it behind to masquerade as fresh.
	model := testModel(
		testRule(t, "partial", nil, []string{"work/partial.out"},
			`"echo partial > ${output[0]}; exit 3"`),
	)

	g, p := planRun(t, model, "work/partial.out")
	results, err := New(g, p, Options{Budget: 1}).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, Failed, results["partial"].Status)
	assert.NoFileExists(t, "work/partial.out")
	assert.ErrorContains(t, results["partial"].Err, "exit status 3")
}

func TestThreadRequestLargerThanBudgetIsClamped(t *testing.T) {
	t.Chdir(t.TempDir())

	wide := testRule(t, "wide", nil, []string{"out.txt"}, `"touch ${output[0]}"`)
	wide.Threads = 64

	g, p := planRun(t, testModel(wide), "out.txt")
	results, err := New(g, p, Options{Budget: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Succeeded, results["wide"].Status)
}

func TestIndependentBranchesRunConcurrently(t *testing.T) {
	t.Chdir(t.TempDir())

	// Each branch sleeps; with two slots the wall time proves overlap.
	model := testModel(
		testRule(t, "left", nil, []string{"work/left.out"}, `"sleep 0.4; touch ${output[0]}"`),
		testRule(t, "right", nil, []string{"work/right.out"}, `"sleep 0.4; touch ${output[0]}"`),
	)

	g, p := planRun(t, model, "work/left.out", "work/right.out")

	started := time.Now()
	_, err := New(g, p, Options{Budget: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 700*time.Millisecond)
}

func TestCanceledContextSkipsPendingTasks(t *testing.T) {
	t.Chdir(t.TempDir())

	model := testModel(
		testRule(t, "slow", nil, []string{"work/slow.out"}, `"sleep 10; touch ${output[0]}"`),
		testRule(t, "after", []string{"work/slow.out"}, []string{"work/after.out"},
			`"cp ${input[0]} ${output[0]}"`),
	)

	g, p := planRun(t, model, "work/after.out")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	results, err := New(g, p, Options{Budget: 1}).Run(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second, "cancellation must terminate in-flight tasks")

	assert.Equal(t, Failed, results["slow"].Status)
	assert.Equal(t, Skipped, results["after"].Status)
	assert.NoFileExists(t, "work/slow.out")
}

func TestUndeclaredEnvFailsTask(t *testing.T) {
	t.Chdir(t.TempDir())

	rule := testRule(t, "r", nil, []string{"out.txt"}, `"touch ${output[0]}"`)
	rule.Env = "ghost"

	g, p := planRun(t, testModel(rule), "out.txt")
	results, err := New(g, p, Options{Budget: 1}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, results["r"].Status)
	assert.ErrorContains(t, results["r"].Err, `undeclared env "ghost"`)
}
