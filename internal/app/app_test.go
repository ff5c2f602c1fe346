package app_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipewright/internal/app"
	"pipewright/internal/hclwf"
	"pipewright/internal/testutil"
)

const reportWorkflow = `
workflow {
  targets = ["out/report.txt"]
}

rule "load" {
  input  = ["data/raw.txt"]
  output = ["work/loaded.txt"]
  shell  = "cp ${input[0]} ${output[0]}"
}

rule "truncate" {
  input  = ["work/loaded.txt"]
  output = ["work/truncated.txt"]
  shell  = "cp ${input[0]} ${output[0]}"
}

rule "report" {
  input  = ["work/truncated.txt"]
  output = ["out/report.txt"]
  shell  = "cp ${input[0]} ${output[0]}"
}
`

func mtime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

func TestRunReportChain(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": reportWorkflow,
		"data/raw.txt": "signal",
	})
	ctx := context.Background()

	res := ws.Run(ctx)
	require.NoError(t, res.Err)
	assert.FileExists(t, "out/report.txt")
	assert.FileExists(t, "work/loaded.txt")
	assert.FileExists(t, "work/truncated.txt")

	t.Run("second run does nothing", func(t *testing.T) {
		before := mtime(t, "out/report.txt")

		res := ws.Run(ctx)
		require.NoError(t, res.Err)
		assert.Contains(t, res.LogOutput, "Nothing to do")
		assert.Equal(t, before, mtime(t, "out/report.txt"))
	})

	t.Run("deleting a mid-chain artifact rebuilds only the suffix", func(t *testing.T) {
		loadedBefore := mtime(t, "work/loaded.txt")
		ws.Remove("work/truncated.txt")

		res := ws.Run(ctx)
		require.NoError(t, res.Err)
		assert.FileExists(t, "work/truncated.txt")
		assert.FileExists(t, "out/report.txt")
		assert.Equal(t, loadedBefore, mtime(t, "work/loaded.txt"),
			"the prefix of the chain must not re-execute")
	})
}

func TestRunExplicitTargetOverridesDefaults(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": reportWorkflow,
		"data/raw.txt": "signal",
	})

	res := ws.Run(context.Background(), "work/truncated.txt")
	require.NoError(t, res.Err)
	assert.FileExists(t, "work/truncated.txt")
	assert.NoFileExists(t, "out/report.txt")
}

func TestRunFailurePropagation(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": `
workflow {
  targets = ["out/final.txt"]
}

rule "broken" {
  output = ["work/mid.txt"]
  shell  = "echo boom 1>&2; exit 1"
}

rule "final" {
  input  = ["work/mid.txt"]
  output = ["out/final.txt"]
  shell  = "cp ${input[0]} ${output[0]}"
}
`,
	})

	res := ws.Run(context.Background())
	require.Error(t, res.Err)
	assert.NoFileExists(t, "out/final.txt")
	assert.Contains(t, res.LogOutput, "failed")
}

func TestDryRunExecutesNothing(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": reportWorkflow,
		"data/raw.txt": "signal",
	})

	res := ws.RunWithConfig(context.Background(), &app.Config{DryRun: true})
	require.NoError(t, res.Err)
	assert.NoFileExists(t, "out/report.txt")
	assert.Contains(t, res.LogOutput, "Would run 3 task(s)")
	assert.Contains(t, res.LogOutput, "output work/loaded.txt is missing")
}

func TestRunWildcardTarget(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": `
workflow {
  targets = ["out/s1.txt"]
}

rule "process" {
  input  = ["data/{sample}.raw"]
  output = ["out/{sample}.txt"]
  shell  = "cp ${input[0]} ${output[0]}"
}
`,
		"data/s1.raw": "one",
		"data/s2.raw": "two",
	})

	res := ws.Run(context.Background(), "out/s2.txt")
	require.NoError(t, res.Err)
	assert.FileExists(t, "out/s2.txt")
	assert.NoFileExists(t, "out/s1.txt")
}

func TestRunConfigValuesReachShell(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": `
workflow {
  targets = ["out/flagged.txt"]
}

rule "flagged" {
  output = ["out/flagged.txt"]
  shell  = "echo x${config.mock ? " --mock" : ""}x > ${output[0]}"
}
`,
		"pipeline.toml": "mock = true\n",
	})

	res := ws.Run(context.Background())
	require.NoError(t, res.Err)

	data, err := os.ReadFile("out/flagged.txt")
	require.NoError(t, err)
	assert.Contains(t, string(data), "--mock")
}

func TestCleanRemovesGeneratedArtifactsOnly(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": reportWorkflow,
		"data/raw.txt": "signal",
	})
	ctx := context.Background()

	res := ws.Run(ctx)
	require.NoError(t, res.Err)

	var out bytes.Buffer
	a, err := app.New(ctx, &out, &app.Config{NoEnvs: true}, hclwf.NewLoader())
	require.NoError(t, err)
	require.NoError(t, a.Clean(ctx))

	assert.NoFileExists(t, "out/report.txt")
	assert.NoFileExists(t, "work/loaded.txt")
	assert.NoFileExists(t, "work/truncated.txt")
	assert.NoDirExists(t, "logs")
	assert.FileExists(t, "data/raw.txt", "root inputs are never cleaned")
	assert.Contains(t, out.String(), "Removed 3 generated file(s).")
}

func TestGraphWritesDot(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": reportWorkflow,
		"data/raw.txt": "signal",
	})
	ctx := context.Background()

	var out bytes.Buffer
	a, err := app.New(ctx, &out, &app.Config{LogLevel: "error"}, hclwf.NewLoader())
	require.NoError(t, err)
	require.NoError(t, a.Graph(ctx))

	dot := out.String()
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"load" -> "truncate"`)
	assert.Contains(t, dot, `"truncate" -> "report"`)
	assert.NoFileExists(t, ws.Dir+"/out/report.txt", "graph must not execute anything")
}

func TestRunWithoutTargetsOrDefaultsFails(t *testing.T) {
	ws := testutil.NewWorkspace(t, map[string]string{
		"workflow.hcl": `
rule "r" {
  output = ["out.txt"]
  shell  = "touch ${output[0]}"
}
`,
	})

	res := ws.Run(context.Background())
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "no targets")
}
