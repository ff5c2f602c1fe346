package app

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"pipewright/internal/executor"
	"pipewright/internal/plan"
)

// printSummary renders the end-of-run target table plus one line per
// failed task pointing at its log.
func (a *App) printSummary(targets []string, graph *plan.Graph, execPlan *plan.ExecutionPlan, results map[string]*executor.Result) {
	rows := make([][]string, 0, len(targets))
	for _, target := range targets {
		status, detail := a.targetOutcome(target, graph, execPlan, results)
		rows = append(rows, []string{target, status, detail})
	}
	fmt.Fprintln(a.outW, renderTable([]string{"Target", "Status", "Detail"}, rows))

	failed := make([]string, 0)
	for id, res := range results {
		if res.Status == executor.Failed {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(a.outW, "task '%s' failed, log: %s\n", id, results[id].LogPath)
	}
}

func (a *App) targetOutcome(target string, graph *plan.Graph, execPlan *plan.ExecutionPlan, results map[string]*executor.Result) (string, string) {
	producer, produced := graph.Producers[target]
	if !produced {
		return "root input", ""
	}
	if !execPlan.WillRun(producer.ID()) {
		return "up to date", ""
	}
	res := results[producer.ID()]
	if res == nil {
		return "stale", execPlan.Reasons[producer.ID()]
	}
	switch res.Status {
	case executor.Succeeded:
		return "produced", ""
	case executor.Failed:
		return "failed", res.LogPath
	case executor.Skipped:
		return "skipped", res.Err.Error()
	default:
		return res.Status.String(), ""
	}
}

// renderTable renders rows with go-pretty, dropping the rounded frame
// when stdout is not a terminal.
func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	if stdoutIsTerminal() {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
