package plan

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"pipewright/internal/dag"
)

// Graph is the resolved task graph for one set of requested targets.
// Artifact paths key the producer mapping; task IDs key the task set.
type Graph struct {
	// Targets are the requested artifact paths, in request order.
	Targets []string
	// Tasks maps task ID to task instance.
	Tasks map[string]*Task
	// Producers maps every produced artifact path to its single producing
	// task. Uniqueness is enforced during resolution.
	Producers map[string]*Task
	// Roots are artifacts no rule produces; they existed on disk at
	// resolution time.
	Roots map[string]struct{}

	tasks *dag.Graph
}

// TaskOrder returns all task instances in dependency order.
func (g *Graph) TaskOrder() ([]*Task, error) {
	ids, err := g.tasks.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	order := make([]*Task, len(ids))
	for i, id := range ids {
		order[i] = g.Tasks[id]
	}
	return order, nil
}

// Dependencies returns the tasks whose outputs the given task consumes.
func (g *Graph) Dependencies(t *Task) []*Task {
	ids, err := g.tasks.Dependencies(t.ID())
	if err != nil {
		return nil
	}
	return g.byID(ids)
}

// Dependents returns the tasks that consume the given task's outputs.
func (g *Graph) Dependents(t *Task) []*Task {
	ids, err := g.tasks.Dependents(t.ID())
	if err != nil {
		return nil
	}
	return g.byID(ids)
}

func (g *Graph) byID(ids []string) []*Task {
	tasks := make([]*Task, len(ids))
	for i, id := range ids {
		tasks[i] = g.Tasks[id]
	}
	return tasks
}

// Artifacts returns every produced artifact path, sorted.
func (g *Graph) Artifacts() []string {
	paths := make([]string, 0, len(g.Producers))
	for p := range g.Producers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WriteDot renders the task graph in Graphviz DOT format for inspection.
// Root inputs are drawn as boxes, tasks as ellipses.
func (g *Graph) WriteDot(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("digraph tasks {\n")
	sb.WriteString("\trankdir=\"LR\";\n")

	roots := make([]string, 0, len(g.Roots))
	for r := range g.Roots {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	for _, r := range roots {
		fmt.Fprintf(&sb, "\t%q [shape=box];\n", r)
	}

	for _, id := range g.tasks.Nodes() {
		fmt.Fprintf(&sb, "\t%q;\n", id)

		task := g.Tasks[id]
		for _, in := range task.Inputs {
			if _, isRoot := g.Roots[in]; isRoot {
				fmt.Fprintf(&sb, "\t%q -> %q;\n", in, id)
			}
		}

		deps, err := g.tasks.Dependencies(id)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			fmt.Fprintf(&sb, "\t%q -> %q;\n", dep, id)
		}
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
