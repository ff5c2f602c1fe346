// Package plan turns a loaded workflow model and a set of requested
// target artifacts into a validated task graph, and decides which tasks
// are stale and must run.
//
// Planning is a pure phase: it touches the filesystem only to stat
// artifacts, never to modify them.
package plan

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"pipewright/internal/config"
	"pipewright/internal/ctxlog"
	"pipewright/internal/dag"
	"pipewright/internal/pattern"
)

// Builder resolves requested targets into a task graph.
type Builder struct {
	model    *config.Model
	cfgValue cty.Value
	wfValue  cty.Value
	// outputs holds each rule's compiled output patterns, keyed by rule name.
	outputs map[string][]*pattern.Pattern
	// ruleNames is kept sorted so resolution order is deterministic.
	ruleNames []string
}

// NewBuilder compiles the model's output patterns and captures the run
// configuration for late-bound expression evaluation.
func NewBuilder(model *config.Model, runCfg *config.RunConfig) (*Builder, error) {
	cfgValue, err := runCfg.CtyValue()
	if err != nil {
		return nil, fmt.Errorf("converting run configuration: %w", err)
	}

	b := &Builder{
		model:    model,
		cfgValue: cfgValue,
		wfValue:  defaultsToCty(model.Defaults),
		outputs:  make(map[string][]*pattern.Pattern, len(model.Rules)),
	}
	for name, rule := range model.Rules {
		compiled := make([]*pattern.Pattern, 0, len(rule.Outputs))
		for _, out := range rule.Outputs {
			p, err := pattern.Parse(out)
			if err != nil {
				return nil, fmt.Errorf("rule %q: output %w", name, err)
			}
			compiled = append(compiled, p)
		}
		b.outputs[name] = compiled
		b.ruleNames = append(b.ruleNames, name)
	}
	sort.Strings(b.ruleNames)
	return b, nil
}

// artifact resolution colors. Grey marks an artifact whose producing chain
// is still being resolved; revisiting a grey artifact proves a cycle.
type color int

const (
	white color = iota
	grey
	black
)

// Build resolves the requested target paths to the transitive closure of
// producing task instances. Leaves are either task-free root inputs that
// exist on disk, or planning errors.
func (b *Builder) Build(ctx context.Context, targets []string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: resolving targets.", "count", len(targets))

	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets requested")
	}

	g := &Graph{
		Targets:   append([]string(nil), targets...),
		Tasks:     make(map[string]*Task),
		Producers: make(map[string]*Task),
		Roots:     make(map[string]struct{}),
		tasks:     dag.New(),
	}
	colors := make(map[string]color)

	for _, target := range targets {
		if err := b.resolve(g, colors, target, ""); err != nil {
			return nil, err
		}
	}

	// Resolution coloring already rejects cycles; this guards the graph
	// invariant independently of how it was assembled.
	if err := g.tasks.DetectCycles(); err != nil {
		return nil, fmt.Errorf("validating task graph: %w", err)
	}

	logger.Debug("Build: graph construction successful.",
		"tasks", len(g.Tasks), "artifacts", len(g.Producers), "roots", len(g.Roots))
	return g, nil
}

// candidate is a rule whose output pattern unified with a requested path.
type candidate struct {
	rule     *config.Rule
	bindings map[string]string
}

// resolve recursively binds path to its producing task instance. consumer
// is the ID of the task that declared path as an input, or empty when
// path is a requested target.
func (b *Builder) resolve(g *Graph, colors map[string]color, path, consumer string) error {
	switch colors[path] {
	case black:
		return nil
	case grey:
		return &CycleError{Path: path}
	}

	var candidates []candidate
	for _, name := range b.ruleNames {
		for _, p := range b.outputs[name] {
			if bindings, ok := p.Match(path); ok {
				candidates = append(candidates, candidate{rule: b.model.Rules[name], bindings: bindings})
				break
			}
		}
	}

	if len(candidates) > 1 {
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.rule.Name
		}
		return &AmbiguousProducerError{Path: path, Rules: names}
	}

	if len(candidates) == 0 {
		if _, err := os.Stat(path); err == nil {
			g.Roots[path] = struct{}{}
			colors[path] = black
			return nil
		}
		if consumer == "" {
			return &NoProducerError{Path: path}
		}
		return &MissingInputError{Path: path, Consumer: consumer}
	}

	task, err := b.instantiate(candidates[0].rule, candidates[0].bindings)
	if err != nil {
		return err
	}
	if _, ok := g.Tasks[task.ID()]; ok {
		// Already resolved through another of its outputs.
		return nil
	}

	for _, out := range task.Outputs {
		if other, taken := g.Producers[out]; taken && other.ID() != task.ID() {
			return &AmbiguousProducerError{Path: out, Rules: []string{other.Rule.Name, task.Rule.Name}}
		}
		g.Producers[out] = task
		colors[out] = grey
	}

	g.Tasks[task.ID()] = task
	g.tasks.AddNode(task.ID())

	for _, in := range task.Inputs {
		if err := b.resolve(g, colors, in, task.ID()); err != nil {
			return err
		}
		if producer, ok := g.Producers[in]; ok {
			if producer.ID() == task.ID() {
				return &CycleError{Path: in}
			}
			if err := g.tasks.AddEdge(producer.ID(), task.ID()); err != nil {
				return fmt.Errorf("linking %s -> %s: %w", producer.ID(), task.ID(), err)
			}
		}
	}

	for _, out := range task.Outputs {
		colors[out] = black
	}
	return nil
}
