package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"pipewright/internal/config"
	"pipewright/internal/pattern"
)

// Task is a task instance: a rule with concrete wildcard bindings, fully
// expanded paths, and an evaluated shell command. Tasks are immutable
// after instantiation.
type Task struct {
	Rule      *config.Rule
	Wildcards map[string]string
	Inputs    []string
	Outputs   []string
	Shell     string
	Log       string
	Threads   int

	id string
}

// ID returns the task's identity: the rule name plus its sorted wildcard
// bindings, e.g. "bandpass_filter sample=s1".
func (t *Task) ID() string { return t.id }

func taskID(rule string, bindings map[string]string) string {
	if len(bindings) == 0 {
		return rule
	}
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(rule)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(bindings[k])
	}
	return sb.String()
}

// instantiate binds a rule's wildcards, expands its path patterns, and
// evaluates its late-bound expressions against the wildcard bindings and
// run configuration.
func (b *Builder) instantiate(rule *config.Rule, bindings map[string]string) (*Task, error) {
	t := &Task{
		Rule:      rule,
		Wildcards: bindings,
		Threads:   rule.Threads,
		id:        taskID(rule.Name, bindings),
	}

	expand := func(kind, raw string) (string, error) {
		p, err := pattern.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("rule %q: %s %w", rule.Name, kind, err)
		}
		path, err := p.Expand(bindings)
		if err != nil {
			return "", fmt.Errorf("rule %q: %s %w", rule.Name, kind, err)
		}
		return path, nil
	}

	for _, out := range rule.Outputs {
		path, err := expand("output", out)
		if err != nil {
			return nil, err
		}
		t.Outputs = append(t.Outputs, path)
	}
	for _, in := range rule.Inputs {
		path, err := expand("input", in)
		if err != nil {
			return nil, err
		}
		t.Inputs = append(t.Inputs, path)
	}
	if rule.Log != "" {
		path, err := expand("log", rule.Log)
		if err != nil {
			return nil, err
		}
		t.Log = path
	}

	vars := map[string]cty.Value{
		"wildcards": stringsToCty(bindings),
		"config":    b.cfgValue,
		"workflow":  b.wfValue,
		"input":     pathsToCty(t.Inputs),
		"output":    pathsToCty(t.Outputs),
		"log":       cty.StringVal(t.Log),
		"threads":   cty.NumberIntVal(int64(t.Threads)),
	}

	// Params are evaluated first; the shell expression then sees them as
	// the `params` object.
	if len(rule.Params) > 0 {
		evalCtx := newEvalContext(vars)
		params := make(map[string]cty.Value, len(rule.Params))
		for _, name := range sortedParamNames(rule.Params) {
			val, diags := rule.Params[name].Value(evalCtx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("task %s: param %q: %w", t.id, name, diags)
			}
			params[name] = val
		}
		vars["params"] = cty.ObjectVal(params)
	}

	shellVal, diags := rule.Shell.Value(newEvalContext(vars))
	if diags.HasErrors() {
		return nil, fmt.Errorf("task %s: shell: %w", t.id, diags)
	}
	shellVal, err := convert.Convert(shellVal, cty.String)
	if err != nil {
		return nil, fmt.Errorf("task %s: shell must be a string: %w", t.id, err)
	}
	if shellVal.IsNull() {
		return nil, fmt.Errorf("task %s: shell must not be null", t.id)
	}
	t.Shell = shellVal.AsString()

	return t, nil
}

func sortedParamNames(params map[string]hcl.Expression) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
