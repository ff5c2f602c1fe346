package config

import (
	"github.com/hashicorp/hcl/v2"
)

// Model is the unified, format-agnostic representation of a loaded
// workflow: every rule, every declared environment, and the workflow-wide
// defaults.
type Model struct {
	Rules    map[string]*Rule
	Envs     map[string]*Env
	Defaults *Defaults
}

// Rule is the format-agnostic representation of a `rule` block: a task
// template producing output artifacts from input artifacts by running a
// shell command.
//
// Inputs, Outputs, and Log are path patterns which may contain {wildcard}
// segments. Shell and Params hold unevaluated expressions; they are bound
// late, against the wildcard values and run configuration of a concrete
// task instance.
type Rule struct {
	Name    string
	Inputs  []string
	Outputs []string
	Shell   hcl.Expression
	Params  map[string]hcl.Expression
	Log     string
	Env     string
	Threads int
}

// Env is the format-agnostic representation of an `env` block: a named
// isolated execution environment described by an external spec file.
type Env struct {
	Name string
	File string
}

// Defaults is the format-agnostic representation of the `workflow` block:
// the default targets of a run and document metadata consumed by report
// rules.
type Defaults struct {
	Targets []string
	Title   string
	Author  string
}
