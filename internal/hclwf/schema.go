package hclwf

import (
	"github.com/hashicorp/hcl/v2"
)

// --- HCL file schemas ---

// paramsBlock captures the raw body of a rule's `params` block. Its
// attributes stay unevaluated; they are late-bound against wildcard
// values at task instantiation.
type paramsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// rule represents a `rule` block from a workflow file.
type rule struct {
	Name    string         `hcl:"name,label"`
	Input   []string       `hcl:"input,optional"`
	Output  []string       `hcl:"output"`
	Shell   hcl.Expression `hcl:"shell"`
	Log     string         `hcl:"log,optional"`
	Env     string         `hcl:"env,optional"`
	Threads int            `hcl:"threads,optional"`
	Params  *paramsBlock   `hcl:"params,block"`
}

// env represents an `env` block declaring an isolated execution
// environment backed by an external spec file.
type env struct {
	Name string `hcl:"name,label"`
	File string `hcl:"file"`
}

// workflow represents the `workflow` block holding run-wide defaults.
type workflow struct {
	Targets []string `hcl:"targets"`
	Title   string   `hcl:"title,optional"`
	Author  string   `hcl:"author,optional"`
}

// fileRoot decodes all recognized top-level blocks from any workflow file.
type fileRoot struct {
	Workflows []*workflow `hcl:"workflow,block"`
	Envs      []*env      `hcl:"env,block"`
	Rules     []*rule     `hcl:"rule,block"`
	Remain    hcl.Body    `hcl:",remain"`
}
