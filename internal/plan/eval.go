package plan

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pipewright/internal/config"
)

// titleFunc converts a string to title case. Rule expressions use it to
// derive a presentable section heading when the run configuration has no
// explicit title for a section identifier.
var titleFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		caser := cases.Title(language.English)
		return cty.StringVal(caser.String(args[0].AsString())), nil
	},
})

// evalFunctions is the function set available to shell and params
// expressions.
var evalFunctions = map[string]function.Function{
	"format":  stdlib.FormatFunc,
	"join":    stdlib.JoinFunc,
	"split":   stdlib.SplitFunc,
	"replace": stdlib.ReplaceFunc,
	"upper":   stdlib.UpperFunc,
	"lower":   stdlib.LowerFunc,
	"title":   titleFunc,
}

// newEvalContext assembles the evaluation context for a task's late-bound
// expressions.
func newEvalContext(vars map[string]cty.Value) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: vars,
		Functions: evalFunctions,
	}
}

// defaultsToCty exposes the workflow block's document metadata to rule
// expressions as the `workflow` object.
func defaultsToCty(d *config.Defaults) cty.Value {
	title, author := "", ""
	if d != nil {
		title, author = d.Title, d.Author
	}
	return cty.ObjectVal(map[string]cty.Value{
		"title":  cty.StringVal(title),
		"author": cty.StringVal(author),
	})
}

// stringsToCty converts wildcard bindings into a cty object value.
func stringsToCty(bindings map[string]string) cty.Value {
	if len(bindings) == 0 {
		return cty.EmptyObjectVal
	}
	vals := make(map[string]cty.Value, len(bindings))
	for k, v := range bindings {
		vals[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(vals)
}

// pathsToCty converts a path list into a cty tuple value.
func pathsToCty(paths []string) cty.Value {
	if len(paths) == 0 {
		return cty.EmptyTupleVal
	}
	vals := make([]cty.Value, len(paths))
	for i, p := range paths {
		vals[i] = cty.StringVal(p)
	}
	return cty.TupleVal(vals)
}
