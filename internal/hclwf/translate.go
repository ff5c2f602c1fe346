package hclwf

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"pipewright/internal/config"
	"pipewright/internal/pattern"
)

// translateRule converts the HCL-specific rule schema into the agnostic model.
func (l *Loader) translateRule(r *rule) (*config.Rule, error) {
	threads := r.Threads
	if threads == 0 {
		threads = 1
	}
	if threads < 0 {
		return nil, fmt.Errorf("rule %q: threads must be positive", r.Name)
	}

	def := &config.Rule{
		Name:    r.Name,
		Inputs:  r.Input,
		Outputs: r.Output,
		Shell:   r.Shell,
		Log:     r.Log,
		Env:     r.Env,
		Threads: threads,
	}
	if r.Params != nil {
		def.Params = extractBodyAttributes(r.Params.Body)
	}
	return def, nil
}

// extractBodyAttributes pulls the named attributes out of a block body as
// raw, unevaluated expressions.
func extractBodyAttributes(body hcl.Body) map[string]hcl.Expression {
	attrs, _ := body.JustAttributes()
	if len(attrs) == 0 {
		return nil
	}
	exprs := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		exprs[name] = attr.Expr
	}
	return exprs
}

// validate checks structural invariants of the loaded model: rules must
// declare outputs, referenced envs must exist, patterns must compile, and
// every wildcard used by a rule's inputs or log must be bound by its
// outputs (otherwise it could never be resolved from a requested path).
func validate(model *config.Model) error {
	for _, r := range model.Rules {
		if len(r.Outputs) == 0 {
			return fmt.Errorf("rule %q: at least one output is required", r.Name)
		}
		if r.Env != "" {
			if _, ok := model.Envs[r.Env]; !ok {
				return fmt.Errorf("rule %q: unknown env %q", r.Name, r.Env)
			}
		}

		outWildcards := make(map[string]struct{})
		for _, out := range r.Outputs {
			p, err := pattern.Parse(out)
			if err != nil {
				return fmt.Errorf("rule %q: output %w", r.Name, err)
			}
			for _, w := range p.Wildcards() {
				outWildcards[w] = struct{}{}
			}
		}

		check := func(kind, raw string) error {
			p, err := pattern.Parse(raw)
			if err != nil {
				return fmt.Errorf("rule %q: %s %w", r.Name, kind, err)
			}
			for _, w := range p.Wildcards() {
				if _, ok := outWildcards[w]; !ok {
					return fmt.Errorf("rule %q: %s wildcard %q does not appear in any output", r.Name, kind, w)
				}
			}
			return nil
		}

		for _, in := range r.Inputs {
			if err := check("input", in); err != nil {
				return err
			}
		}
		if r.Log != "" {
			if err := check("log", r.Log); err != nil {
				return err
			}
		}
	}

	if model.Defaults != nil && len(model.Defaults.Targets) == 0 {
		return fmt.Errorf("workflow block: targets must not be empty")
	}
	return nil
}
