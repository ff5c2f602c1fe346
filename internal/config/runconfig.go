package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/zclconf/go-cty/cty"
)

// RunConfig holds the process-wide run parameters. It is read once at
// startup and exposed read-only to rule expressions as the `config`
// value; the orchestrator never mutates it during a run.
type RunConfig struct {
	// Mock selects the reduced dataset for fast pipeline shakedowns.
	Mock bool `toml:"mock"`
	// Exclude lists artifact component identifiers removed without
	// manual inspection during denoising.
	Exclude []string `toml:"exclude"`
	// Titles maps section identifiers to human-readable section titles.
	Titles map[string]string `toml:"titles"`
	// Values carries free-form workflow-specific settings.
	Values map[string]any `toml:"values"`
}

// LoadRunConfig reads a TOML run configuration from path. A missing file
// is not an error; it yields the zero configuration.
func LoadRunConfig(path string) (*RunConfig, error) {
	cfg := &RunConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read run configuration %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse run configuration %s: %w", path, err)
	}
	return cfg, nil
}

// CtyValue converts the run configuration into the cty object exposed to
// rule expressions as `config`.
func (c *RunConfig) CtyValue() (cty.Value, error) {
	exclude := cty.ListValEmpty(cty.String)
	if len(c.Exclude) > 0 {
		vals := make([]cty.Value, len(c.Exclude))
		for i, e := range c.Exclude {
			vals[i] = cty.StringVal(e)
		}
		exclude = cty.ListVal(vals)
	}

	titles := cty.MapValEmpty(cty.String)
	if len(c.Titles) > 0 {
		vals := make(map[string]cty.Value, len(c.Titles))
		for k, v := range c.Titles {
			vals[k] = cty.StringVal(v)
		}
		titles = cty.MapVal(vals)
	}

	values := cty.EmptyObjectVal
	if len(c.Values) > 0 {
		vals := make(map[string]cty.Value, len(c.Values))
		for _, k := range sortedKeys(c.Values) {
			v, err := goToCty(c.Values[k])
			if err != nil {
				return cty.NilVal, fmt.Errorf("run configuration value %q: %w", k, err)
			}
			vals[k] = v
		}
		values = cty.ObjectVal(vals)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"mock":    cty.BoolVal(c.Mock),
		"exclude": exclude,
		"titles":  titles,
		"values":  values,
	}), nil
}

// goToCty converts the value shapes produced by the TOML decoder into
// cty values.
func goToCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(val), nil
	case string:
		return cty.StringVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, e := range val {
			conv, err := goToCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = conv
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for _, k := range sortedKeys(val) {
			conv, err := goToCty(val[k])
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = conv
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
