// Package pattern implements the wildcard path patterns used by rule
// declarations. A pattern is a file path in which segments of the form
// {name} stand for wildcard values, e.g. "work/filtered/{sample}.fif".
//
// Matching a concrete path against a pattern binds each wildcard to the
// text it covered; expanding a pattern with a set of bindings produces a
// concrete path again. Wildcards never match across a path separator.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// wildcardName validates the identifier between braces.
var wildcardName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pattern is a compiled path pattern.
type Pattern struct {
	raw       string
	wildcards []string
	re        *regexp.Regexp
	// groups maps capture-group index (1-based) to wildcard name. A
	// wildcard appearing more than once yields several groups with the
	// same name; RE2 has no backreferences, so repeated occurrences are
	// captured separately and checked for equality after the match.
	groups []string
}

// Parse compiles a path pattern. It returns an error for empty patterns,
// unclosed braces, and invalid wildcard names.
func Parse(raw string) (*Pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	p := &Pattern{raw: raw}
	var sb strings.Builder
	sb.WriteString(`\A`)

	rest := raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(regexp.QuoteMeta(rest))
			break
		}
		sb.WriteString(regexp.QuoteMeta(rest[:open]))

		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			return nil, fmt.Errorf("pattern %q: unclosed wildcard", raw)
		}
		name := rest[open+1 : open+close]
		if !wildcardName.MatchString(name) {
			return nil, fmt.Errorf("pattern %q: invalid wildcard name %q", raw, name)
		}

		if !contains(p.wildcards, name) {
			p.wildcards = append(p.wildcards, name)
		}
		p.groups = append(p.groups, name)
		sb.WriteString(`([^/]+)`)

		rest = rest[open+close+1:]
	}
	sb.WriteString(`\z`)

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", raw, err)
	}
	p.re = re
	return p, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// statically known patterns.
func MustParse(raw string) *Pattern {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Wildcards returns the distinct wildcard names in order of first appearance.
func (p *Pattern) Wildcards() []string { return p.wildcards }

// HasWildcards reports whether the pattern contains any wildcard.
func (p *Pattern) HasWildcards() bool { return len(p.groups) > 0 }

// Match unifies a concrete path against the pattern. On success it returns
// the wildcard bindings; ok is false when the path does not match, or when
// a repeated wildcard would have to take two different values.
func (p *Pattern) Match(path string) (bindings map[string]string, ok bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}

	bindings = make(map[string]string, len(p.wildcards))
	for i, name := range p.groups {
		value := m[i+1]
		if prev, seen := bindings[name]; seen && prev != value {
			return nil, false
		}
		bindings[name] = value
	}
	return bindings, true
}

// Expand substitutes wildcard bindings into the pattern, producing a
// concrete path. Every wildcard in the pattern must be bound.
func (p *Pattern) Expand(bindings map[string]string) (string, error) {
	var sb strings.Builder
	rest := p.raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		sb.WriteString(rest[:open])

		close := strings.IndexByte(rest[open:], '}')
		name := rest[open+1 : open+close]
		value, bound := bindings[name]
		if !bound {
			return "", fmt.Errorf("pattern %q: wildcard %q is not bound", p.raw, name)
		}
		sb.WriteString(value)

		rest = rest[open+close+1:]
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
