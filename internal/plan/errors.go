package plan

import (
	"fmt"
	"strings"
)

// Planning errors are fatal: they are reported before any task execution
// and abort the run.

// NoProducerError reports a requested target that no rule can produce and
// that does not exist on disk.
type NoProducerError struct {
	Path string
}

func (e *NoProducerError) Error() string {
	return fmt.Sprintf("no rule produces %q and the file does not exist", e.Path)
}

// AmbiguousProducerError reports an artifact path that more than one rule,
// or more than one task instance, would produce.
type AmbiguousProducerError struct {
	Path  string
	Rules []string
}

func (e *AmbiguousProducerError) Error() string {
	return fmt.Sprintf("ambiguous producer for %q: rules %s", e.Path, strings.Join(e.Rules, ", "))
}

// CycleError reports that resolving an artifact's producers revisited an
// artifact whose resolution is still in progress.
type CycleError struct {
	Path string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected through %q", e.Path)
}

// MissingInputError reports a root input (an artifact no rule produces)
// that a task depends on but that is absent from disk.
type MissingInputError struct {
	Path     string
	Consumer string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing root input %q required by %s", e.Path, e.Consumer)
}
