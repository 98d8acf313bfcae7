package reconciler

import (
	"fmt"

	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/resource/graph"
)

// A ReconciliationError is returned when a handler failed to reconcile a
// resource, or no handler exists for its kind.
type ReconciliationError struct {
	Resource string
	Kind     resource.Kind
	Err      error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s.%s: %v", e.Kind, e.Resource, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReconciliationError) Unwrap() error { return e.Err }

// An UnresolvedDependencyError is returned when an input refers to an output
// that the referenced resource did not produce.
type UnresolvedDependencyError struct {
	Resource  string
	Input     string
	Reference graph.ExprReference
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("%s: input %s: %s did not produce output %q", e.Resource, e.Input, e.Reference.Resource, e.Reference.Output)
}
