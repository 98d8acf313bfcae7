package graph

import (
	"fmt"
	"strings"
)

// A CycleError is returned when the dependencies between resources contain a
// cycle.
type CycleError struct {
	// Path lists the resources in the cycle. The first and last elements are
	// the same resource.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// An UnknownReferenceError is returned when an input refers to a resource that
// was not declared.
type UnknownReferenceError struct {
	Resource   string // Resource containing the reference.
	Input      string // Input containing the reference.
	Reference  ExprReference
	Suggestion string // Closest declared name, if any.
}

func (e *UnknownReferenceError) Error() string {
	msg := fmt.Sprintf("%s: input %s refers to unknown resource %q", e.Resource, e.Input, e.Reference.Resource)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(", did you mean %q?", e.Suggestion)
	}
	return msg
}

// A DuplicateNameError is returned when two resources are declared with the
// same name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("resource %q declared more than once", e.Name)
}
