package resource

import (
	"context"
)

// A Handler reconciles resources of a single kind against the external
// service that owns them.
//
// Reconcile must be idempotent: applying the same inputs to a resource that
// already exists must converge to the same outputs without creating a
// duplicate.
type Handler interface {
	Reconcile(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Reconcile calls f(ctx, req).
func (f HandlerFunc) Reconcile(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// A Request is passed to a handler when a resource is reconciled. All
// references in the inputs have been substituted with upstream outputs.
type Request struct {
	Spec   Spec
	Inputs Attrs
}

// A Response is returned from a handler after a resource has been created or
// updated.
type Response struct {
	Outputs Attrs

	// Validation is set if the resource is not usable until an external
	// authority has confirmed it. The reconciler waits for the validation to
	// complete before the resource is considered validated.
	Validation *Validation
}

// Validation describes an asynchronous confirmation step for a resource.
type Validation struct {
	Challenge Challenge

	// Publish makes the challenge discoverable by the external authority. It
	// is invoked exactly once.
	Publish func(ctx context.Context, ch Challenge) error

	// Poll reports the current validation status.
	Poll func(ctx context.Context) (ValidationStatus, error)
}

// ValidationStatus is the status reported by an external authority.
type ValidationStatus int

// Validation statuses.
const (
	ValidationPending ValidationStatus = iota
	ValidationSuccess
	ValidationFailure
)

func (s ValidationStatus) String() string {
	switch s {
	case ValidationSuccess:
		return "success"
	case ValidationFailure:
		return "failure"
	default:
		return "pending"
	}
}
