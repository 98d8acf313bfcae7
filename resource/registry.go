package resource

import (
	"fmt"
	"sort"
)

// A Registry maintains the handlers for resource kinds.
//
// The zero value is ready to use.
type Registry struct {
	handlers map[Kind]Handler
}

// NotSupportedError is returned when a kind has no registered handler.
type NotSupportedError struct {
	Kind Kind
}

func (e NotSupportedError) Error() string {
	return fmt.Sprintf("resource kind %s is not supported", e.Kind)
}

// Register sets the handler for a kind. A previously registered handler for
// the same kind is replaced.
//
// Not safe for concurrent access.
func (r *Registry) Register(kind Kind, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("Nil handler for %s", kind))
	}
	if r.handlers == nil {
		r.handlers = make(map[Kind]Handler)
	}
	r.handlers[kind] = h
}

// Handler returns the handler for a kind.
func (r *Registry) Handler(kind Kind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, NotSupportedError{Kind: kind}
	}
	return h, nil
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []Kind {
	kk := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kk = append(kk, k)
	}
	sort.Slice(kk, func(i, j int) bool { return kk[i] < kk[j] })
	return kk
}
