package reconciler

import (
	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/resource/graph"
	"go.uber.org/multierr"
)

// A Report describes the outcome of an Apply.
type Report struct {
	// ID uniquely identifies the run.
	ID string

	// Resources contains the resolved state of every resource in the graph,
	// keyed by name.
	Resources map[string]*resource.Resolved

	order      []string
	failures   map[string]error
	skipped    map[string]string // Skipped resource -> failed ancestor.
	incomplete map[string]bool
	cancelled  *resource.CancelledError
}

// A Skip describes a resource that was not reconciled because a resource it
// depends on failed.
type Skip struct {
	Resource string
	Failed   string // Name of the failed upstream resource.
}

func newReport(id string, g *graph.Graph) *Report {
	rep := &Report{
		ID:         id,
		Resources:  make(map[string]*resource.Resolved, g.Len()),
		order:      g.Order(),
		failures:   make(map[string]error),
		skipped:    make(map[string]string),
		incomplete: make(map[string]bool),
	}
	for _, res := range g.Resources() {
		rep.Resources[res.Name] = &resource.Resolved{
			Name:   res.Name,
			Kind:   res.Kind,
			Status: resource.StatusPending,
		}
	}
	return rep
}

func (r *Report) status(name string) resource.Status { return r.Resources[name].Status }

func (r *Report) setStatus(name string, status resource.Status) {
	r.Resources[name].Status = status
}

func (r *Report) isSkipped(name string) bool {
	_, ok := r.skipped[name]
	return ok
}

func (r *Report) isFailed(name string) bool {
	_, ok := r.failures[name]
	return ok
}

func (r *Report) markIncomplete(name string) {
	r.Resources[name].Outputs = nil
	r.incomplete[name] = true
}

func (r *Report) filter(fn func(name string) bool) []string {
	var out []string
	for _, name := range r.order {
		if fn(name) {
			out = append(out, name)
		}
	}
	return out
}

// Succeeded returns the names of the validated resources, in topological
// order.
func (r *Report) Succeeded() []string {
	return r.filter(func(name string) bool { return r.status(name) == resource.StatusValidated })
}

// Failed returns the names of the failed resources, in topological order.
func (r *Report) Failed() []string {
	return r.filter(r.isFailed)
}

// Skipped returns the resources that were skipped due to an upstream failure,
// in topological order.
func (r *Report) Skipped() []Skip {
	var out []Skip
	for _, name := range r.filter(r.isSkipped) {
		out = append(out, Skip{Resource: name, Failed: r.skipped[name]})
	}
	return out
}

// Incomplete returns the names of the resources that were in flight or not
// yet dispatched when the run was cancelled, in topological order.
func (r *Report) Incomplete() []string {
	return r.filter(func(name string) bool { return r.incomplete[name] })
}

// Failure returns the error a resource failed with, or nil.
func (r *Report) Failure(name string) error {
	return r.failures[name]
}

// FirstFailure returns the error of the first failed resource in topological
// order, or nil if no resource failed.
func (r *Report) FirstFailure() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return r.failures[failed[0]]
}

// Err returns the error for the run. See Apply.
func (r *Report) Err() error {
	if r.cancelled != nil {
		return r.cancelled
	}
	var err error
	for _, name := range r.Failed() {
		err = multierr.Append(err, r.failures[name])
	}
	return err
}

// Outputs returns the outputs of every validated resource, keyed by name.
func (r *Report) Outputs() map[string]resource.Attrs {
	out := make(map[string]resource.Attrs)
	for _, name := range r.Succeeded() {
		out[name] = r.Resources[name].Outputs
	}
	return out
}
