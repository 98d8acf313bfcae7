package reconciler

import (
	"context"
	"time"

	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/resource/graph"
	"github.com/diversitus/infra/resource/reconciler/internal/task"
	"github.com/diversitus/infra/resource/waiter"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default maximum concurrency to use.
//
// In practice, the reconciler is likely bound by network i/o.
var DefaultConcurrency = 10

// A HandlerRegistry provides the handler for a resource kind.
type HandlerRegistry interface {
	Handler(kind resource.Kind) (resource.Handler, error)
}

// A Validator waits for a published validation challenge to be confirmed.
type Validator interface {
	Wait(ctx context.Context, res *resource.Resolved, ch resource.Challenge, publish waiter.PublishFunc, poll waiter.PollFunc) (*resource.Resolved, error)
}

// A Reconciler reconciles the resources in a graph.
//
// See package doc for details.
type Reconciler struct {
	Registry HandlerRegistry

	// Validator waits for validation challenges returned by handlers. If not
	// set, a waiter with the default retry policy is used.
	Validator Validator

	// Concurrency sets the maximum allowed concurrency to use.
	// If not set, DefaultConcurrency is used.
	Concurrency uint

	// Logger logs reconciliation updates. If not set, logs are discarded.
	Logger *zap.Logger
}

// Apply reconciles every resource in the graph.
//
// A report is always returned, also when an error occurs. The returned error
// is
//
//   - nil if every resource was validated.
//   - *resource.CancelledError if ctx was cancelled before all resources
//     completed.
//   - Otherwise, the failures of all resources that failed, combined with
//     multierr. Each failure is a *ReconciliationError or an
//     *UnresolvedDependencyError.
func (r *Reconciler) Apply(ctx context.Context, g *graph.Graph) (*Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := ksuid.New().String()
	logger = logger.With(zap.String("id", id))

	validator := r.Validator
	if validator == nil {
		validator = &waiter.Waiter{Logger: logger}
	}

	c := r.Concurrency
	if c == 0 {
		c = uint(DefaultConcurrency)
	}

	run := &run{
		graph:     g,
		registry:  r.Registry,
		validator: validator,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(c)),
		tasks:     task.NewGroup(),
		results:   make(chan result, g.Len()),
		report:    newReport(id, g),
	}

	logger.Info("Apply", zap.Int("resources", g.Len()), zap.Uint("concurrency", c))
	start := time.Now()

	run.schedule(ctx)

	rep := run.report
	logger.Info(
		"Done",
		zap.Int("validated", len(rep.Succeeded())),
		zap.Int("failed", len(rep.Failed())),
		zap.Int("skipped", len(rep.Skipped())),
		zap.Int("incomplete", len(rep.Incomplete())),
		zap.Duration("elapsed", time.Since(start)),
	)

	return rep, rep.Err()
}

type result struct {
	name string
	res  *resource.Resolved
	err  error
}

// run holds the state of a single Apply. Only the scheduling goroutine reads
// or writes the report; workers communicate through the results channel.
type run struct {
	graph     *graph.Graph
	registry  HandlerRegistry
	validator Validator
	logger    *zap.Logger
	sem       *semaphore.Weighted
	tasks     *task.Group
	results   chan result
	report    *Report

	dispatched map[string]bool
	running    int
}

func (r *run) schedule(ctx context.Context) {
	r.dispatched = make(map[string]bool, r.graph.Len())

	for {
		if ctx.Err() == nil {
			r.dispatch(ctx)
		}
		if r.running == 0 {
			break
		}
		res := <-r.results
		r.running--
		r.sem.Release(1)
		r.complete(res)
	}
	r.tasks.Wait()

	if err := ctx.Err(); err != nil {
		for _, name := range r.graph.Order() {
			if r.report.status(name) == resource.StatusPending && !r.report.isSkipped(name) && !r.report.isFailed(name) {
				r.report.markIncomplete(name)
			}
		}
		r.report.cancelled = &resource.CancelledError{Err: err}
		r.logger.Info("Cancelled", zap.Strings("incomplete", r.report.Incomplete()))
	}
}

// dispatch starts every resource whose dependencies have been validated, in
// topological order, until the concurrency limit is reached.
func (r *run) dispatch(ctx context.Context) {
	for _, name := range r.graph.Order() {
		if r.dispatched[name] || r.report.isSkipped(name) || !r.ready(name) {
			continue
		}
		if !r.sem.TryAcquire(1) {
			return
		}
		r.dispatched[name] = true

		res, _ := r.graph.Resource(name)
		logger := r.logger.With(zap.Stringer("kind", res.Kind), zap.String("name", res.Name))

		inputs, err := r.resolveInputs(res)
		if err == nil {
			var h resource.Handler
			h, err = r.registry.Handler(res.Kind)
			if err != nil {
				err = &ReconciliationError{Resource: res.Name, Kind: res.Kind, Err: err}
			} else {
				r.report.setStatus(name, resource.StatusInProgress)
				r.running++
				logger.Debug("Dispatch", zap.String("hash", resource.Hash(inputs)))
				r.tasks.Go(name, func() {
					out, err := r.reconcile(ctx, res, h, inputs, logger)
					r.results <- result{name: res.Name, res: out, err: err}
				})
				continue
			}
		}

		// Failed before any external call.
		r.sem.Release(1)
		r.fail(name, err)
	}
}

func (r *run) ready(name string) bool {
	for _, dep := range r.graph.Dependencies(name) {
		if r.report.status(dep) != resource.StatusValidated {
			return false
		}
	}
	return true
}

func (r *run) resolveInputs(res *graph.Resource) (resource.Attrs, error) {
	outputs := make(map[string]resource.Attrs, len(res.DependsOn))
	for _, dep := range res.DependsOn {
		outputs[dep] = r.report.Resources[dep].Outputs
	}
	ectx := &graph.EvalContext{Outputs: outputs}

	inputs := make(resource.Attrs, len(res.Inputs))
	for _, name := range res.Inputs.Names() {
		v, err := res.Inputs[name].Value(ectx)
		if err != nil {
			if merr, ok := errors.Cause(err).(*graph.MissingValueError); ok {
				return nil, &UnresolvedDependencyError{Resource: res.Name, Input: name, Reference: merr.Ref}
			}
			return nil, &ReconciliationError{Resource: res.Name, Kind: res.Kind, Err: errors.Wrapf(err, "input %s", name)}
		}
		inputs[name] = v
	}
	return inputs, nil
}

func (r *run) reconcile(ctx context.Context, res *graph.Resource, h resource.Handler, inputs resource.Attrs, logger *zap.Logger) (*resource.Resolved, error) {
	logger.Info("Reconcile")

	req := &resource.Request{Spec: res.Spec, Inputs: inputs}
	resp, err := h.Reconcile(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &resource.CancelledError{Resource: res.Name, Err: ctx.Err()}
		}
		return nil, &ReconciliationError{Resource: res.Name, Kind: res.Kind, Err: err}
	}
	if resp == nil {
		resp = &resource.Response{}
	}

	out := &resource.Resolved{
		Name:    res.Name,
		Kind:    res.Kind,
		Status:  resource.StatusValidated,
		Outputs: resp.Outputs,
	}
	if out.Outputs == nil {
		out.Outputs = make(resource.Attrs)
	}

	if v := resp.Validation; v != nil {
		out.Status = resource.StatusInProgress
		logger.Info("Awaiting validation", zap.String("fqdn", v.Challenge.ExpectedFQDN))
		validated, err := r.validator.Wait(ctx, out, v.Challenge, v.Publish, v.Poll)
		if err != nil {
			if _, ok := err.(*resource.CancelledError); ok {
				return nil, err
			}
			return nil, &ReconciliationError{Resource: res.Name, Kind: res.Kind, Err: err}
		}
		out = validated
	}

	logger.Info("Validated", zap.Strings("outputs", out.Outputs.Names()))
	return out, nil
}

func (r *run) complete(res result) {
	if res.err == nil {
		r.report.Resources[res.name] = res.res
		return
	}
	if _, ok := res.err.(*resource.CancelledError); ok {
		r.report.setStatus(res.name, resource.StatusPending)
		r.report.markIncomplete(res.name)
		return
	}
	r.fail(res.name, res.err)
}

// fail marks a resource as failed and skips everything downstream of it.
func (r *run) fail(name string, err error) {
	r.logger.Error("Failed", zap.String("name", name), zap.Error(err))
	r.report.setStatus(name, resource.StatusFailed)
	r.report.failures[name] = err

	var skip func(string)
	skip = func(n string) {
		for _, dep := range r.graph.Dependents(n) {
			if r.report.isSkipped(dep) {
				continue
			}
			r.report.skipped[dep] = name
			r.logger.Info("Skip", zap.String("name", dep), zap.String("failed", name))
			skip(dep)
		}
	}
	skip(name)
}
