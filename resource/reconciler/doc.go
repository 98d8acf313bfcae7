// Package reconciler reconciles resources in a graph against the services
// that own them.
//
// Order
//
// The graph is walked in topological order. A resource is dispatched once all
// resources it depends on have been validated; its input references are then
// substituted with the outputs of those resources.
//
// Concurrency
//
// When possible, resources are reconciled concurrently, bounded by the
// configured concurrency.
//
//   A and B execute concurrently.
//   When both have been validated, C is executed.
//
//       A --> C
//       B -/
//
//   A is executed, then B & C concurrently, then D.
//
//       A -> B -> D
//         \- C -/
//
// With a concurrency of 1, resources are reconciled in the order returned from
// graph.Order().
//
// Validation
//
// A handler may return a validation challenge with its response. The
// resource is then in progress until the challenge has been confirmed, see
// package waiter.
//
// Failures
//
// If a resource fails, every resource that depends on it, directly or
// transitively, is skipped and remains pending. Resources on independent
// branches continue. Failed operations are not retried by the reconciler;
// retries are the responsibility of the handler.
//
// Cancellation
//
// When the context is cancelled, no new resources are dispatched. Resources
// that were already validated are left as they are. Resources that were in
// flight or not yet dispatched are reported as incomplete.
package reconciler
