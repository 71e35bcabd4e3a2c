// Package core defines the types shared by the registry, the executor, the
// event bus and the facade: handler registrations and their configuration,
// execution modes, the per-dispatch ExecutionContext, the per-invocation
// Controller and dispatch Metrics.
//
// The package has no behavior of its own beyond guarding ExecutionContext
// state; scheduling lives in package pipeline and ordering in package
// registry.
package core
