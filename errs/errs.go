// Package errs defines the typed error kinds surfaced across the query
// core, per spec.md §7. Each kind is a package-level *errors.Kind built
// once with gopkg.in/src-d/go-errors.v1, so callers can compare errors by
// kind (errors.Is-style) independent of the formatted message.
package errs

import (
	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	// InvalidQuery covers DSL build/compile-time failures not captured by
	// a more specific kind below.
	InvalidQuery = goerrors.NewKind("invalid query: %s")
	// UnknownTable is raised when a query or ingest spec references a
	// table that has no registered schema.
	UnknownTable = goerrors.NewKind("unknown table %q")
	// TypeMismatch is raised when the DSL's type inference rejects an
	// expression's operand types.
	TypeMismatch = goerrors.NewKind("type mismatch in %s: %s")
	// UngroupedProjection is raised when a non-aggregate select expression
	// is absent from the group-by index set.
	UngroupedProjection = goerrors.NewKind("ungrouped projection: %s")
	// PlanExecution wraps one or more block-phase failures promoted under
	// a strict plan.
	PlanExecution = goerrors.NewKind("plan execution failed: %s")
	// NodeUnreachable is raised after retry/backoff is exhausted dialing a
	// node.
	NodeUnreachable = goerrors.NewKind("node unreachable: %s")
	// Timeout marks a node call that timed out; withRetry retries it like
	// NodeUnreachable. A plan whose own deadline passes fails with Canceled.
	Timeout = goerrors.NewKind("timeout: %s")
	// Canceled is raised when a plan is canceled by the client or its
	// deadline; never retried.
	Canceled = goerrors.NewKind("query canceled: %s")
	// Internal indicates a programming invariant violation; the query
	// that raised it is terminated, not retried.
	Internal = goerrors.NewKind("internal error: %s")
)
