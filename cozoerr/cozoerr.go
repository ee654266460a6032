// Package cozoerr defines the error-kind taxonomy shared by every layer of
// the query engine, from parsing through storage.
//
// Each kind is a gopkg.in/src-d/go-errors.v1 Kind: a package-level var created
// with errors.NewKind, instantiated with .New(args...) at the call site, and
// matched with .Is(err) by callers that need to branch on error category.
package cozoerr

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrParse covers invalid syntax. The core does not parse CozoScript
	// itself but surfaces this
	// kind when it is handed an already-parsed program that is malformed in
	// a way only the engine can detect (e.g. a reference to an undeclared
	// rule head entry).
	ErrParse = errors.NewKind("parse error: %s")

	// ErrValidation covers safety violations, arity mismatches, unknown
	// rule/relation references, and type mismatches in rule heads or
	// fixed-rule options.
	ErrValidation = errors.NewKind("validation error: %s")

	// ErrStratification covers negation or non-monotone aggregation inside a
	// recursive strongly-connected component, and unbound symbols discovered
	// during stratum construction.
	ErrStratification = errors.NewKind("stratification error: %s")

	// ErrCoercion covers a value that cannot be coerced to a column's
	// declared type.
	ErrCoercion = errors.NewKind("coercion error: cannot coerce %v to %s")

	// ErrAssertion covers a violated :assert none/some query option.
	ErrAssertion = errors.NewKind("assertion error: %s")

	// ErrTransactionConflict covers an optimistic commit that lost a race;
	// callers are expected to retry.
	ErrTransactionConflict = errors.NewKind("transaction conflict: %s")

	// ErrNotFound covers a missing relation, trigger, or running query.
	ErrNotFound = errors.NewKind("not found: %s")

	// ErrTimeout covers a cooperative deadline reached during evaluation.
	ErrTimeout = errors.NewKind("timeout after %s")

	// ErrCancelled covers an external kill of a running query.
	ErrCancelled = errors.NewKind("cancelled: %s")

	// ErrStorage covers an unexpected error surfaced by the underlying KV
	// store.
	ErrStorage = errors.NewKind("storage error: %s")

	// ErrInternal covers invariant violations that should not occur.
	ErrInternal = errors.NewKind("internal error: %s")
)
