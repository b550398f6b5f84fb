package engine

import "context"

// Decision holds the result of a scope policy evaluation.
type Decision struct {
	Allow bool
}

// Evaluator decides whether a set of granted scopes satisfies the scopes an
// operation requires. Implementations may use OPA or other engines.
type Evaluator interface {
	// Evaluate returns the decision for the given granted and required
	// scopes. required may be empty, in which case any caller passes.
	Evaluate(ctx context.Context, granted, required []string) (Decision, error)
}
