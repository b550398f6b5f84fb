package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const scopePolicyQuery = "data.trailblazer.authz.allow"

// Scope policy: an admin scope passes every check; otherwise every required
// scope must be granted.
const scopeRegoPolicy = `package trailblazer.authz

default allow := false

allow if {
	input.granted[_] == input.admin_scope
}

allow if {
	not missing_scope
}

missing_scope if {
	required := input.required[_]
	not granted[required]
}

granted contains s if {
	s := input.granted[_]
}
`

// OPAEvaluator evaluates scope requirements using OPA Rego.
type OPAEvaluator struct {
	compiler   *ast.Compiler
	adminScope string
}

// NewOPAEvaluator compiles the scope policy. adminScope is the scope that
// bypasses all requirements.
func NewOPAEvaluator(adminScope string) (*OPAEvaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"scope.rego": scopeRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile scope policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler, adminScope: adminScope}, nil
}

// Evaluate queries the compiled policy for an allow decision.
func (e *OPAEvaluator) Evaluate(ctx context.Context, granted, required []string) (Decision, error) {
	input := map[string]interface{}{
		"granted":     toInterfaceSlice(granted),
		"required":    toInterfaceSlice(required),
		"admin_scope": e.adminScope,
	}
	q := rego.New(
		rego.Query(scopePolicyQuery),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("eval scope policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("scope policy query returned no result")
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return Decision{}, fmt.Errorf("scope policy returned non-boolean %T", rs[0].Expressions[0].Value)
	}
	return Decision{Allow: allow}, nil
}

// HealthCheck evaluates the compiled policy against a minimal input.
// Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Evaluate(ctx, nil, nil)
	return err
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
