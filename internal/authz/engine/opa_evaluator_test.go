package engine

import (
	"context"
	"testing"
)

func newTestEvaluator(t *testing.T) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator("admin")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_Evaluate(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		granted  []string
		required []string
		allow    bool
	}{
		{"exact match", []string{"user"}, []string{"user"}, true},
		{"superset", []string{"user", "provider"}, []string{"user"}, true},
		{"all required present", []string{"user", "provider"}, []string{"user", "provider"}, true},
		{"one of several missing", []string{"user"}, []string{"user", "provider"}, false},
		{"missing", []string{"user"}, []string{"provider"}, false},
		{"no scopes granted", nil, []string{"user"}, false},
		{"nothing required", nil, nil, true},
		{"nothing required with scopes", []string{"user"}, nil, true},
		{"admin bypass", []string{"admin"}, []string{"provider"}, true},
		{"admin bypass several", []string{"admin"}, []string{"user", "provider"}, true},
		{"admin among others", []string{"user", "admin"}, []string{"provider"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := e.Evaluate(ctx, tc.granted, tc.required)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if dec.Allow != tc.allow {
				t.Errorf("Allow = %v, want %v", dec.Allow, tc.allow)
			}
		})
	}
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e := newTestEvaluator(t)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
