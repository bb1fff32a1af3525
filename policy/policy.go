// Package policy gates mechanical dispatcher decisions — which methods
// are enabled and whether PROPFIND Depth: infinity is honored — behind a
// small embedded Rego module. It never inspects caller identity; that is
// left to whatever sits in front of the handler.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// defaultModule allows every method and unrestricted PROPFIND depth. It
// is the permissive baseline a zero-configuration handler runs with.
const defaultModule = `package dav

allow_method[method] { method := input.method }

allow_infinite_depth { true }
`

// Evaluator decides method and depth gating. The zero value is not
// usable; construct one with New or NewDefault.
type Evaluator struct {
	query rego.PreparedEvalQuery
}

// New prepares an Evaluator from a Rego module defining `data.dav`. The
// module must export `allow_method` (a set the requested method must
// belong to) and `allow_infinite_depth` (a boolean).
func New(module string) (*Evaluator, error) {
	ctx := context.Background()
	r := rego.New(
		rego.Query("data.dav"),
		rego.Module("policy.rego", module),
	)
	q, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing policy module: %w", err)
	}
	return &Evaluator{query: q}, nil
}

// NewDefault builds the permissive baseline Evaluator.
func NewDefault() *Evaluator {
	e, err := New(defaultModule)
	if err != nil {
		// defaultModule is a constant known to be valid Rego; a failure
		// here would be a bug in this package, not caller input.
		panic(err)
	}
	return e
}

func (e *Evaluator) eval(ctx context.Context, input map[string]any) (map[string]any, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	v, _ := results[0].Expressions[0].Value.(map[string]any)
	return v, nil
}

// AllowMethod reports whether method is permitted against path. On
// evaluation failure it fails open, since policy here is a coarse gate,
// not an authorization boundary (auth is out of scope for this engine).
func (e *Evaluator) AllowMethod(ctx context.Context, method, path string) bool {
	out, err := e.eval(ctx, map[string]any{"method": method, "path": path})
	if err != nil || out == nil {
		return true
	}
	set, ok := out["allow_method"].([]any)
	if !ok {
		return true
	}
	for _, m := range set {
		if s, ok := m.(string); ok && s == method {
			return true
		}
	}
	return false
}

// AllowInfiniteDepth reports whether a PROPFIND with Depth: infinity may
// proceed against path. An allow_infinite_depth rule that is undefined for
// this input (its body failed) denies; evaluation failure fails open.
func (e *Evaluator) AllowInfiniteDepth(ctx context.Context, path string) bool {
	out, err := e.eval(ctx, map[string]any{"method": "PROPFIND", "path": path})
	if err != nil || out == nil {
		return true
	}
	allow, ok := out["allow_infinite_depth"].(bool)
	if !ok {
		return false
	}
	return allow
}
