package policy

import (
	"context"
	"testing"
)

func TestDefaultAllowsEverything(t *testing.T) {
	e := NewDefault()
	ctx := context.Background()

	for _, m := range []string{"GET", "PUT", "PROPFIND", "MKCOL", "LOCK"} {
		if !e.AllowMethod(ctx, m, "/anything") {
			t.Errorf("default policy should allow %s", m)
		}
	}
	if !e.AllowInfiniteDepth(ctx, "/anything") {
		t.Error("default policy should allow Depth: infinity")
	}
}

func TestCustomModuleRestrictsMethod(t *testing.T) {
	module := `package dav

allow_method[method] {
	method := input.method
	method != "DELETE"
}

allow_infinite_depth { false }
`
	e, err := New(module)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if !e.AllowMethod(ctx, "GET", "/a") {
		t.Error("GET should be allowed")
	}
	if e.AllowMethod(ctx, "DELETE", "/a") {
		t.Error("DELETE should be denied by the custom module")
	}
	if e.AllowInfiniteDepth(ctx, "/a") {
		t.Error("Depth: infinity should be denied by the custom module")
	}
}

func TestNewRejectsMalformedModule(t *testing.T) {
	if _, err := New("not valid rego"); err == nil {
		t.Fatal("expected an error preparing a malformed Rego module")
	}
}
