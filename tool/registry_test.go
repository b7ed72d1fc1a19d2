package tool

import (
	"errors"
	"testing"
)

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		wantErr error
	}{
		{name: "valid", tool: echoTool("echo")},
		{name: "nil tool", tool: nil},
		{name: "non-object schema", tool: NewFuncTool("bad", "", ToolSchema{Type: "string"}, nil), wantErr: ErrInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.tool)
			switch {
			case tt.name == "valid" && err != nil:
				t.Fatalf("Register() unexpected error: %v", err)
			case tt.name != "valid" && err == nil:
				t.Fatal("Register() expected error")
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_OrderAndSelect(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAll([]Tool{echoTool("c"), echoTool("a"), echoTool("b")}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	if err := r.Register(echoTool("a")); err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	names := r.List()
	want := []string{"c", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	selected := r.Select([]string{"b", "missing", "c"})
	if len(selected) != 2 || selected[0].Name() != "b" || selected[1].Name() != "c" {
		t.Errorf("Select() returned unexpected tools")
	}

	if r.Count() != 3 || !r.Has("a") || r.Has("missing") {
		t.Error("Count/Has mismatch")
	}
}
