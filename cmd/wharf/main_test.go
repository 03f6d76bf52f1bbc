package main

import (
	"bytes"
	"testing"

	"github.com/modoterra/wharf/pkg/runtime"
)

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Error("expected version output")
	}
}

func TestResolveSources(t *testing.T) {
	sources := []runtime.Source{
		{ID: "abc123def456", Name: "web", Stack: "shop"},
		{ID: "bbb222ccc333", Name: "db", Stack: "shop"},
		{ID: "ddd444eee555", Name: "solo"},
	}

	tests := []struct {
		name    string
		arg     string
		want    []string
		wantErr bool
	}{
		{"by container name", "db", []string{"bbb222ccc333"}, false},
		{"by stack name", "shop", []string{"abc123def456", "bbb222ccc333"}, false},
		{"by id prefix", "ddd444", []string{"ddd444eee555"}, false},
		{"unknown", "nope", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSources(sources, tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestResolveSourcesNameBeatsStack(t *testing.T) {
	// a container named like a stack resolves to the container
	sources := []runtime.Source{
		{ID: "aaa", Name: "shop", Stack: ""},
		{ID: "bbb", Name: "web", Stack: "shop"},
	}
	got, err := resolveSources(sources, "shop")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "aaa" {
		t.Errorf("expected exact container name match to win, got %v", got)
	}
}
