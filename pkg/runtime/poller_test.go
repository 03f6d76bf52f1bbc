package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLister struct {
	mu      sync.Mutex
	sources []Source
	err     error
}

func (f *fakeLister) set(sources []Source, err error) {
	f.mu.Lock()
	f.sources = sources
	f.err = err
	f.mu.Unlock()
}

func (f *fakeLister) ListSources(ctx context.Context) ([]Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources, f.err
}

func TestComputeDelta_Added(t *testing.T) {
	old := map[string]Source{}
	next := map[string]Source{"a": {ID: "a", State: "running"}}
	d := computeDelta(old, next)
	if len(d.Added) != 1 {
		t.Errorf("expected 1 added, got %d", len(d.Added))
	}
}

func TestComputeDelta_Removed(t *testing.T) {
	old := map[string]Source{"a": {ID: "a"}}
	next := map[string]Source{}
	d := computeDelta(old, next)
	if len(d.Removed) != 1 {
		t.Errorf("expected 1 removed, got %d", len(d.Removed))
	}
}

func TestComputeDelta_Updated(t *testing.T) {
	old := map[string]Source{"a": {ID: "a", State: "running"}}
	next := map[string]Source{"a": {ID: "a", State: "exited"}}
	d := computeDelta(old, next)
	if len(d.Updated) != 1 {
		t.Errorf("expected 1 updated, got %d", len(d.Updated))
	}
}

func TestComputeDelta_NoChange(t *testing.T) {
	sources := map[string]Source{"a": {ID: "a", State: "running"}}
	d := computeDelta(sources, sources)
	if d.HasChanges() {
		t.Error("expected no changes")
	}
}

func TestComputeDelta_SortedOutput(t *testing.T) {
	old := map[string]Source{}
	next := map[string]Source{
		"c": {ID: "c"},
		"a": {ID: "a"},
		"b": {ID: "b"},
	}
	d := computeDelta(old, next)
	if len(d.Added) != 3 {
		t.Fatalf("expected 3 added, got %d", len(d.Added))
	}
	for i, id := range []string{"a", "b", "c"} {
		if d.Added[i].ID != id {
			t.Errorf("added %d: expected %s, got %s", i, id, d.Added[i].ID)
		}
	}
}

func TestPollerTick(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]Source{{ID: "a", Name: "web", State: "running"}}, nil)
	p := NewPoller(lister, time.Minute, nil)

	p.tick(context.Background())
	select {
	case d := <-p.Updates():
		if len(d.Added) != 1 || d.Added[0].ID != "a" {
			t.Fatalf("expected source a added, got %+v", d)
		}
	default:
		t.Fatal("expected a delta after first tick")
	}

	// Same snapshot, no delta.
	p.tick(context.Background())
	select {
	case d := <-p.Updates():
		t.Fatalf("expected no delta, got %+v", d)
	default:
	}

	lister.set([]Source{{ID: "a", Name: "web", State: "exited"}}, nil)
	p.tick(context.Background())
	select {
	case d := <-p.Updates():
		if len(d.Updated) != 1 || d.Updated[0].State != "exited" {
			t.Fatalf("expected update to exited, got %+v", d)
		}
	default:
		t.Fatal("expected a delta after state change")
	}
}

func TestPollerListErrorKeepsSnapshot(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]Source{{ID: "a", Name: "web"}}, nil)
	p := NewPoller(lister, time.Minute, nil)
	p.tick(context.Background())

	lister.set(nil, errors.New("daemon unreachable"))
	p.tick(context.Background())
	if got := p.Sources(); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected snapshot retained across a failed poll, got %+v", got)
	}
}

func TestPollerSourcesSorted(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]Source{
		{ID: "1", Name: "zeta", Stack: "app"},
		{ID: "2", Name: "alpha", Stack: "app"},
		{ID: "3", Name: "solo", Stack: ""},
	}, nil)
	p := NewPoller(lister, time.Minute, nil)
	p.tick(context.Background())

	got := p.Sources()
	if len(got) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(got))
	}
	if got[0].Name != "solo" || got[1].Name != "alpha" || got[2].Name != "zeta" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestGroupByStack(t *testing.T) {
	stacks := GroupByStack([]Source{
		{ID: "1", Name: "db", Stack: "shop"},
		{ID: "2", Name: "api", Stack: "shop"},
		{ID: "3", Name: "cache", Stack: "blog"},
		{ID: "4", Name: "standalone"},
	})
	if len(stacks) != 3 {
		t.Fatalf("expected 3 stacks, got %d", len(stacks))
	}
	if stacks[0].Name != "blog" || stacks[1].Name != "shop" {
		t.Errorf("expected named stacks sorted first, got %s, %s", stacks[0].Name, stacks[1].Name)
	}
	if stacks[2].Name != "" || len(stacks[2].Sources) != 1 {
		t.Errorf("expected unnamed stack last, got %q", stacks[2].Name)
	}
	if stacks[1].Sources[0].Name != "api" || stacks[1].Sources[1].Name != "db" {
		t.Error("expected sources sorted by name within a stack")
	}
}

func TestSourceRunning(t *testing.T) {
	if !(Source{State: "running"}).Running() {
		t.Error("expected running state to report true")
	}
	if (Source{State: "exited"}).Running() {
		t.Error("expected exited state to report false")
	}
}
