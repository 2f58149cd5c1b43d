package depgraph

import (
	"errors"
	"testing"
)

func positionOf(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, n := range order {
		if n == name {
			return i
		}
	}
	t.Fatalf("table %s missing from order %v", name, order)
	return -1
}

func TestTopoSort_ParentsBeforeChildren(t *testing.T) {
	g := New()
	g.AddNode("accounts")
	g.AddNode("campaigns")
	g.AddNode("ads")
	g.AddEdge("accounts", "campaigns")
	g.AddEdge("campaigns", "ads")

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}

	if len(order) != 3 {
		t.Fatalf("Expected 3 tables, got %v", order)
	}

	if positionOf(t, order, "accounts") > positionOf(t, order, "campaigns") {
		t.Errorf("accounts must come before campaigns: %v", order)
	}
	if positionOf(t, order, "campaigns") > positionOf(t, order, "ads") {
		t.Errorf("campaigns must come before ads: %v", order)
	}
}

func TestTopoSort_StableForIndependentNodes(t *testing.T) {
	g := New()
	g.AddNode("settings")
	g.AddNode("accounts")
	g.AddNode("tags")

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}

	want := []string{"settings", "accounts", "tags"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("Expected input order %v preserved, got %v", want, order)
		}
	}
}

func TestTopoSort_Diamond(t *testing.T) {
	// accounts -> campaigns, accounts -> audiences, both -> ads
	g := New()
	g.AddEdge("accounts", "campaigns")
	g.AddEdge("accounts", "audiences")
	g.AddEdge("campaigns", "ads")
	g.AddEdge("audiences", "ads")

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}

	adPos := positionOf(t, order, "ads")
	for _, parent := range []string{"accounts", "campaigns", "audiences"} {
		if positionOf(t, order, parent) > adPos {
			t.Errorf("%s must come before ads: %v", parent, order)
		}
	}
}

func TestTopoSort_CycleDetected(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	_, err := g.TopoSort()
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected CycleError, got %T", err)
	}

	if len(cycleErr.Tables) == 0 {
		t.Error("Expected cycle error to name the unorderable tables")
	}
}

func TestTopoSort_CycleWithIndependentPrefix(t *testing.T) {
	g := New()
	g.AddNode("settings")
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, err := g.TopoSort()
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
}

func TestTopoSort_EmptyGraph(t *testing.T) {
	g := New()

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}
	if len(order) != 0 {
		t.Errorf("Expected empty order, got %v", order)
	}
}

func TestAddEdge_Deduplicates(t *testing.T) {
	g := New()
	g.AddEdge("accounts", "campaigns")
	g.AddEdge("accounts", "campaigns")

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort() error = %v", err)
	}
	if len(order) != 2 {
		t.Errorf("Expected 2 tables, got %v", order)
	}
}

func TestReverse(t *testing.T) {
	order := []string{"accounts", "campaigns", "ads"}
	reversed := Reverse(order)

	want := []string{"ads", "campaigns", "accounts"}
	for i, name := range want {
		if reversed[i] != name {
			t.Fatalf("Reverse() = %v, want %v", reversed, want)
		}
	}

	// Original slice untouched
	if order[0] != "accounts" {
		t.Error("Reverse() must not mutate its input")
	}
}

func TestHasNodeAndLen(t *testing.T) {
	g := New()
	g.AddEdge("accounts", "campaigns")

	if !g.HasNode("accounts") || !g.HasNode("campaigns") {
		t.Error("Expected both edge endpoints registered")
	}
	if g.HasNode("ads") {
		t.Error("Did not expect unregistered table")
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
}
