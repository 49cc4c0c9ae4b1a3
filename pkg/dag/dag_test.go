package dag

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func twoStage(t *testing.T) *DAG {
	t.Helper()
	g := New(nil)
	for _, n := range []Node{
		{ID: "read:0", Stage: 0},
		{ID: "read:1", Stage: 0},
		{ID: "apply:0", Stage: 1},
		{ID: "apply:1", Stage: 1},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.ID, err)
		}
	}
	for _, e := range []Edge{{From: "read:0", To: "apply:0"}, {From: "read:1", To: "apply:1"}} {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return g
}

func TestQueries(t *testing.T) {
	g := twoStage(t)

	if g.NodeCount() != 4 || g.EdgeCount() != 2 {
		t.Errorf("counts = %d/%d, want 4/2", g.NodeCount(), g.EdgeCount())
	}
	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"roots", IDs(g.Roots()), []string{"read:0", "read:1"}},
		{"leaves", IDs(g.Leaves()), []string{"apply:0", "apply:1"}},
		{"children", g.Children("read:1"), []string{"apply:1"}},
		{"parents", g.Parents("apply:0"), []string{"read:0"}},
		{"stage 1", IDs(g.Stage(1)), []string{"apply:0", "apply:1"}},
	}
	for _, tt := range tests {
		if !slices.Equal(tt.got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if s := g.Stages(); !slices.Equal(s, []int{0, 1}) {
		t.Errorf("Stages() = %v", s)
	}
	if n, ok := g.Node("apply:1"); !ok || n.Meta == nil {
		t.Error("Node() should return the node with non-nil metadata")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestOrder(t *testing.T) {
	g := twoStage(t)
	order, err := g.Order()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"read:0", "read:1", "apply:0", "apply:1"}
	if got := IDs(order); !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestErrors(t *testing.T) {
	g := New(nil)
	if err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("AddNode(empty) = %v", err)
	}
	_ = g.AddNode(Node{ID: "a"})
	if err := g.AddNode(Node{ID: "a"}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("AddNode(duplicate) = %v", err)
	}
	if err := g.AddEdge(Edge{From: "x", To: "a"}); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("AddEdge(unknown from) = %v", err)
	}
	if err := g.AddEdge(Edge{From: "a", To: "x"}); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("AddEdge(unknown to) = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Run("skipped stage", func(t *testing.T) {
		g := New(nil)
		_ = g.AddNode(Node{ID: "a", Stage: 0})
		_ = g.AddNode(Node{ID: "b", Stage: 2})
		_ = g.AddEdge(Edge{From: "a", To: "b"})
		if err := g.Validate(); !errors.Is(err, ErrStageOrder) {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		g := New(nil)
		_ = g.AddNode(Node{ID: "a", Stage: 0})
		_ = g.AddNode(Node{ID: "b", Stage: 1})
		_ = g.AddEdge(Edge{From: "a", To: "b"})
		_ = g.AddEdge(Edge{From: "b", To: "a"})
		if err := g.Validate(); !errors.Is(err, ErrStageOrder) {
			t.Errorf("Validate() = %v", err)
		}
		if _, err := g.Order(); !errors.Is(err, ErrCycle) {
			t.Errorf("Order() = %v", err)
		}
	})
}

func TestToDOT(t *testing.T) {
	g := twoStage(t)
	g.order[0].Meta["box"] = "[0:60,0:60]"

	dot := ToDOT(g, DOTOptions{Detailed: true, StageNames: map[int]string{0: "read", 1: "apply"}})
	for _, want := range []string{
		`digraph G {`,
		`{ rank=same; "read:0"; "read:1"; }`,
		`"read:0" -> "apply:0";`,
		`stage: read`,
		`box: [0:60,0:60]`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q\n%s", want, dot)
		}
	}

	plain := ToDOT(g, DOTOptions{})
	if strings.Contains(plain, "stage:") {
		t.Error("non-detailed DOT should only label node IDs")
	}
}
