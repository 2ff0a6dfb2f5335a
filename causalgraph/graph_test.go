package causalgraph

import (
	"errors"
	"testing"
)

func TestAddEdgeAndQuery(t *testing.T) {
	g := NewGraph()
	if err := g.AddEdge("m1", "m2", "caused_by", 0.8, "agent1"); err != nil {
		t.Fatal(err)
	}

	edge := Edge{Source: "m1", Target: "m2", Relation: "caused_by"}
	if !g.HasEdge(edge) {
		t.Error("edge should be present")
	}
	if strength, ok := g.Strength(edge); !ok || strength != 0.8 {
		t.Errorf("strength = %v/%v, want 0.8/true", strength, ok)
	}
	if got := g.EdgeCount(); got != 1 {
		t.Errorf("edge count = %d, want 1", got)
	}
	if nodes := g.Nodes(); len(nodes) != 2 || nodes[0] != "m1" || nodes[1] != "m2" {
		t.Errorf("nodes = %v", nodes)
	}
	if succ := g.Successors("m1"); len(succ) != 1 || succ[0] != "m2" {
		t.Errorf("successors = %v", succ)
	}
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := NewGraph()
	if err := g.AddEdge("m1", "m1", "caused_by", 0.5, "agent1"); !errors.Is(err, ErrSelfLoop) {
		t.Fatalf("err = %v, want ErrSelfLoop", err)
	}
}

func TestAddEdgeRejectsLocalCycle(t *testing.T) {
	g := NewGraph()
	if err := g.AddEdge("m1", "m2", "caused_by", 0.5, "agent1"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("m2", "m3", "caused_by", 0.5, "agent1"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("m3", "m1", "caused_by", 0.5, "agent1"); !errors.Is(err, ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
}

func TestRemoveEdgeAddWins(t *testing.T) {
	a := NewGraph()
	if err := a.AddEdge("m1", "m2", "derived_from", 0.5, "agentA"); err != nil {
		t.Fatal(err)
	}

	// B adds the same edge independently; A removes having observed only
	// its own add. The concurrent add survives the merge.
	b := NewGraph()
	if err := b.AddEdge("m1", "m2", "derived_from", 0.5, "agentB"); err != nil {
		t.Fatal(err)
	}

	edge := Edge{Source: "m1", Target: "m2", Relation: "derived_from"}
	a.RemoveEdge(edge)
	if a.HasEdge(edge) {
		t.Fatal("edge should be absent after local remove")
	}

	a.Merge(b)
	if !a.HasEdge(edge) {
		t.Error("concurrently added edge should survive the remove")
	}
}

func TestStrengthOnlyGrows(t *testing.T) {
	g := NewGraph()
	edge := Edge{Source: "m1", Target: "m2", Relation: "caused_by"}
	if err := g.AddEdge(edge.Source, edge.Target, edge.Relation, 0.6, "agent1"); err != nil {
		t.Fatal(err)
	}

	if err := g.UpdateStrength(edge, 0.3); err != nil {
		t.Fatal(err)
	}
	if strength, _ := g.Strength(edge); strength != 0.6 {
		t.Errorf("strength = %v, lower update should be ignored", strength)
	}

	if err := g.UpdateStrength(edge, 0.9); err != nil {
		t.Fatal(err)
	}
	if strength, _ := g.Strength(edge); strength != 0.9 {
		t.Errorf("strength = %v, want 0.9", strength)
	}

	if err := g.UpdateStrength(edge, 7); err != nil {
		t.Fatal(err)
	}
	if strength, _ := g.Strength(edge); strength != 1.0 {
		t.Errorf("strength = %v, want clamped to 1.0", strength)
	}

	if err := g.UpdateStrength(Edge{Source: "x", Target: "y", Relation: "z"}, 0.5); err == nil {
		t.Error("updating an unknown edge should fail")
	}
}

// Two replicas concurrently add edges that are individually fine but
// together form a cycle. Merge repairs it by dropping the weakest edge,
// and both merge orders drop the same one.
func TestMergeRepairsConcurrentCycle(t *testing.T) {
	a := NewGraph()
	if err := a.AddEdge("m1", "m2", "caused_by", 0.4, "agentA"); err != nil {
		t.Fatal(err)
	}
	b := NewGraph()
	if err := b.AddEdge("m2", "m1", "caused_by", 0.9, "agentB"); err != nil {
		t.Fatal(err)
	}

	ab := a.Clone()
	droppedAB := ab.Merge(b)
	ba := b.Clone()
	droppedBA := ba.Merge(a)

	if ab.HasCycle() || ba.HasCycle() {
		t.Fatal("cycle survived the merge repair")
	}
	if !ab.Equal(ba) {
		t.Fatal("merge order changed the outcome")
	}

	weak := Edge{Source: "m1", Target: "m2", Relation: "caused_by"}
	strong := Edge{Source: "m2", Target: "m1", Relation: "caused_by"}
	if ab.HasEdge(weak) {
		t.Error("weakest edge should have been dropped")
	}
	if !ab.HasEdge(strong) {
		t.Error("strongest edge should survive")
	}
	if len(droppedAB) != 1 || droppedAB[0] != weak {
		t.Errorf("dropped = %v, want [%s]", droppedAB, weak)
	}
	if len(droppedBA) != 1 || droppedBA[0] != weak {
		t.Errorf("dropped = %v, want [%s]", droppedBA, weak)
	}
}

// Equal strengths fall back to the lexicographic edge order, so repair
// stays deterministic even with no strength signal.
func TestMergeRepairTieBreaksLexicographically(t *testing.T) {
	a := NewGraph()
	if err := a.AddEdge("m1", "m2", "caused_by", 0.5, "agentA"); err != nil {
		t.Fatal(err)
	}
	b := NewGraph()
	if err := b.AddEdge("m2", "m1", "caused_by", 0.5, "agentB"); err != nil {
		t.Fatal(err)
	}

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)

	if !ab.Equal(ba) {
		t.Fatal("merge order changed the outcome")
	}
	if ab.HasEdge(Edge{Source: "m1", Target: "m2", Relation: "caused_by"}) {
		t.Error("lexicographically smallest edge should be the victim")
	}
	if !ab.HasEdge(Edge{Source: "m2", Target: "m1", Relation: "caused_by"}) {
		t.Error("other edge should survive")
	}
}

func TestMergeRepairsLongerCycle(t *testing.T) {
	a := NewGraph()
	if err := a.AddEdge("m1", "m2", "caused_by", 0.9, "agentA"); err != nil {
		t.Fatal(err)
	}
	if err := a.AddEdge("m2", "m3", "caused_by", 0.8, "agentA"); err != nil {
		t.Fatal(err)
	}
	b := NewGraph()
	if err := b.AddEdge("m3", "m1", "caused_by", 0.2, "agentB"); err != nil {
		t.Fatal(err)
	}

	dropped := a.Merge(b)
	if a.HasCycle() {
		t.Fatal("cycle survived")
	}
	if len(dropped) != 1 || (dropped[0] != Edge{Source: "m3", Target: "m1", Relation: "caused_by"}) {
		t.Errorf("dropped = %v, want the weakest edge m3->m1", dropped)
	}
	if got := a.EdgeCount(); got != 2 {
		t.Errorf("edge count = %d, want 2", got)
	}
}

func TestGraphMergeLaws(t *testing.T) {
	a := NewGraph()
	if err := a.AddEdge("m1", "m2", "caused_by", 0.5, "agentA"); err != nil {
		t.Fatal(err)
	}
	b := NewGraph()
	if err := b.AddEdge("m2", "m3", "derived_from", 0.7, "agentB"); err != nil {
		t.Fatal(err)
	}
	c := NewGraph()
	if err := c.AddEdge("m1", "m3", "caused_by", 0.9, "agentC"); err != nil {
		t.Fatal(err)
	}

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)
	if !ab.Equal(ba) {
		t.Error("merge is not commutative")
	}

	bc := b.Clone()
	bc.Merge(c)
	aBC := a.Clone()
	aBC.Merge(bc)
	abC := ab.Clone()
	abC.Merge(c)
	if !aBC.Equal(abC) {
		t.Error("merge is not associative")
	}

	aa := a.Clone()
	aa.Merge(a)
	if !aa.Equal(a) {
		t.Error("merge is not idempotent")
	}
}

func TestMergeTakesMaxStrength(t *testing.T) {
	a := NewGraph()
	if err := a.AddEdge("m1", "m2", "caused_by", 0.3, "agentA"); err != nil {
		t.Fatal(err)
	}
	b := NewGraph()
	if err := b.AddEdge("m1", "m2", "caused_by", 0.8, "agentB"); err != nil {
		t.Fatal(err)
	}

	a.Merge(b)
	edge := Edge{Source: "m1", Target: "m2", Relation: "caused_by"}
	if strength, _ := a.Strength(edge); strength != 0.8 {
		t.Errorf("strength = %v, want 0.8", strength)
	}
}
