package causalgraph

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/loomhq/loom-go-sdk/crdt"
)

var (
	// ErrSelfLoop is returned when an edge's source and target coincide.
	ErrSelfLoop = errors.New("causalgraph: edge source and target are the same node")
	// ErrCycle is returned when adding an edge would close a cycle
	// through state already visible on this replica.
	ErrCycle = errors.New("causalgraph: edge would create a cycle")
)

// Edge is one directed causal relation between two records. The full
// triple identifies the edge: two nodes may be connected by edges of
// different relations.
type Edge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", e.Source, e.Relation, e.Target)
}

// Graph is a replicated DAG. Edge membership is an observed-remove set
// (add wins); each edge's strength is a max register clamped to [0, 1].
// Local operations must be serialized by the caller; Merge may run in any
// order against any replica.
type Graph struct {
	edges     *crdt.ORSet[Edge]
	strengths map[Edge]*crdt.MaxRegister[float64]
	seqs      map[string]uint64
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		edges:     crdt.NewORSet[Edge](),
		strengths: make(map[Edge]*crdt.MaxRegister[float64]),
		seqs:      make(map[string]uint64),
	}
}

// AddEdge inserts a directed relation on behalf of agentID. It rejects
// self-loops and edges that would close a cycle through locally visible
// state; cycles formed against concurrent remote edges are caught later,
// during merge repair.
func (g *Graph) AddEdge(source, target, relation string, strength float64, agentID string) error {
	if source == target {
		return fmt.Errorf("%w: %s", ErrSelfLoop, source)
	}
	edge := Edge{Source: source, Target: target, Relation: relation}
	if !g.edges.Contains(edge) && g.reaches(target, source) {
		return fmt.Errorf("%w: %s", ErrCycle, edge)
	}

	g.edges.Add(edge, agentID, g.nextSeq(agentID))
	g.observeStrength(edge, clamp01(strength), nil)
	return nil
}

// RemoveEdge removes an edge as observed on this replica. A concurrent
// add elsewhere survives the removal. The strength register is kept so a
// surviving or re-added edge does not forget its history.
func (g *Graph) RemoveEdge(edge Edge) {
	g.edges.Remove(edge)
}

// UpdateStrength raises an edge's strength; lower values are ignored.
func (g *Graph) UpdateStrength(edge Edge, strength float64) error {
	reg, ok := g.strengths[edge]
	if !ok {
		return fmt.Errorf("causalgraph: unknown edge %s", edge)
	}
	reg.Set(clamp01(strength))
	return nil
}

// Strength returns an edge's strength and whether the edge is present.
func (g *Graph) Strength(edge Edge) (float64, bool) {
	if !g.edges.Contains(edge) {
		return 0, false
	}
	reg, ok := g.strengths[edge]
	if !ok {
		return 0, false
	}
	return reg.Get(), true
}

// HasEdge reports whether the edge is present.
func (g *Graph) HasEdge(edge Edge) bool {
	return g.edges.Contains(edge)
}

// Edges returns the present edges in a fixed total order.
func (g *Graph) Edges() []Edge {
	edges := g.edges.Elements()
	sortEdges(edges)
	return edges
}

// EdgeCount returns the number of present edges.
func (g *Graph) EdgeCount() int {
	return g.edges.Len()
}

// Nodes returns every node touched by a present edge, sorted.
func (g *Graph) Nodes() []string {
	seen := make(map[string]struct{})
	for _, edge := range g.edges.Elements() {
		seen[edge.Source] = struct{}{}
		seen[edge.Target] = struct{}{}
	}
	nodes := make([]string, 0, len(seen))
	for node := range seen {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// Successors returns the nodes directly reachable from node, sorted.
func (g *Graph) Successors(node string) []string {
	seen := make(map[string]struct{})
	for _, edge := range g.edges.Elements() {
		if edge.Source == node {
			seen[edge.Target] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for target := range seen {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Merge folds another replica in: edge sets union, strengths take the
// max, and any cycle produced by concurrent additions is repaired. It
// returns the edges dropped during repair, in the order they were
// dropped; every replica performing the same merge drops the same edges.
func (g *Graph) Merge(other *Graph) []Edge {
	if other == nil {
		return nil
	}
	g.edges.Merge(other.edges)
	for edge, reg := range other.strengths {
		g.observeStrength(edge, reg.Get(), reg)
	}
	for agent, seq := range other.seqs {
		if seq > g.seqs[agent] {
			g.seqs[agent] = seq
		}
	}
	return g.resolveCycles()
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	clone := NewGraph()
	clone.edges = g.edges.Clone()
	for edge, reg := range g.strengths {
		clone.strengths[edge] = reg.Clone()
	}
	for agent, seq := range g.seqs {
		clone.seqs[agent] = seq
	}
	return clone
}

// HasCycle reports whether any cycle exists among present edges.
func (g *Graph) HasCycle() bool {
	return len(g.findCycle(g.adjacency())) > 0
}

// Equal reports whether both replicas hold identical edge state.
func (g *Graph) Equal(other *Graph) bool {
	if other == nil {
		return g.edges.Len() == 0
	}
	if !g.edges.Equal(other.edges) {
		return false
	}
	if len(g.strengths) != len(other.strengths) {
		return false
	}
	for edge, reg := range g.strengths {
		otherReg, ok := other.strengths[edge]
		if !ok || reg.Get() != otherReg.Get() {
			return false
		}
	}
	return true
}

// resolveCycles repairs the graph after a merge. Each pass finds one
// cycle and tombstones its weakest edge, weakest meaning lowest
// (strength, source, target, relation) in ascending order; the search is
// driven by sorted iteration, so every replica picks the same victim.
func (g *Graph) resolveCycles() []Edge {
	var dropped []Edge
	for {
		cycle := g.findCycle(g.adjacency())
		if len(cycle) == 0 {
			return dropped
		}
		victim := cycle[0]
		for _, edge := range cycle[1:] {
			if g.weaker(edge, victim) {
				victim = edge
			}
		}
		log.Printf("[GRAPH] concurrent additions formed a cycle, dropping weakest edge %s", victim)
		g.edges.Remove(victim)
		dropped = append(dropped, victim)
	}
}

// weaker reports whether a sorts before b under the repair order.
func (g *Graph) weaker(a, b Edge) bool {
	sa, sb := g.strengthOf(a), g.strengthOf(b)
	if sa != sb {
		return sa < sb
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	return a.Relation < b.Relation
}

func (g *Graph) strengthOf(edge Edge) float64 {
	if reg, ok := g.strengths[edge]; ok {
		return reg.Get()
	}
	return 0
}

// adjacency builds a sorted adjacency list over present edges.
func (g *Graph) adjacency() map[string][]Edge {
	adj := make(map[string][]Edge)
	for _, edge := range g.edges.Elements() {
		adj[edge.Source] = append(adj[edge.Source], edge)
	}
	for _, edges := range adj {
		sortEdges(edges)
	}
	return adj
}

// findCycle returns the edges of one cycle, empty if the graph is
// acyclic. Nodes and edges are visited in sorted order, so the cycle
// found is the same on every replica holding the same state.
func (g *Graph) findCycle(adj map[string][]Edge) []Edge {
	const (
		unvisited = iota
		inStack
		done
	)

	state := make(map[string]int)
	nodes := make([]string, 0, len(adj))
	for node := range adj {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var cycle []Edge
	var path []Edge

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = inStack
		for _, edge := range adj[node] {
			switch state[edge.Target] {
			case inStack:
				// Back edge: the cycle is this edge plus the path
				// segment from the target onward.
				cycle = append(cycle, edge)
				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
					if path[i].Source == edge.Target {
						break
					}
				}
				return true
			case unvisited:
				path = append(path, edge)
				if visit(edge.Target) {
					return true
				}
				path = path[:len(path)-1]
			}
		}
		state[node] = done
		return false
	}

	for _, node := range nodes {
		if state[node] == unvisited {
			if visit(node) {
				return cycle
			}
		}
	}
	return nil
}

// reaches reports whether to is reachable from from over present edges.
func (g *Graph) reaches(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]struct{}{from: {}}
	stack := []string{from}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.Successors(node) {
			if next == to {
				return true
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}

// observeStrength folds a strength observation for edge, creating the
// register on first sight.
func (g *Graph) observeStrength(edge Edge, strength float64, remote *crdt.MaxRegister[float64]) {
	reg, ok := g.strengths[edge]
	if !ok {
		if remote != nil {
			g.strengths[edge] = remote.Clone()
		} else {
			g.strengths[edge] = crdt.NewMaxRegister(strength, time.Now())
		}
		return
	}
	if remote != nil {
		reg.Merge(remote)
	} else {
		reg.Set(strength)
	}
}

func (g *Graph) nextSeq(agentID string) uint64 {
	seq := g.seqs[agentID]
	g.seqs[agentID] = seq + 1
	return seq
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Relation < b.Relation
	})
}
