package crdt

// GCounter is a grow-only counter. Each agent increments its own slot;
// the observed value is the sum across agents.
//
// Merge takes the per-agent maximum, never the sum: summing would
// double-count when the same state is delivered twice and break
// idempotency.
type GCounter struct {
	counts map[string]uint64
}

// GCounterDelta carries the per-agent counts a remote replica is missing.
type GCounterDelta struct {
	Counts map[string]uint64 `json:"counts"`
}

// NewGCounter returns a counter at zero.
func NewGCounter() *GCounter {
	return &GCounter{counts: make(map[string]uint64)}
}

// Increment adds one to the given agent's slot.
func (g *GCounter) Increment(agentID string) {
	if g.counts == nil {
		g.counts = make(map[string]uint64)
	}
	g.counts[agentID]++
}

// Value returns the total across all agents.
func (g *GCounter) Value() uint64 {
	var total uint64
	for _, count := range g.counts {
		total += count
	}
	return total
}

// AgentValue returns the count contributed by one agent, 0 if absent.
func (g *GCounter) AgentValue(agentID string) uint64 {
	return g.counts[agentID]
}

// Merge folds other into g: pointwise max per agent.
func (g *GCounter) Merge(other *GCounter) {
	if other == nil {
		return
	}
	if g.counts == nil {
		g.counts = make(map[string]uint64)
	}
	for agent, count := range other.counts {
		if count > g.counts[agent] {
			g.counts[agent] = count
		}
	}
}

// DeltaSince returns the slots where g is ahead of other. Applying the
// delta to other (any number of times) brings it level with g.
func (g *GCounter) DeltaSince(other *GCounter) *GCounterDelta {
	delta := &GCounterDelta{Counts: make(map[string]uint64)}
	for agent, count := range g.counts {
		var otherCount uint64
		if other != nil {
			otherCount = other.counts[agent]
		}
		if count > otherCount {
			delta.Counts[agent] = count
		}
	}
	return delta
}

// ApplyDelta folds a delta in via pointwise max, so duplicate delivery is
// harmless.
func (g *GCounter) ApplyDelta(delta *GCounterDelta) {
	if delta == nil {
		return
	}
	if g.counts == nil {
		g.counts = make(map[string]uint64)
	}
	for agent, count := range delta.Counts {
		if count > g.counts[agent] {
			g.counts[agent] = count
		}
	}
}

// Equal reports whether both counters hold identical per-agent slots.
func (g *GCounter) Equal(other *GCounter) bool {
	if other == nil {
		return len(g.counts) == 0
	}
	for agent, count := range g.counts {
		if other.counts[agent] != count {
			return false
		}
	}
	for agent, count := range other.counts {
		if g.counts[agent] != count {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (g *GCounter) Clone() *GCounter {
	clone := NewGCounter()
	for agent, count := range g.counts {
		clone.counts[agent] = count
	}
	return clone
}
