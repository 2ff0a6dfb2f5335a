package crdt

import (
	"encoding/json"
	"sort"
)

// VectorClock tracks one logical counter per agent, establishing a causal
// partial order between events on different replicas. Absent agents count
// as zero.
type VectorClock struct {
	counts map[string]uint64
}

// NewVectorClock returns an empty vector clock.
func NewVectorClock() *VectorClock {
	return &VectorClock{counts: make(map[string]uint64)}
}

// Increment records one local event for the given agent.
func (c *VectorClock) Increment(agentID string) {
	if c.counts == nil {
		c.counts = make(map[string]uint64)
	}
	c.counts[agentID]++
}

// Get returns the counter for the given agent, 0 if absent.
func (c *VectorClock) Get(agentID string) uint64 {
	return c.counts[agentID]
}

// Agents returns the agent IDs with a non-zero counter, sorted for
// deterministic iteration.
func (c *VectorClock) Agents() []string {
	agents := make([]string, 0, len(c.counts))
	for agent := range c.counts {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// Merge folds other into c: pointwise max per agent.
func (c *VectorClock) Merge(other *VectorClock) {
	if other == nil {
		return
	}
	if c.counts == nil {
		c.counts = make(map[string]uint64)
	}
	for agent, count := range other.counts {
		if count > c.counts[agent] {
			c.counts[agent] = count
		}
	}
}

// HappensBefore reports whether c causally precedes other: every entry of
// c is <= the corresponding entry of other, and at least one is strictly
// less. A clock never happens before itself.
func (c *VectorClock) HappensBefore(other *VectorClock) bool {
	strictlyLess := false
	for agent, count := range c.counts {
		otherCount := other.Get(agent)
		if count > otherCount {
			return false
		}
		if count < otherCount {
			strictlyLess = true
		}
	}
	for agent, otherCount := range other.counts {
		if otherCount > c.Get(agent) {
			strictlyLess = true
		}
	}
	return strictlyLess
}

// Dominates reports whether c strictly dominates other, i.e. other
// happens before c.
func (c *VectorClock) Dominates(other *VectorClock) bool {
	return other.HappensBefore(c)
}

// ConcurrentWith reports whether neither clock causally precedes the
// other and the clocks differ.
func (c *VectorClock) ConcurrentWith(other *VectorClock) bool {
	return !c.HappensBefore(other) && !other.HappensBefore(c) && !c.Equal(other)
}

// Equal reports whether both clocks assign the same counter to every
// agent, treating absent entries as zero.
func (c *VectorClock) Equal(other *VectorClock) bool {
	if other == nil {
		return len(c.counts) == 0
	}
	for agent, count := range c.counts {
		if other.Get(agent) != count {
			return false
		}
	}
	for agent, count := range other.counts {
		if c.Get(agent) != count {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (c *VectorClock) Clone() *VectorClock {
	clone := NewVectorClock()
	for agent, count := range c.counts {
		clone.counts[agent] = count
	}
	return clone
}

// MarshalJSON encodes the clock as a plain agent→counter object so delta
// value objects stay transport-friendly.
func (c *VectorClock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.counts)
}

// UnmarshalJSON decodes an agent→counter object.
func (c *VectorClock) UnmarshalJSON(data []byte) error {
	counts := make(map[string]uint64)
	if err := json.Unmarshal(data, &counts); err != nil {
		return err
	}
	c.counts = counts
	return nil
}
