package crdt

import "time"

// LWWRegister is a last-writer-wins register. Writes carry a timestamp
// and the writing agent's ID; the entry with the later timestamp wins,
// and exact timestamp ties are broken by the greater agent ID.
//
// The (timestamp, agentID) comparison is a fixed total order. Every
// replica must apply it bit-identically or convergence breaks.
type LWWRegister[T any] struct {
	value     T
	timestamp time.Time
	agentID   string
}

// NewLWWRegister returns a register initialized with one write.
func NewLWWRegister[T any](value T, timestamp time.Time, agentID string) *LWWRegister[T] {
	return &LWWRegister[T]{value: value, timestamp: timestamp, agentID: agentID}
}

// Set applies a write if it wins under the (timestamp, agentID) order.
// Returns whether the write was accepted. Losing writes are dropped,
// which makes replaying an old write a no-op.
func (r *LWWRegister[T]) Set(value T, timestamp time.Time, agentID string) bool {
	if !lwwWins(timestamp, agentID, r.timestamp, r.agentID) {
		return false
	}
	r.value = value
	r.timestamp = timestamp
	r.agentID = agentID
	return true
}

// Get returns the current value.
func (r *LWWRegister[T]) Get() T {
	return r.value
}

// Timestamp returns the winning write's timestamp.
func (r *LWWRegister[T]) Timestamp() time.Time {
	return r.timestamp
}

// AgentID returns the agent that performed the winning write.
func (r *LWWRegister[T]) AgentID() string {
	return r.agentID
}

// Merge keeps whichever side wins under the (timestamp, agentID) order.
func (r *LWWRegister[T]) Merge(other *LWWRegister[T]) {
	if other == nil {
		return
	}
	if lwwWins(other.timestamp, other.agentID, r.timestamp, r.agentID) {
		r.value = other.value
		r.timestamp = other.timestamp
		r.agentID = other.agentID
	}
}

// Clone returns a copy.
func (r *LWWRegister[T]) Clone() *LWWRegister[T] {
	return &LWWRegister[T]{value: r.value, timestamp: r.timestamp, agentID: r.agentID}
}

// lwwWins reports whether write (ts, agent) beats write (curTs, curAgent):
// later timestamp wins, exact ties go to the greater agent ID.
func lwwWins(ts time.Time, agent string, curTs time.Time, curAgent string) bool {
	if ts.After(curTs) {
		return true
	}
	if ts.Equal(curTs) {
		return agent > curAgent
	}
	return false
}
