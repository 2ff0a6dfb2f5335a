package crdt

// MVRegister is a multi-value register. Concurrent writes (neither
// causally preceding the other) are all preserved; the register never
// guesses a winner. A later write whose clock dominates every held entry
// collapses the set back to one value.
//
// Resolution policy belongs to the caller: inspect IsConflicted, pick a
// value, and call Resolve.
type MVRegister[T comparable] struct {
	entries []mvEntry[T]
}

type mvEntry[T comparable] struct {
	value T
	clock *VectorClock
}

// NewMVRegister returns an empty register.
func NewMVRegister[T comparable]() *MVRegister[T] {
	return &MVRegister[T]{}
}

// Set writes a value with its causal context. Entries dominated by the
// new clock are pruned; concurrent entries stay alongside the new value.
func (r *MVRegister[T]) Set(value T, clock *VectorClock) {
	kept := r.entries[:0]
	for _, entry := range r.entries {
		if !clock.Dominates(entry.clock) {
			kept = append(kept, entry)
		}
	}
	r.entries = append(kept, mvEntry[T]{value: value, clock: clock.Clone()})
}

// Get returns all concurrently-held values.
func (r *MVRegister[T]) Get() []T {
	values := make([]T, 0, len(r.entries))
	for _, entry := range r.entries {
		values = append(values, entry.value)
	}
	return values
}

// IsConflicted reports whether more than one concurrent value is held.
func (r *MVRegister[T]) IsConflicted() bool {
	return len(r.entries) > 1
}

// IsEmpty reports whether the register holds no value.
func (r *MVRegister[T]) IsEmpty() bool {
	return len(r.entries) == 0
}

// Resolve collapses the register to a single value under a clock that
// dominates every held entry. This is an explicit caller action, not a
// "pick the first" default.
func (r *MVRegister[T]) Resolve(value T) {
	merged := NewVectorClock()
	for _, entry := range r.entries {
		merged.Merge(entry.clock)
	}
	r.entries = []mvEntry[T]{{value: value, clock: merged}}
}

// Merge unions both registers, keeping every entry not dominated by some
// other entry and dropping exact duplicates.
func (r *MVRegister[T]) Merge(other *MVRegister[T]) {
	if other == nil {
		return
	}
	all := make([]mvEntry[T], 0, len(r.entries)+len(other.entries))
	all = append(all, r.entries...)
	all = append(all, other.entries...)

	merged := make([]mvEntry[T], 0, len(all))
	for i, entry := range all {
		dominated := false
		for j, otherEntry := range all {
			if i != j && otherEntry.clock.Dominates(entry.clock) {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}
		duplicate := false
		for _, kept := range merged {
			if kept.value == entry.value && kept.clock.Equal(entry.clock) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, mvEntry[T]{value: entry.value, clock: entry.clock.Clone()})
		}
	}
	r.entries = merged
}

// Equal reports whether both registers hold the same entries, ignoring
// order.
func (r *MVRegister[T]) Equal(other *MVRegister[T]) bool {
	if other == nil {
		return len(r.entries) == 0
	}
	if len(r.entries) != len(other.entries) {
		return false
	}
	contains := func(entries []mvEntry[T], target mvEntry[T]) bool {
		for _, entry := range entries {
			if entry.value == target.value && entry.clock.Equal(target.clock) {
				return true
			}
		}
		return false
	}
	for _, entry := range r.entries {
		if !contains(other.entries, entry) {
			return false
		}
	}
	for _, entry := range other.entries {
		if !contains(r.entries, entry) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (r *MVRegister[T]) Clone() *MVRegister[T] {
	clone := NewMVRegister[T]()
	for _, entry := range r.entries {
		clone.entries = append(clone.entries, mvEntry[T]{value: entry.value, clock: entry.clock.Clone()})
	}
	return clone
}
