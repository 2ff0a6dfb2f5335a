package crdt

import (
	"cmp"
	"time"
)

// MaxRegister holds a value that only moves upward. Set ignores anything
// not strictly greater than the current value, so concurrent boosts from
// different agents converge on the largest one.
//
// The timestamp records when the winning value was written. It is
// cosmetic: merges are decided by value, with the later timestamp kept
// only on exact value ties.
type MaxRegister[T cmp.Ordered] struct {
	value     T
	timestamp time.Time
}

// NewMaxRegister returns a register holding the given value.
func NewMaxRegister[T cmp.Ordered](value T, timestamp time.Time) *MaxRegister[T] {
	return &MaxRegister[T]{value: value, timestamp: timestamp}
}

// Set updates the register if value is strictly greater than the current
// value. Returns whether the write was accepted.
func (r *MaxRegister[T]) Set(value T) bool {
	if value > r.value {
		r.value = value
		r.timestamp = time.Now()
		return true
	}
	return false
}

// Get returns the current value.
func (r *MaxRegister[T]) Get() T {
	return r.value
}

// Timestamp returns when the current value was written.
func (r *MaxRegister[T]) Timestamp() time.Time {
	return r.timestamp
}

// Merge keeps the greater value; equal values keep the later timestamp.
func (r *MaxRegister[T]) Merge(other *MaxRegister[T]) {
	if other == nil {
		return
	}
	switch {
	case other.value > r.value:
		r.value = other.value
		r.timestamp = other.timestamp
	case other.value == r.value && other.timestamp.After(r.timestamp):
		r.timestamp = other.timestamp
	}
}

// Equal reports whether both registers hold the same value and timestamp.
func (r *MaxRegister[T]) Equal(other *MaxRegister[T]) bool {
	return other != nil && r.value == other.value && r.timestamp.Equal(other.timestamp)
}

// Clone returns a copy.
func (r *MaxRegister[T]) Clone() *MaxRegister[T] {
	return &MaxRegister[T]{value: r.value, timestamp: r.timestamp}
}
