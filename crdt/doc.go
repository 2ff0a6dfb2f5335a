// Package crdt provides the conflict-free replicated data types that give
// multi-agent memory its convergence guarantees.
//
// Every type in this package is a pure value: local mutation, read, and
// Merge, with no I/O and no internal locking. Callers serialize local
// access (one writer per in-process actor); merging remote state is a
// synchronous computation that may run in any order, any number of times.
//
// Merge laws (hold for every type here, and verified by the test suite):
//   - Commutative: Merge(a, b) == Merge(b, a)
//   - Associative: Merge(a, Merge(b, c)) == Merge(Merge(a, b), c)
//   - Idempotent:  Merge(a, a) == a
//
// Primitives:
//   - VectorClock: per-agent logical counters, causal partial order
//   - GCounter: grow-only counter, per-agent max on merge (never sum)
//   - MaxRegister: monotonically increasing value
//   - LWWRegister: last-writer-wins with a fixed total order on ties
//   - MVRegister: keeps all concurrent writes for the caller to resolve
//   - ORSet: observed-remove set with add-wins semantics
//
// Types that support delta sync (GCounter, ORSet) expose DeltaSince and
// ApplyDelta so replicas can exchange only what the other side lacks.
package crdt
