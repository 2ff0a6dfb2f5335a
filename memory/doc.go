// Package memory wraps a single memory record in per-field CRDTs so that
// independent agents can mutate the same record concurrently, without
// coordination, and later reconcile divergent replicas into one state.
//
// Architecture:
//   - Record: the plain domain record agents read and write
//   - CRDT: one instance per record ID; every mutable field wrapped in
//     the primitive matching its semantics (LWW, max, counter, OR-set)
//   - MergeEngine: stateless orchestrator producing and consuming
//     per-field deltas for bandwidth-efficient sync
//   - CausalBuffer: holds out-of-order deltas until their causal
//     predecessors have been applied
//
// Field-to-CRDT mapping:
//   - type, content, summary, valid window, importance, archived,
//     superseded-by, namespace: last-writer-wins registers
//   - confidence, last-access: max registers (only increases propagate)
//   - access count: grow-only counter (per-agent slots)
//   - tags, links, supersedes: observed-remove sets (add wins)
//   - provenance: append-only, deduplicated, time-sorted
//   - an embedded vector clock tracks the record's causal position
//
// Because every sub-merge is commutative, associative, and idempotent,
// and fields never interact during merge, whole-record merge inherits
// the same three properties.
//
// Out of scope, handled by collaborators: persisting CRDT state, moving
// deltas over the network, and deciding what content goes in a record.
package memory
