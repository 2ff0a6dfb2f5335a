// Package causalgraph maintains a replicated directed acyclic graph of
// causal relations between memory records. Edges live in an
// observed-remove set and carry a strength that only grows, so
// independent agents can link records concurrently and still converge.
//
// Acyclicity is enforced twice: locally, AddEdge rejects an edge that
// would close a cycle through state already visible on this replica;
// after a merge, cycles formed by edges added concurrently on different
// replicas are repaired by deterministically dropping the weakest edge
// of each cycle, so every replica repairs identically and convergence
// survives.
package causalgraph
