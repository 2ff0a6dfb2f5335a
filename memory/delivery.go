package memory

import (
	"fmt"
	"log"
)

// CausalBuffer holds deltas that arrived ahead of their causal
// predecessors and replays them once the gap closes. Use one buffer per
// record replica; it is not safe for concurrent use.
//
// Buffering is an optimization for keeping intermediate states causally
// consistent, not a correctness requirement: the underlying merges are
// commutative, so even out-of-order application converges eventually.
type CausalBuffer struct {
	engine  *MergeEngine
	pending []*RecordDelta
}

// NewCausalBuffer returns an empty buffer delivering through engine.
func NewCausalBuffer(engine *MergeEngine) *CausalBuffer {
	return &CausalBuffer{engine: engine}
}

// CanApply reports whether a delta is causally ready for local: no
// agent's entry in the delta clock runs more than one step ahead of the
// local clock. A gap means some predecessor delta has not arrived yet.
func (b *CausalBuffer) CanApply(local *CRDT, delta *RecordDelta) bool {
	if delta == nil || delta.Clock == nil {
		return true
	}
	for _, agent := range delta.Clock.Agents() {
		if delta.Clock.Get(agent) > local.clock.Get(agent)+1 {
			return false
		}
	}
	return true
}

// Deliver applies delta if it is causally ready, otherwise parks it, then
// drains any previously parked deltas the application may have unblocked.
// It returns how many deltas were applied in total.
func (b *CausalBuffer) Deliver(local *CRDT, delta *RecordDelta) (int, error) {
	if local == nil || delta == nil {
		return 0, fmt.Errorf("memory: deliver requires both a local record and a delta")
	}
	if _, err := b.engine.Validate(local, delta); err != nil {
		return 0, err
	}

	if !b.CanApply(local, delta) {
		log.Printf("[MERGE] buffering out-of-order delta for %s from %s (%d pending)", delta.MemoryID, delta.SourceAgent, len(b.pending)+1)
		b.pending = append(b.pending, delta)
		return 0, nil
	}

	if err := b.engine.ApplyDelta(local, delta); err != nil {
		return 0, err
	}
	drained, err := b.Drain(local)
	return drained + 1, err
}

// Drain repeatedly applies any pending delta that has become causally
// ready, until a full pass makes no progress. It returns how many deltas
// were applied.
func (b *CausalBuffer) Drain(local *CRDT) (int, error) {
	applied := 0
	for {
		progress := false
		remaining := b.pending[:0]
		for i, delta := range b.pending {
			if !b.CanApply(local, delta) {
				remaining = append(remaining, delta)
				continue
			}
			if err := b.engine.ApplyDelta(local, delta); err != nil {
				b.pending = append(remaining, b.pending[i:]...)
				return applied, err
			}
			applied++
			progress = true
		}
		b.pending = remaining
		if !progress {
			return applied, nil
		}
	}
}

// Len returns the number of deltas still waiting on predecessors.
func (b *CausalBuffer) Len() int {
	return len(b.pending)
}
