package memory

import (
	"testing"
)

func TestCausalBufferDeliversInOrderDelta(t *testing.T) {
	engine := NewMergeEngine()
	buffer := NewCausalBuffer(engine)
	local, remote := newReplicaPair(t)

	baseline := remote.Clone()
	remote.SetSummary("first edit", "agentB")
	delta, err := engine.ComputeDelta(remote, baseline, "agentB")
	if err != nil {
		t.Fatal(err)
	}

	applied, err := buffer.Deliver(local, delta)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if got := local.ToRecord().Summary; got != "first edit" {
		t.Errorf("summary = %q", got)
	}
	if buffer.Len() != 0 {
		t.Errorf("pending = %d, want 0", buffer.Len())
	}
}

// A delta that causally depends on one not yet delivered is parked, then
// replayed as soon as the gap closes.
func TestCausalBufferHoldsOutOfOrderDelta(t *testing.T) {
	engine := NewMergeEngine()
	buffer := NewCausalBuffer(engine)
	local, remote := newReplicaPair(t)

	base0 := remote.Clone()
	remote.SetSummary("step one", "agentB")
	delta1, err := engine.ComputeDelta(remote, base0, "agentB")
	if err != nil {
		t.Fatal(err)
	}

	base1 := remote.Clone()
	remote.SetSummary("step two", "agentB")
	delta2, err := engine.ComputeDelta(remote, base1, "agentB")
	if err != nil {
		t.Fatal(err)
	}

	// delta2 arrives first: its clock runs two steps ahead for agentB.
	applied, err := buffer.Deliver(local, delta2)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0 (buffered)", applied)
	}
	if buffer.Len() != 1 {
		t.Fatalf("pending = %d, want 1", buffer.Len())
	}
	if got := local.ToRecord().Summary; got == "step two" {
		t.Fatal("out-of-order delta should not have been applied yet")
	}

	// delta1 closes the gap; the drain replays delta2.
	applied, err = buffer.Deliver(local, delta1)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want 2", applied)
	}
	if buffer.Len() != 0 {
		t.Errorf("pending = %d, want 0", buffer.Len())
	}
	if got := local.ToRecord().Summary; got != "step two" {
		t.Errorf("summary = %q, want the latest edit", got)
	}
	if !local.Clock().Equal(remote.Clock()) {
		t.Error("clocks did not converge")
	}
}

func TestCausalBufferDrainsChains(t *testing.T) {
	engine := NewMergeEngine()
	buffer := NewCausalBuffer(engine)
	local, remote := newReplicaPair(t)

	// Three successive edits, delivered in reverse.
	summaries := []string{"one", "two", "three"}
	deltas := make([]*RecordDelta, 0, len(summaries))
	for _, s := range summaries {
		base := remote.Clone()
		remote.SetSummary(s, "agentB")
		delta, err := engine.ComputeDelta(remote, base, "agentB")
		if err != nil {
			t.Fatal(err)
		}
		deltas = append(deltas, delta)
	}

	for i := len(deltas) - 1; i > 0; i-- {
		if _, err := buffer.Deliver(local, deltas[i]); err != nil {
			t.Fatal(err)
		}
	}
	if buffer.Len() != 2 {
		t.Fatalf("pending = %d, want 2", buffer.Len())
	}

	applied, err := buffer.Deliver(local, deltas[0])
	if err != nil {
		t.Fatal(err)
	}
	if applied != 3 {
		t.Fatalf("applied = %d, want 3 (one direct, two drained)", applied)
	}
	if got := local.ToRecord().Summary; got != "three" {
		t.Errorf("summary = %q, want three", got)
	}
}
