package memory

import (
	"encoding/json"
	"testing"
)

func TestEngineMergeLeavesInputsAlone(t *testing.T) {
	engine := NewMergeEngine()
	a, b := newReplicaPair(t)

	a.SetSummary("from A", "agentA")
	b.AddTag("from-b", "agentB")

	before := a.ToRecord()
	merged, err := engine.Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}

	if !recordsMatch(t, a.ToRecord(), before) {
		t.Error("merge modified its input")
	}
	got := merged.ToRecord()
	if got.Summary != "from A" || len(got.Tags) != 1 {
		t.Errorf("merged record = %+v", got)
	}
}

func TestEngineMergeRejectsDifferentRecords(t *testing.T) {
	engine := NewMergeEngine()
	a := FromRecord(NewRecord("agentA", TypeCore, Content{Kind: "text", Text: "x"}), "agentA")
	b := FromRecord(NewRecord("agentB", TypeCore, Content{Kind: "text", Text: "y"}), "agentB")

	if _, err := engine.Merge(a, b); err == nil {
		t.Fatal("merging unrelated records should fail")
	}
}

func TestEngineDeltaRoundTrip(t *testing.T) {
	engine := NewMergeEngine()
	local, remote := newReplicaPair(t)
	baseline := local.Clone()

	local.SetSummary("keep tests table-driven", "agentA")
	local.AddTag("style", "agentA")
	local.BoostConfidence(0.7, "agentA")
	local.RecordAccess("agentA")

	delta, err := engine.ComputeDelta(local, baseline, "agentA")
	if err != nil {
		t.Fatal(err)
	}
	if delta.IsEmpty() {
		t.Fatal("delta should carry the local edits")
	}

	if err := engine.ApplyDelta(remote, delta); err != nil {
		t.Fatal(err)
	}
	if !recordsMatch(t, local.ToRecord(), remote.ToRecord()) {
		t.Fatal("replicas did not converge")
	}
	if !local.Clock().Equal(remote.Clock()) {
		t.Error("clocks did not converge")
	}

	// Duplicate delivery is a no-op.
	if err := engine.ApplyDelta(remote, delta); err != nil {
		t.Fatal(err)
	}
	if !recordsMatch(t, local.ToRecord(), remote.ToRecord()) {
		t.Error("duplicate delta diverged the replicas")
	}
}

func TestEngineDeltaSkipsUnchangedFields(t *testing.T) {
	engine := NewMergeEngine()
	local, _ := newReplicaPair(t)
	baseline := local.Clone()

	local.SetSummary("only this changed", "agentA")

	delta, err := engine.ComputeDelta(local, baseline, "agentA")
	if err != nil {
		t.Fatal(err)
	}

	for _, fd := range delta.Fields {
		switch fd.Field {
		case FieldSummary, FieldProvenance:
		default:
			t.Errorf("unexpected field %q in delta", fd.Field)
		}
	}
}

func TestEngineNilBaselineShipsFullState(t *testing.T) {
	engine := NewMergeEngine()
	local, _ := newReplicaPair(t)
	local.AddTag("bootstrap", "agentA")

	delta, err := engine.ComputeDelta(local, nil, "agentA")
	if err != nil {
		t.Fatal(err)
	}

	fields := make(map[string]bool, len(delta.Fields))
	for _, fd := range delta.Fields {
		fields[fd.Field] = true
	}
	for _, want := range []string{FieldType, FieldContent, FieldConfidence, FieldAccessCount, FieldTags} {
		if !fields[want] {
			t.Errorf("full-state delta missing field %q", want)
		}
	}
}

func TestEngineValidateFlagsStaleDelta(t *testing.T) {
	engine := NewMergeEngine()
	local, remote := newReplicaPair(t)

	// Local advances; remote produces a delta from its older view.
	local.SetSummary("newer", "agentA")
	local.AddTag("fresh", "agentA")

	staleDelta, err := engine.ComputeDelta(remote, nil, "agentB")
	if err != nil {
		t.Fatal(err)
	}

	stale, err := engine.Validate(local, staleDelta)
	if err != nil {
		t.Fatal(err)
	}
	if !stale {
		t.Error("delta from a dominated clock should be flagged stale")
	}

	// Applying it anyway is harmless.
	before := local.ToRecord()
	if err := engine.ApplyDelta(local, staleDelta); err != nil {
		t.Fatal(err)
	}
	if !recordsMatch(t, local.ToRecord(), before) {
		t.Error("stale delta changed local state")
	}
}

func TestEngineValidateRejectsWrongRecord(t *testing.T) {
	engine := NewMergeEngine()
	local, _ := newReplicaPair(t)
	other := FromRecord(NewRecord("agentB", TypeCore, Content{Kind: "text", Text: "y"}), "agentB")

	delta, err := engine.ComputeDelta(other, nil, "agentB")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Validate(local, delta); err == nil {
		t.Error("delta for another record should fail validation")
	}
	if err := engine.ApplyDelta(local, delta); err == nil {
		t.Error("delta for another record should fail application")
	}
}

func TestEngineApplySkipsUnknownAndMalformedFields(t *testing.T) {
	engine := NewMergeEngine()
	local, remote := newReplicaPair(t)
	local.SetSummary("valid edit", "agentA")

	delta, err := engine.ComputeDelta(local, nil, "agentA")
	if err != nil {
		t.Fatal(err)
	}
	delta.Fields = append(delta.Fields,
		FieldDelta{Field: "embedding"}, // unknown to this version
		FieldDelta{Field: FieldContent, Register: &RegisterDelta{Value: json.RawMessage(`{broken`)}},
	)

	if err := engine.ApplyDelta(remote, delta); err != nil {
		t.Fatal(err)
	}
	got := remote.ToRecord()
	if got.Summary != "valid edit" {
		t.Error("well-formed fields should still apply")
	}
	if got.Content.Text != "prefer table-driven tests" {
		t.Errorf("malformed content delta should be dropped, got %q", got.Content.Text)
	}
}
