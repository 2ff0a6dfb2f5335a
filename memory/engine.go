package memory

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/loomhq/loom-go-sdk/crdt"
)

// MergeEngine orchestrates reconciliation between record replicas. It
// holds no state of its own: every method is a pure function over the
// CRDTs it is handed, so one engine can serve any number of records and
// goroutines.
type MergeEngine struct{}

// NewMergeEngine returns a merge engine.
func NewMergeEngine() *MergeEngine {
	return &MergeEngine{}
}

// Validate checks that a delta is structurally applicable to local and
// reports whether it is stale, meaning local state already dominates the
// sender's clock. Stale deltas are flagged, not rejected: applying one is
// a harmless no-op thanks to idempotency, but the caller may want to skip
// the work.
func (e *MergeEngine) Validate(local *CRDT, delta *RecordDelta) (stale bool, err error) {
	if local == nil || delta == nil {
		return false, fmt.Errorf("memory: validate requires both a local record and a delta")
	}
	if delta.MemoryID != local.id {
		return false, fmt.Errorf("memory: delta for %q offered to record %q", delta.MemoryID, local.id)
	}
	if local.clock.Dominates(delta.Clock) {
		log.Printf("[MERGE] stale delta for %s from %s: local state already dominates", delta.MemoryID, delta.SourceAgent)
		return true, nil
	}
	return false, nil
}

// Merge reconciles two replicas of the same record into a fresh CRDT,
// leaving both inputs untouched.
func (e *MergeEngine) Merge(local, remote *CRDT) (*CRDT, error) {
	if local == nil {
		return nil, fmt.Errorf("memory: merge requires a local record")
	}
	merged := local.Clone()
	if err := merged.Merge(remote); err != nil {
		return nil, fmt.Errorf("merging record %s: %w", local.id, err)
	}
	return merged, nil
}

// ComputeDelta returns what local knows that baseline does not. A nil
// baseline yields the full state, suitable for bootstrapping a replica
// that has never seen the record.
func (e *MergeEngine) ComputeDelta(local, baseline *CRDT, sendingAgent string) (*RecordDelta, error) {
	if local == nil {
		return nil, fmt.Errorf("memory: compute delta requires a local record")
	}
	if baseline != nil && baseline.id != local.id {
		return nil, fmt.Errorf("memory: baseline %q does not match record %q", baseline.id, local.id)
	}

	delta := &RecordDelta{
		MemoryID:    local.id,
		SourceAgent: sendingAgent,
		Clock:       local.clock.Clone(),
	}

	appendField := func(fd *FieldDelta) {
		if fd != nil {
			delta.Fields = append(delta.Fields, *fd)
		}
	}

	base := baseline

	appendField(lwwFieldDelta(FieldType, local.memoryType, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[string] { return b.memoryType })))
	appendField(lwwFieldDelta(FieldContent, local.content, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[string] { return b.content })))
	appendField(lwwFieldDelta(FieldSummary, local.summary, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[string] { return b.summary })))
	appendField(lwwFieldDelta(FieldValidFrom, local.validFrom, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[time.Time] { return b.validFrom })))
	appendField(lwwFieldDelta(FieldValidUntil, local.validUntil, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[time.Time] { return b.validUntil })))
	appendField(lwwFieldDelta(FieldImportance, local.importance, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[string] { return b.importance })))
	appendField(lwwFieldDelta(FieldArchived, local.archived, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[bool] { return b.archived })))
	appendField(lwwFieldDelta(FieldSupersededBy, local.supersededBy, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[string] { return b.supersededBy })))
	appendField(lwwFieldDelta(FieldNamespace, local.namespace, lwwBase(base, func(b *CRDT) *crdt.LWWRegister[string] { return b.namespace })))

	appendField(maxFieldDelta(FieldConfidence, local.confidence, maxBase(base, func(b *CRDT) *crdt.MaxRegister[float64] { return b.confidence })))
	appendField(maxFieldDelta(FieldLastAccessed, local.lastAccessed, maxBase(base, func(b *CRDT) *crdt.MaxRegister[int64] { return b.lastAccessed })))

	var baseCount *crdt.GCounter
	if base != nil {
		baseCount = base.accessCount
	}
	if cd := local.accessCount.DeltaSince(baseCount); len(cd.Counts) > 0 {
		appendField(&FieldDelta{Field: FieldAccessCount, Counter: cd})
	}

	appendField(setFieldDelta(FieldTags, local.tags, setBase(base, func(b *CRDT) *crdt.ORSet[string] { return b.tags })))
	appendField(setFieldDelta(FieldSupersedes, local.supersedes, setBase(base, func(b *CRDT) *crdt.ORSet[string] { return b.supersedes })))
	for _, kind := range linkKinds {
		k := kind
		appendField(setFieldDelta(LinkField(kind), local.links[kind], setBase(base, func(b *CRDT) *crdt.ORSet[string] { return b.links[k] })))
	}

	if hops := newHops(local.provenance, base); len(hops) > 0 {
		appendField(&FieldDelta{Field: FieldProvenance, Hops: hops})
	}

	return delta, nil
}

// ApplyDelta folds a delta into local. Fields that cannot be decoded or
// are unknown to this version are logged and skipped rather than failing
// the whole delta; the vector clock is merged last so the record's causal
// position reflects everything that was applied.
func (e *MergeEngine) ApplyDelta(local *CRDT, delta *RecordDelta) error {
	if local == nil || delta == nil {
		return fmt.Errorf("memory: apply requires both a local record and a delta")
	}
	if delta.MemoryID != local.id {
		return fmt.Errorf("memory: delta for %q offered to record %q", delta.MemoryID, local.id)
	}

	for _, fd := range delta.Fields {
		switch fd.Field {
		case FieldType, FieldContent, FieldSummary, FieldImportance, FieldSupersededBy, FieldNamespace:
			applyLWW(local.stringRegister(fd.Field), fd)
		case FieldValidFrom:
			applyLWW(local.validFrom, fd)
		case FieldValidUntil:
			applyLWW(local.validUntil, fd)
		case FieldArchived:
			applyLWW(local.archived, fd)
		case FieldConfidence:
			applyMax(local.confidence, fd)
		case FieldLastAccessed:
			applyMax(local.lastAccessed, fd)
		case FieldAccessCount:
			local.accessCount.ApplyDelta(fd.Counter)
		case FieldProvenance:
			for _, hop := range fd.Hops {
				local.addHop(hop)
			}
		default:
			set := local.setForField(fd.Field)
			if set == nil {
				log.Printf("[MERGE] skipping unknown field %q in delta for %s", fd.Field, delta.MemoryID)
				continue
			}
			set.ApplyDelta(fd.Set)
			local.observeTags(fd.Set)
		}
	}

	local.clock.Merge(delta.Clock)
	return nil
}

// stringRegister maps a delta field name to its string LWW register.
func (m *CRDT) stringRegister(field string) *crdt.LWWRegister[string] {
	switch field {
	case FieldType:
		return m.memoryType
	case FieldContent:
		return m.content
	case FieldSummary:
		return m.summary
	case FieldImportance:
		return m.importance
	case FieldSupersededBy:
		return m.supersededBy
	case FieldNamespace:
		return m.namespace
	}
	return nil
}

// setForField maps a delta field name to its OR-set, nil if the field is
// not a known set.
func (m *CRDT) setForField(field string) *crdt.ORSet[string] {
	switch field {
	case FieldTags:
		return m.tags
	case FieldSupersedes:
		return m.supersedes
	}
	if kind, ok := linkKindOf(field); ok {
		return m.links[kind]
	}
	return nil
}

// observeTags advances per-agent sequence counters past any remotely
// minted tags, so later local adds cannot reuse a seq.
func (m *CRDT) observeTags(delta *crdt.ORSetDelta[string]) {
	if delta == nil {
		return
	}
	for _, add := range delta.Adds {
		if add.Tag.Seq+1 > m.seqs[add.Tag.AgentID] {
			m.seqs[add.Tag.AgentID] = add.Tag.Seq + 1
		}
	}
}

func lwwBase[T any](base *CRDT, pick func(*CRDT) *crdt.LWWRegister[T]) *crdt.LWWRegister[T] {
	if base == nil {
		return nil
	}
	return pick(base)
}

func maxBase[T interface{ float64 | int64 }](base *CRDT, pick func(*CRDT) *crdt.MaxRegister[T]) *crdt.MaxRegister[T] {
	if base == nil {
		return nil
	}
	return pick(base)
}

func setBase(base *CRDT, pick func(*CRDT) *crdt.ORSet[string]) *crdt.ORSet[string] {
	if base == nil {
		return nil
	}
	return pick(base)
}

// lwwFieldDelta ships the register's winning write unless the baseline
// already holds the same winner.
func lwwFieldDelta[T any](field string, reg, base *crdt.LWWRegister[T]) *FieldDelta {
	if base != nil && reg.Timestamp().Equal(base.Timestamp()) && reg.AgentID() == base.AgentID() {
		return nil
	}
	raw, err := json.Marshal(reg.Get())
	if err != nil {
		log.Printf("[MERGE] cannot encode field %q, omitting from delta: %v", field, err)
		return nil
	}
	return &FieldDelta{Field: field, Register: &RegisterDelta{
		Value:     raw,
		Timestamp: reg.Timestamp(),
		AgentID:   reg.AgentID(),
	}}
}

func maxFieldDelta[T interface{ float64 | int64 }](field string, reg, base *crdt.MaxRegister[T]) *FieldDelta {
	if base != nil && reg.Equal(base) {
		return nil
	}
	raw, err := json.Marshal(reg.Get())
	if err != nil {
		log.Printf("[MERGE] cannot encode field %q, omitting from delta: %v", field, err)
		return nil
	}
	return &FieldDelta{Field: field, Max: &MaxDelta{Value: raw, Timestamp: reg.Timestamp()}}
}

func setFieldDelta(field string, set, base *crdt.ORSet[string]) *FieldDelta {
	sd := set.DeltaSince(base)
	if len(sd.Adds) == 0 && len(sd.Tombstones) == 0 {
		return nil
	}
	return &FieldDelta{Field: field, Set: sd}
}

// newHops returns the provenance hops present locally but absent from the
// baseline.
func newHops(hops []ProvenanceHop, base *CRDT) []ProvenanceHop {
	if base == nil {
		out := make([]ProvenanceHop, len(hops))
		copy(out, hops)
		return out
	}
	var out []ProvenanceHop
	for _, hop := range hops {
		known := false
		for _, existing := range base.provenance {
			if existing.AgentID == hop.AgentID &&
				existing.Timestamp.Equal(hop.Timestamp) &&
				existing.Action == hop.Action {
				known = true
				break
			}
		}
		if !known {
			out = append(out, hop)
		}
	}
	return out
}

// applyLWW decodes and offers one register write; losing or undecodable
// writes are dropped.
func applyLWW[T any](reg *crdt.LWWRegister[T], fd FieldDelta) {
	if reg == nil || fd.Register == nil {
		log.Printf("[MERGE] malformed register delta for field %q, skipping", fd.Field)
		return
	}
	var value T
	if err := json.Unmarshal(fd.Register.Value, &value); err != nil {
		log.Printf("[MERGE] undecodable value for field %q, skipping: %v", fd.Field, err)
		return
	}
	reg.Set(value, fd.Register.Timestamp, fd.Register.AgentID)
}

func applyMax[T interface{ float64 | int64 }](reg *crdt.MaxRegister[T], fd FieldDelta) {
	if fd.Max == nil {
		log.Printf("[MERGE] malformed max delta for field %q, skipping", fd.Field)
		return
	}
	var value T
	if err := json.Unmarshal(fd.Max.Value, &value); err != nil {
		log.Printf("[MERGE] undecodable value for field %q, skipping: %v", fd.Field, err)
		return
	}
	reg.Merge(crdt.NewMaxRegister(value, fd.Max.Timestamp))
}
