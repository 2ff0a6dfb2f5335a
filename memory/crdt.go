package memory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/loomhq/loom-go-sdk/crdt"
)

// ErrIdentityMismatch is returned when merging two CRDT instances that do
// not describe the same record. Merge assumes equality on the immutable
// identity fields (ID, creation time, origin agent) and refuses to
// proceed without it.
var ErrIdentityMismatch = errors.New("memory: crdt instances describe different records")

// CRDT wraps one record's mutable fields, each in the primitive matching
// its semantics. One instance exists per record ID per replica. Local
// operations must be serialized by the caller (one writer per in-process
// actor); Merge is a pure computation safe to run in any order, any
// number of times.
//
// A CRDT is never deleted outright: archival is itself an LWW field, not
// a removal, because the history must survive for future merges.
type CRDT struct {
	// Immutable identity, set once at creation.
	id          string
	createdAt   time.Time
	sourceAgent string

	memoryType   *crdt.LWWRegister[string]
	content      *crdt.LWWRegister[string]
	summary      *crdt.LWWRegister[string]
	validFrom    *crdt.LWWRegister[time.Time]
	validUntil   *crdt.LWWRegister[time.Time]
	importance   *crdt.LWWRegister[string]
	archived     *crdt.LWWRegister[bool]
	supersededBy *crdt.LWWRegister[string]
	namespace    *crdt.LWWRegister[string]

	confidence   *crdt.MaxRegister[float64]
	lastAccessed *crdt.MaxRegister[int64] // unix nanoseconds

	accessCount *crdt.GCounter

	tags       *crdt.ORSet[string]
	supersedes *crdt.ORSet[string]
	links      map[LinkKind]*crdt.ORSet[string]

	// Append-only, deduplicated by agent+timestamp+action, time-sorted.
	provenance []ProvenanceHop

	clock *crdt.VectorClock

	// Next OR-set sequence number per agent, so local adds cannot
	// violate the monotonic-seq contract.
	seqs map[string]uint64
}

// FromRecord wraps an existing record in CRDT state on behalf of agentID.
//
// Structured fields (content, type, importance) are serialized to strings
// so they fit the register vocabulary. One OR-set tag is created per
// existing link/tag item, seeded with seq = item index. The access count
// starts at 1 for the wrapping agent: the record's snapshot count is not
// attributable per-agent, and copying it into every agent's slot would
// multiply the total on merge.
func FromRecord(rec *Record, agentID string) *CRDT {
	now := time.Now()

	m := &CRDT{
		id:          rec.ID,
		createdAt:   rec.CreatedAt,
		sourceAgent: rec.SourceAgent,

		memoryType:   crdt.NewLWWRegister(string(rec.Type), now, agentID),
		content:      crdt.NewLWWRegister(marshalContent(rec.Content), now, agentID),
		summary:      crdt.NewLWWRegister(rec.Summary, now, agentID),
		validFrom:    crdt.NewLWWRegister(rec.ValidFrom, now, agentID),
		validUntil:   crdt.NewLWWRegister(rec.ValidUntil, now, agentID),
		importance:   crdt.NewLWWRegister(string(rec.Importance), now, agentID),
		archived:     crdt.NewLWWRegister(rec.Archived, now, agentID),
		supersededBy: crdt.NewLWWRegister(rec.SupersededBy, now, agentID),
		namespace:    crdt.NewLWWRegister(rec.Namespace, now, agentID),

		confidence:   crdt.NewMaxRegister(rec.Confidence, now),
		lastAccessed: crdt.NewMaxRegister(rec.LastAccessed.UnixNano(), now),

		accessCount: crdt.NewGCounter(),

		tags:       crdt.NewORSet[string](),
		supersedes: crdt.NewORSet[string](),
		links:      make(map[LinkKind]*crdt.ORSet[string], len(linkKinds)),

		clock: crdt.NewVectorClock(),
		seqs:  make(map[string]uint64),
	}

	m.accessCount.Increment(agentID)

	var maxSeeded uint64
	seed := func(set *crdt.ORSet[string], items []string) {
		for i, item := range items {
			set.Add(item, agentID, uint64(i))
		}
		if n := uint64(len(items)); n > maxSeeded {
			maxSeeded = n
		}
	}

	seed(m.tags, rec.Tags)
	seed(m.supersedes, rec.Supersedes)
	for _, kind := range linkKinds {
		set := crdt.NewORSet[string]()
		seed(set, rec.Links[kind])
		m.links[kind] = set
	}
	m.seqs[agentID] = maxSeeded

	m.clock.Increment(agentID)
	return m
}

// ID returns the wrapped record's identifier.
func (m *CRDT) ID() string {
	return m.id
}

// CreatedAt returns the record's immutable creation time.
func (m *CRDT) CreatedAt() time.Time {
	return m.createdAt
}

// SourceAgent returns the agent that created the record.
func (m *CRDT) SourceAgent() string {
	return m.sourceAgent
}

// Clock returns a copy of the record's causal position.
func (m *CRDT) Clock() *crdt.VectorClock {
	return m.clock.Clone()
}

// Provenance returns a copy of the provenance chain, time-sorted.
func (m *CRDT) Provenance() []ProvenanceHop {
	hops := make([]ProvenanceHop, len(m.provenance))
	copy(hops, m.provenance)
	return hops
}

// ToRecord materializes current CRDT state into a plain record.
//
// Serialized fields degrade to safe defaults rather than failing on
// malformed data. The content hash is recomputed from the materialized
// content; it is always derived, never merged.
func (m *CRDT) ToRecord() *Record {
	content := unmarshalContent(m.content.Get())

	tags := m.tags.Elements()
	sort.Strings(tags)
	supersedes := m.supersedes.Elements()
	sort.Strings(supersedes)

	links := make(map[LinkKind][]string, len(linkKinds))
	for _, kind := range linkKinds {
		targets := m.links[kind].Elements()
		if len(targets) == 0 {
			continue
		}
		sort.Strings(targets)
		links[kind] = targets
	}

	return &Record{
		ID:           m.id,
		Type:         ParseMemoryType(m.memoryType.Get()),
		Content:      content,
		Summary:      m.summary.Get(),
		CreatedAt:    m.createdAt,
		ValidFrom:    m.validFrom.Get(),
		ValidUntil:   m.validUntil.Get(),
		Confidence:   m.confidence.Get(),
		Importance:   ParseImportance(m.importance.Get()),
		LastAccessed: time.Unix(0, m.lastAccessed.Get()),
		AccessCount:  m.accessCount.Value(),
		Links:        links,
		Tags:         tags,
		Archived:     m.archived.Get(),
		SupersededBy: m.supersededBy.Get(),
		Supersedes:   supersedes,
		Namespace:    m.namespace.Get(),
		SourceAgent:  m.sourceAgent,
		ContentHash:  HashContent(content),
	}
}

// === Local operations ===
//
// Each local operation bumps the field's primitive and the vector clock,
// and appends a provenance hop where the action is meaningful history.

// SetContent replaces the typed content.
func (m *CRDT) SetContent(content Content, agentID string) {
	m.content.Set(marshalContent(content), time.Now(), agentID)
	m.bump(agentID, "content_updated")
}

// SetSummary replaces the summary.
func (m *CRDT) SetSummary(summary string, agentID string) {
	m.summary.Set(summary, time.Now(), agentID)
	m.bump(agentID, "summary_updated")
}

// SetType reclassifies the record.
func (m *CRDT) SetType(memType MemoryType, agentID string) {
	m.memoryType.Set(string(memType), time.Now(), agentID)
	m.bump(agentID, "type_changed")
}

// SetImportance reclassifies the record's importance.
func (m *CRDT) SetImportance(importance Importance, agentID string) {
	m.importance.Set(string(importance), time.Now(), agentID)
	m.bump(agentID, "importance_changed")
}

// SetNamespace moves the record to another namespace.
func (m *CRDT) SetNamespace(namespace string, agentID string) {
	m.namespace.Set(namespace, time.Now(), agentID)
	m.bump(agentID, "namespace_changed")
}

// SetValidWindow corrects the record's validity window. A zero until
// means no expiry.
func (m *CRDT) SetValidWindow(from, until time.Time, agentID string) {
	now := time.Now()
	m.validFrom.Set(from, now, agentID)
	m.validUntil.Set(until, now, agentID)
	m.bump(agentID, "validity_changed")
}

// Archive marks the record archived. The CRDT itself survives; archival
// is a field, not a deletion.
func (m *CRDT) Archive(agentID string) {
	m.archived.Set(true, time.Now(), agentID)
	m.bump(agentID, "archived")
}

// Restore clears the archived flag.
func (m *CRDT) Restore(agentID string) {
	m.archived.Set(false, time.Now(), agentID)
	m.bump(agentID, "restored")
}

// SetSupersededBy points the record at its replacement.
func (m *CRDT) SetSupersededBy(recordID string, agentID string) {
	m.supersededBy.Set(recordID, time.Now(), agentID)
	m.bump(agentID, "superseded")
}

// AddSupersedes records that this record replaces another.
func (m *CRDT) AddSupersedes(recordID string, agentID string) {
	m.supersedes.Add(recordID, agentID, m.nextSeq(agentID))
	m.bump(agentID, "supersedes_added")
}

// AddTag adds a free-form tag.
func (m *CRDT) AddTag(tag string, agentID string) {
	m.tags.Add(tag, agentID, m.nextSeq(agentID))
	m.bump(agentID, "tag_added")
}

// RemoveTag removes a tag as observed on this replica. A concurrent add
// elsewhere survives the remove (add wins).
func (m *CRDT) RemoveTag(tag string, agentID string) {
	m.tags.Remove(tag)
	m.bump(agentID, "tag_removed")
}

// AddLink links the record to an external target of the given kind.
func (m *CRDT) AddLink(kind LinkKind, target string, agentID string) error {
	set, ok := m.links[kind]
	if !ok {
		return fmt.Errorf("memory: unknown link kind %q", kind)
	}
	set.Add(target, agentID, m.nextSeq(agentID))
	m.bump(agentID, "link_added")
	return nil
}

// RemoveLink unlinks a target as observed on this replica.
func (m *CRDT) RemoveLink(kind LinkKind, target string, agentID string) error {
	set, ok := m.links[kind]
	if !ok {
		return fmt.Errorf("memory: unknown link kind %q", kind)
	}
	set.Remove(target)
	m.bump(agentID, "link_removed")
	return nil
}

// BoostConfidence raises the record's confidence. Lower values are
// ignored; only boosts propagate between agents.
func (m *CRDT) BoostConfidence(confidence float64, agentID string) {
	if confidence > 1.0 {
		confidence = 1.0
	}
	if m.confidence.Set(confidence) {
		m.bump(agentID, "confidence_boosted")
	}
}

// RecordAccess counts one access by agentID and advances the last-access
// time. Accesses are frequent and carry no history, so no provenance hop
// is written.
func (m *CRDT) RecordAccess(agentID string) {
	m.accessCount.Increment(agentID)
	m.lastAccessed.Set(time.Now().UnixNano())
	m.clock.Increment(agentID)
}

// Merge folds another replica's state into this one, field by field.
// Both operands must describe the same record; otherwise
// ErrIdentityMismatch is returned and nothing is modified.
func (m *CRDT) Merge(other *CRDT) error {
	if other == nil {
		return nil
	}
	if m.id != other.id || !m.createdAt.Equal(other.createdAt) || m.sourceAgent != other.sourceAgent {
		return fmt.Errorf("%w: %s vs %s", ErrIdentityMismatch, m.id, other.id)
	}

	m.memoryType.Merge(other.memoryType)
	m.content.Merge(other.content)
	m.summary.Merge(other.summary)
	m.validFrom.Merge(other.validFrom)
	m.validUntil.Merge(other.validUntil)
	m.importance.Merge(other.importance)
	m.archived.Merge(other.archived)
	m.supersededBy.Merge(other.supersededBy)
	m.namespace.Merge(other.namespace)

	m.confidence.Merge(other.confidence)
	m.lastAccessed.Merge(other.lastAccessed)

	m.accessCount.Merge(other.accessCount)

	m.tags.Merge(other.tags)
	m.supersedes.Merge(other.supersedes)
	for _, kind := range linkKinds {
		m.links[kind].Merge(other.links[kind])
	}

	for _, hop := range other.provenance {
		m.addHop(hop)
	}

	m.clock.Merge(other.clock)

	for agent, seq := range other.seqs {
		if seq > m.seqs[agent] {
			m.seqs[agent] = seq
		}
	}
	return nil
}

// Clone returns a deep copy, useful for baselines and snapshots.
func (m *CRDT) Clone() *CRDT {
	clone := &CRDT{
		id:          m.id,
		createdAt:   m.createdAt,
		sourceAgent: m.sourceAgent,

		memoryType:   m.memoryType.Clone(),
		content:      m.content.Clone(),
		summary:      m.summary.Clone(),
		validFrom:    m.validFrom.Clone(),
		validUntil:   m.validUntil.Clone(),
		importance:   m.importance.Clone(),
		archived:     m.archived.Clone(),
		supersededBy: m.supersededBy.Clone(),
		namespace:    m.namespace.Clone(),

		confidence:   m.confidence.Clone(),
		lastAccessed: m.lastAccessed.Clone(),

		accessCount: m.accessCount.Clone(),

		tags:       m.tags.Clone(),
		supersedes: m.supersedes.Clone(),
		links:      make(map[LinkKind]*crdt.ORSet[string], len(linkKinds)),

		provenance: make([]ProvenanceHop, len(m.provenance)),
		clock:      m.clock.Clone(),
		seqs:       make(map[string]uint64, len(m.seqs)),
	}
	for _, kind := range linkKinds {
		clone.links[kind] = m.links[kind].Clone()
	}
	copy(clone.provenance, m.provenance)
	for agent, seq := range m.seqs {
		clone.seqs[agent] = seq
	}
	return clone
}

// nextSeq hands out the next OR-set sequence number for an agent.
func (m *CRDT) nextSeq(agentID string) uint64 {
	seq := m.seqs[agentID]
	m.seqs[agentID] = seq + 1
	return seq
}

// bump advances the vector clock and appends a provenance hop.
func (m *CRDT) bump(agentID, action string) {
	m.clock.Increment(agentID)
	m.addHop(ProvenanceHop{AgentID: agentID, Timestamp: time.Now(), Action: action})
}

// addHop appends a provenance hop unless an identical one (same agent,
// timestamp, action) is already present, keeping the chain time-sorted.
func (m *CRDT) addHop(hop ProvenanceHop) {
	for _, existing := range m.provenance {
		if existing.AgentID == hop.AgentID &&
			existing.Timestamp.Equal(hop.Timestamp) &&
			existing.Action == hop.Action {
			return
		}
	}
	m.provenance = append(m.provenance, hop)
	sort.SliceStable(m.provenance, func(i, j int) bool {
		return m.provenance[i].Timestamp.Before(m.provenance[j].Timestamp)
	})
}
