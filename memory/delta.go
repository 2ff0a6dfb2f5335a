package memory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/loomhq/loom-go-sdk/crdt"
)

// Field names used in deltas. Link collections use a "links." prefix
// followed by the LinkKind.
const (
	FieldType         = "type"
	FieldContent      = "content"
	FieldSummary      = "summary"
	FieldValidFrom    = "valid_from"
	FieldValidUntil   = "valid_until"
	FieldImportance   = "importance"
	FieldArchived     = "archived"
	FieldSupersededBy = "superseded_by"
	FieldNamespace    = "namespace"
	FieldConfidence   = "confidence"
	FieldLastAccessed = "last_accessed"
	FieldAccessCount  = "access_count"
	FieldTags         = "tags"
	FieldSupersedes   = "supersedes"
	FieldProvenance   = "provenance"

	fieldLinkPrefix = "links."
)

// LinkField returns the delta field name for one link collection.
func LinkField(kind LinkKind) string {
	return fieldLinkPrefix + string(kind)
}

// linkKindOf inverts LinkField; ok is false for non-link fields.
func linkKindOf(field string) (LinkKind, bool) {
	rest, found := strings.CutPrefix(field, fieldLinkPrefix)
	if !found {
		return "", false
	}
	return LinkKind(rest), true
}

// RegisterDelta ships one last-writer-wins observation: the encoded value
// plus the (timestamp, agent) pair that decides whether it wins remotely.
// The value is raw JSON so one shape serves string, bool and time fields.
type RegisterDelta struct {
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id"`
}

// MaxDelta ships a max-register observation.
type MaxDelta struct {
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// FieldDelta is one field's contribution to a RecordDelta. Exactly one
// payload member is populated, chosen by Field.
type FieldDelta struct {
	Field    string                   `json:"field"`
	Register *RegisterDelta           `json:"register,omitempty"`
	Max      *MaxDelta                `json:"max,omitempty"`
	Counter  *crdt.GCounterDelta      `json:"counter,omitempty"`
	Set      *crdt.ORSetDelta[string] `json:"set,omitempty"`
	Hops     []ProvenanceHop          `json:"hops,omitempty"`
}

// RecordDelta carries everything one replica knows about a record beyond
// a baseline snapshot. Applying the same delta twice leaves the target
// unchanged, so duplicate delivery is safe.
type RecordDelta struct {
	MemoryID    string            `json:"memory_id"`
	SourceAgent string            `json:"source_agent"`
	Clock       *crdt.VectorClock `json:"clock"`
	Fields      []FieldDelta      `json:"fields"`
}

// IsEmpty reports whether the delta carries no field changes.
func (d *RecordDelta) IsEmpty() bool {
	return len(d.Fields) == 0
}
