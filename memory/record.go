package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MemoryType classifies what kind of knowledge a record holds.
type MemoryType string

const (
	TypeCore       MemoryType = "core"
	TypeSemantic   MemoryType = "semantic"
	TypeEpisodic   MemoryType = "episodic"
	TypeProcedural MemoryType = "procedural"
)

// ParseMemoryType maps a serialized type tag back to a MemoryType,
// falling back to TypeCore on anything unrecognized.
func ParseMemoryType(s string) MemoryType {
	switch MemoryType(s) {
	case TypeCore, TypeSemantic, TypeEpisodic, TypeProcedural:
		return MemoryType(s)
	default:
		return TypeCore
	}
}

// Importance ranks how much a record matters for retrieval and retention.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// ParseImportance maps a serialized importance back to an Importance,
// falling back to ImportanceMedium on anything unrecognized.
func ParseImportance(s string) Importance {
	switch Importance(s) {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return Importance(s)
	default:
		return ImportanceMedium
	}
}

// LinkKind names one of the record's link collections.
type LinkKind string

const (
	LinkFile       LinkKind = "file"
	LinkFunction   LinkKind = "function"
	LinkPattern    LinkKind = "pattern"
	LinkConstraint LinkKind = "constraint"
)

// linkKinds is the fixed iteration order for link collections, so merges
// and deltas are deterministic.
var linkKinds = []LinkKind{LinkConstraint, LinkFile, LinkFunction, LinkPattern}

// Content is the typed payload of a record.
type Content struct {
	Kind     string            `json:"kind"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ProvenanceHop records one agent touching a record: who, when, what.
type ProvenanceHop struct {
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
}

// Record is the plain domain view of one memory. It is what agents read
// and write; the CRDT wrapper owns conflict resolution between replicas.
type Record struct {
	ID           string
	Type         MemoryType
	Content      Content
	Summary      string
	CreatedAt    time.Time
	ValidFrom    time.Time
	ValidUntil   time.Time // zero = no expiry
	Confidence   float64
	Importance   Importance
	LastAccessed time.Time
	AccessCount  uint64
	Links        map[LinkKind][]string
	Tags         []string
	Archived     bool
	SupersededBy string
	Supersedes   []string
	Namespace    string
	SourceAgent  string
	ContentHash  string
}

// NewRecord creates a record owned by the given agent, minting a fresh
// ID and sensible defaults.
func NewRecord(agentID string, memType MemoryType, content Content) *Record {
	now := time.Now()
	return &Record{
		ID:           uuid.New().String(),
		Type:         memType,
		Content:      content,
		CreatedAt:    now,
		ValidFrom:    now,
		Confidence:   0.5,
		Importance:   ImportanceMedium,
		LastAccessed: now,
		Links:        make(map[LinkKind][]string),
		Namespace:    "default",
		SourceAgent:  agentID,
		ContentHash:  HashContent(content),
	}
}

// HashContent returns the hex sha256 of the canonical content JSON. The
// hash is always derived from content, never stored as a CRDT field.
func HashContent(content Content) string {
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// marshalContent serializes content for storage in a string register.
func marshalContent(content Content) string {
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(data)
}

// unmarshalContent deserializes register content, degrading to a plain
// text payload rather than failing on malformed data.
func unmarshalContent(s string) Content {
	var content Content
	if err := json.Unmarshal([]byte(s), &content); err != nil {
		return Content{Kind: "text", Text: s}
	}
	return content
}
