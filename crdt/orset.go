package crdt

// UniqueTag identifies one add operation: the adding agent plus a
// per-agent sequence number. Tags are the unit of tombstoning; the caller
// must supply a monotonically increasing seq per agent or two unrelated
// adds collide on the same tag.
type UniqueTag struct {
	AgentID string `json:"agent_id"`
	Seq     uint64 `json:"seq"`
}

// ORSet is an observed-remove set. Each add creates a fresh UniqueTag;
// remove tombstones only the tags visible on this replica at call time.
// A concurrent add elsewhere creates a tag the remove never observed, so
// after merge the element is present: add wins.
type ORSet[T comparable] struct {
	adds       map[T]map[UniqueTag]struct{}
	tombstones map[UniqueTag]struct{}
}

// TaggedAdd pairs an element with the tag its add operation created, for
// shipping inside deltas.
type TaggedAdd[T comparable] struct {
	Value T         `json:"value"`
	Tag   UniqueTag `json:"tag"`
}

// ORSetDelta carries only the adds and tombstones a remote replica lacks.
type ORSetDelta[T comparable] struct {
	Adds       []TaggedAdd[T] `json:"adds"`
	Tombstones []UniqueTag    `json:"tombstones"`
}

// NewORSet returns an empty set.
func NewORSet[T comparable]() *ORSet[T] {
	return &ORSet[T]{
		adds:       make(map[T]map[UniqueTag]struct{}),
		tombstones: make(map[UniqueTag]struct{}),
	}
}

// Add inserts value under a fresh tag and returns that tag.
func (s *ORSet[T]) Add(value T, agentID string, seq uint64) UniqueTag {
	tag := UniqueTag{AgentID: agentID, Seq: seq}
	s.AddTagged(value, tag)
	return tag
}

// AddTagged inserts value under an existing tag. Used when applying a
// remote delta, where the tag was minted on the sending replica.
func (s *ORSet[T]) AddTagged(value T, tag UniqueTag) {
	tags, ok := s.adds[value]
	if !ok {
		tags = make(map[UniqueTag]struct{})
		s.adds[value] = tags
	}
	tags[tag] = struct{}{}
}

// Remove tombstones every tag currently associated with value on this
// replica. Tags added concurrently elsewhere and not yet observed cannot
// be tombstoned here; that is the source of add-wins semantics.
func (s *ORSet[T]) Remove(value T) {
	for tag := range s.adds[value] {
		s.tombstones[tag] = struct{}{}
	}
}

// Tombstone marks a single tag as removed. Used when applying a remote
// delta.
func (s *ORSet[T]) Tombstone(tag UniqueTag) {
	s.tombstones[tag] = struct{}{}
}

// Contains reports whether value has at least one live (non-tombstoned)
// tag.
func (s *ORSet[T]) Contains(value T) bool {
	for tag := range s.adds[value] {
		if _, dead := s.tombstones[tag]; !dead {
			return true
		}
	}
	return false
}

// Elements returns all present values, in no particular order.
func (s *ORSet[T]) Elements() []T {
	elements := make([]T, 0, len(s.adds))
	for value := range s.adds {
		if s.Contains(value) {
			elements = append(elements, value)
		}
	}
	return elements
}

// Tags returns the live tags currently associated with value.
func (s *ORSet[T]) Tags(value T) []UniqueTag {
	var tags []UniqueTag
	for tag := range s.adds[value] {
		if _, dead := s.tombstones[tag]; !dead {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Len returns the number of present elements.
func (s *ORSet[T]) Len() int {
	n := 0
	for value := range s.adds {
		if s.Contains(value) {
			n++
		}
	}
	return n
}

// Merge unions the adds map and the tombstone set.
func (s *ORSet[T]) Merge(other *ORSet[T]) {
	if other == nil {
		return
	}
	for value, tags := range other.adds {
		for tag := range tags {
			s.AddTagged(value, tag)
		}
	}
	for tag := range other.tombstones {
		s.tombstones[tag] = struct{}{}
	}
}

// DeltaSince returns only the tags and tombstones other lacks, enabling
// incremental sync instead of shipping the full set.
func (s *ORSet[T]) DeltaSince(other *ORSet[T]) *ORSetDelta[T] {
	delta := &ORSetDelta[T]{}
	for value, tags := range s.adds {
		var otherTags map[UniqueTag]struct{}
		if other != nil {
			otherTags = other.adds[value]
		}
		for tag := range tags {
			if _, seen := otherTags[tag]; !seen {
				delta.Adds = append(delta.Adds, TaggedAdd[T]{Value: value, Tag: tag})
			}
		}
	}
	for tag := range s.tombstones {
		seen := false
		if other != nil {
			_, seen = other.tombstones[tag]
		}
		if !seen {
			delta.Tombstones = append(delta.Tombstones, tag)
		}
	}
	return delta
}

// ApplyDelta folds a delta in. Duplicate delivery is harmless: adds and
// tombstones are both set unions.
func (s *ORSet[T]) ApplyDelta(delta *ORSetDelta[T]) {
	if delta == nil {
		return
	}
	for _, add := range delta.Adds {
		s.AddTagged(add.Value, add.Tag)
	}
	for _, tag := range delta.Tombstones {
		s.tombstones[tag] = struct{}{}
	}
}

// Equal reports whether both sets hold identical adds and tombstones.
func (s *ORSet[T]) Equal(other *ORSet[T]) bool {
	if other == nil {
		return len(s.adds) == 0 && len(s.tombstones) == 0
	}
	if len(s.tombstones) != len(other.tombstones) {
		return false
	}
	for tag := range s.tombstones {
		if _, ok := other.tombstones[tag]; !ok {
			return false
		}
	}
	if !tagMapsEqual(s.adds, other.adds) {
		return false
	}
	return true
}

// Clone returns a deep copy.
func (s *ORSet[T]) Clone() *ORSet[T] {
	clone := NewORSet[T]()
	for value, tags := range s.adds {
		for tag := range tags {
			clone.AddTagged(value, tag)
		}
	}
	for tag := range s.tombstones {
		clone.tombstones[tag] = struct{}{}
	}
	return clone
}

func tagMapsEqual[T comparable](a, b map[T]map[UniqueTag]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for value, tags := range a {
		otherTags, ok := b[value]
		if !ok || len(tags) != len(otherTags) {
			return false
		}
		for tag := range tags {
			if _, ok := otherTags[tag]; !ok {
				return false
			}
		}
	}
	return true
}
