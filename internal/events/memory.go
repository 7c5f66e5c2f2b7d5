package events

// InMemorySink is the workflow-local Sink implementation. It is a plain
// struct field on the workflow's serializable state (not a goroutine-backed
// service): Temporal replay re-executes Emit calls deterministically, so the
// index sequence is reproduced exactly on replay the same way history's
// Seq numbers are.
type InMemorySink struct {
	Events []IndexedEvent `json:"events"`

	// FirstAvailableIndex is the lowest index still retained. It advances
	// past 0 only when Compact drops older events, mirroring the
	// first_available_index resync sentinel.
	FirstAvailableIndex int64 `json:"first_available_index"`

	next int64
}

// NewInMemorySink creates an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{Events: make([]IndexedEvent, 0)}
}

// Emit appends event, assigning it the next monotonic index.
func (s *InMemorySink) Emit(event Event) int64 {
	// next is not serialized, so after ContinueAsNew it is rebuilt from the
	// carried-over events (or the compaction watermark).
	if n := len(s.Events); n > 0 && s.next <= s.Events[n-1].Index {
		s.next = s.Events[n-1].Index + 1
	}
	if s.next < s.FirstAvailableIndex {
		s.next = s.FirstAvailableIndex
	}
	idx := s.next
	s.next++
	s.Events = append(s.Events, IndexedEvent{Index: idx, Event: event})
	return idx
}

// EventsSince returns events after `from`. A negative `from` returns every
// retained event. If the index right after `from` is below
// FirstAvailableIndex the requested range has been compacted away; the
// caller gets everything currently
// retained plus compacted=true so it can resync its local cursor.
func (s *InMemorySink) EventsSince(from int64) ([]IndexedEvent, bool) {
	if from < s.FirstAvailableIndex-1 {
		out := make([]IndexedEvent, len(s.Events))
		copy(out, s.Events)
		return out, true
	}

	var out []IndexedEvent
	for _, e := range s.Events {
		if e.Index > from {
			out = append(out, e)
		}
	}
	return out, false
}

// LatestIndex returns the index of the last emitted event, or -1 if empty.
func (s *InMemorySink) LatestIndex() int64 {
	if len(s.Events) == 0 {
		return -1
	}
	return s.Events[len(s.Events)-1].Index
}

// Compact drops all but the most recent keepLast events and raises
// FirstAvailableIndex to match, used when the workflow compacts
// conversation history so the two retention policies stay in lockstep.
func (s *InMemorySink) Compact(keepLast int) {
	if keepLast < 0 || keepLast >= len(s.Events) {
		return
	}
	cut := len(s.Events) - keepLast
	s.Events = append([]IndexedEvent(nil), s.Events[cut:]...)
	if len(s.Events) > 0 {
		s.FirstAvailableIndex = s.Events[0].Index
	} else {
		s.FirstAvailableIndex = s.next
	}
}
