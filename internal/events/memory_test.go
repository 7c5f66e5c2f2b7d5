package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemorySink_MonotonicIndex(t *testing.T) {
	s := NewInMemorySink()
	i0 := s.Emit(Event{Kind: KindTurnStarted})
	i1 := s.Emit(Event{Kind: KindAgentMessage})
	i2 := s.Emit(Event{Kind: KindTurnComplete})

	assert.Equal(t, int64(0), i0)
	assert.Equal(t, int64(1), i1)
	assert.Equal(t, int64(2), i2)
	assert.Equal(t, int64(2), s.LatestIndex())
}

func TestInMemorySink_EventsSince(t *testing.T) {
	s := NewInMemorySink()
	s.Emit(Event{Kind: KindTurnStarted})
	s.Emit(Event{Kind: KindAgentMessage})
	s.Emit(Event{Kind: KindTurnComplete})

	got, compacted := s.EventsSince(0)
	assert.False(t, compacted)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Index)
	assert.Equal(t, int64(2), got[1].Index)
}

func TestInMemorySink_EventsSince_EmptyWhenCaughtUp(t *testing.T) {
	s := NewInMemorySink()
	s.Emit(Event{Kind: KindTurnStarted})

	got, compacted := s.EventsSince(0)
	assert.False(t, compacted)
	assert.Empty(t, got)
}

func TestInMemorySink_Compact_SignalsResync(t *testing.T) {
	s := NewInMemorySink()
	for i := 0; i < 5; i++ {
		s.Emit(Event{Kind: KindAgentMessage})
	}
	s.Compact(2) // keep last 2 (indexes 3, 4)

	assert.Equal(t, int64(3), s.FirstAvailableIndex)

	// A client that last saw index 0 is now behind the retained window.
	got, compacted := s.EventsSince(0)
	assert.True(t, compacted)
	assert.Len(t, got, 2)

	// A client caught up with the retained window sees a normal continuation.
	got, compacted = s.EventsSince(3)
	assert.False(t, compacted)
	assert.Len(t, got, 1)
}

func TestInMemorySink_NoEventsIsNotCompacted(t *testing.T) {
	s := NewInMemorySink()
	got, compacted := s.EventsSince(-1)
	assert.False(t, compacted)
	assert.Empty(t, got)
}
