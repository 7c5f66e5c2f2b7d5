package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_DoublesUntilCeiling(t *testing.T) {
	backoff := MinPollInterval
	for i := 0; i < 10; i++ {
		backoff = nextBackoff(backoff)
	}
	assert.Equal(t, MaxPollInterval, backoff)
}

func TestNextBackoff_NeverExceedsCeiling(t *testing.T) {
	assert.Equal(t, MaxPollInterval, nextBackoff(MaxPollInterval))
}

func TestNextBackoff_FirstStepFromFloor(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, nextBackoff(MinPollInterval))
}

func TestNew_StartsAtFloorWithNoCursor(t *testing.T) {
	s := New(nil, "wf-1")
	assert.Equal(t, int64(-1), s.cursor)
	assert.Equal(t, MinPollInterval, s.backoff)
}

func TestSubmit_UnknownKindErrors(t *testing.T) {
	s := New(nil, "wf-1")
	err := s.Submit(nil, Op{Kind: "bogus"})
	assert.Error(t, err)
}
