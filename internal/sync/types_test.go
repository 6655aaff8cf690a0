package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceivedAt(t *testing.T) {
	m := FullMessage{InternalDate: "1700000000000"}

	ts, err := m.ReceivedAt()
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.UnixMilli(1700000000000)))
}

func TestReceivedAtInvalid(t *testing.T) {
	m := FullMessage{InternalDate: "not-a-number"}

	_, err := m.ReceivedAt()
	assert.Error(t, err)
}

func TestMessageDirection(t *testing.T) {
	assert.Equal(t, DirectionOutgoing, MessageDirection("owner@acme.com", "owner@acme.com"))
	assert.Equal(t, DirectionIncoming, MessageDirection("someone@else.com", "owner@acme.com"))
}

func TestKnownStateLookups(t *testing.T) {
	state := &KnownState{
		ThreadExternalIDs:  map[string]struct{}{"T1": {}},
		MessageExternalIDs: map[string]struct{}{"M1": {}},
	}

	assert.True(t, state.KnowsThread("T1"))
	assert.False(t, state.KnowsThread("T2"))
	assert.True(t, state.KnowsMessage("M1"))
	assert.False(t, state.KnowsMessage("M2"))
}
