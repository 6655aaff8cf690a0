package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventMsgID(t *testing.T) {
	runID := uuid.New()

	assert.Equal(t, eventMsgID(runID, "completed"), eventMsgID(runID, "completed"),
		"same run outcome yields the same msg id")
	assert.NotEqual(t, eventMsgID(runID, "completed"), eventMsgID(runID, "failed"))
	assert.NotEqual(t, eventMsgID(uuid.New(), "completed"), eventMsgID(runID, "completed"))
	assert.Equal(t, runID.String()+".completed", eventMsgID(runID, "completed"))
}
