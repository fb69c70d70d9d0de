package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to SessionState
		want     bool
	}{
		{StateConsentPending, StateInterviewing, true},
		{StateConsentPending, StateStopped, true},
		{StateConsentPending, StateGeneratingSite, false},
		{StateInterviewing, StateInterviewing, true},
		{StateInterviewing, StateGeneratingSite, true},
		{StateInterviewing, StateStopped, true},
		{StateInterviewing, StateConsentPending, false},
		{StateInterviewing, StateCompleted, false},
		{StateGeneratingSite, StateCompleted, true},
		{StateGeneratingSite, StateInterviewing, false},
		{StateGeneratingSite, StateStopped, true},
		{StateCompleted, StateInterviewing, false},
		{StateCompleted, StateStopped, false},
		{StateStopped, StateConsentPending, false},
		{StateStopped, StateInterviewing, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSortMessagesIsStable(t *testing.T) {
	ts := time.Unix(100, 0)
	msgs := []*Message{
		{ID: "c", CreatedAt: ts.Add(time.Second)},
		{ID: "a", CreatedAt: ts},
		{ID: "b", CreatedAt: ts},
	}
	SortMessages(msgs)

	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)
}

func TestLastInbound(t *testing.T) {
	msgs := []*Message{
		{ID: "1", Direction: DirectionInbound},
		{ID: "2", Direction: DirectionOutbound},
	}
	assert.Equal(t, "1", LastInbound(msgs).ID)
	assert.Nil(t, LastInbound(nil))
	assert.Len(t, Inbound(msgs), 1)
	assert.Len(t, Outbound(msgs), 1)
}

func TestGenerationTaskStale(t *testing.T) {
	now := time.Now()
	task := &GenerationTask{Status: GenerationPending, UpdatedAt: now.Add(-10 * time.Minute)}
	assert.True(t, task.Stale(now, 5*time.Minute))

	task.Status = GenerationFailed
	assert.False(t, task.Stale(now, 5*time.Minute))
}
