package restore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusAnalyzing, true},
		{StatusAnalyzing, StatusAwaitingConfirmation, true},
		{StatusAwaitingConfirmation, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusCompleted, StatusRolledBack, true},
		{StatusPending, StatusProcessing, false},
		{StatusPending, StatusCompleted, false},
		{StatusAnalyzing, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusRolledBack, StatusCompleted, false},
		{StatusProcessing, StatusFailed, true},
		{StatusAwaitingConfirmation, StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobTransitionTo(t *testing.T) {
	job := &RestoreJob{ID: "job-1", Status: StatusPending}

	require.NoError(t, job.TransitionTo(StatusAnalyzing))
	assert.Equal(t, StatusAnalyzing, job.Status)

	err := job.TransitionTo(StatusCompleted)
	require.Error(t, err)
	assert.Equal(t, StatusAnalyzing, job.Status)
}

func TestJobFail(t *testing.T) {
	job := &RestoreJob{ID: "job-1", Status: StatusProcessing}
	require.NoError(t, job.Fail("database unreachable"))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "database unreachable", job.ErrorMessage)

	// Terminal states cannot fail again.
	rolledBack := &RestoreJob{ID: "job-2", Status: StatusRolledBack}
	assert.Error(t, rolledBack.Fail("late failure"))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusRolledBack.Terminal())
	assert.False(t, StatusCompleted.Terminal())
	assert.False(t, StatusPending.Terminal())
}
