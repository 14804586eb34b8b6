package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	convID := uuid.New()
	payload := json.RawMessage(`{"title":"Test"}`)

	task, err := NewTask(convID, TaskTypeExecuteForm, AgentPlanner, AgentExecutor, payload)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, convID, task.ConversationID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Zero(t, task.AttemptCount)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, task.CreatedAt, task.AvailableAt)
	assert.Nil(t, task.Result)
	assert.Nil(t, task.Error)

	// The stored payload is a copy.
	payload[2] = 'X'
	assert.JSONEq(t, `{"title":"Test"}`, string(task.Payload))
}

func TestNewTask_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		conv    uuid.UUID
		typ     string
		target  string
		payload string
		want    error
	}{
		{"missing conversation", uuid.Nil, TaskTypeExecuteForm, AgentExecutor, `{"a":1}`, ErrEmptyConversationID},
		{"missing type", uuid.New(), "", AgentExecutor, `{"a":1}`, ErrEmptyTaskType},
		{"missing target", uuid.New(), TaskTypeExecuteForm, "", `{"a":1}`, ErrEmptyTargetAgent},
		{"empty payload", uuid.New(), TaskTypeExecuteForm, AgentExecutor, ``, ErrEmptyPayload},
		{"null payload", uuid.New(), TaskTypeExecuteForm, AgentExecutor, `null`, ErrEmptyPayload},
		{"empty object payload", uuid.New(), TaskTypeExecuteForm, AgentExecutor, `{}`, ErrEmptyPayload},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTask(tc.conv, tc.typ, AgentPlanner, tc.target, json.RawMessage(tc.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, CategoryValidation, CategoryOf(err))
		})
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []TaskStatus{TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed}
	legal := map[[2]TaskStatus]bool{
		{TaskStatusPending, TaskStatusProcessing}:   true,
		{TaskStatusProcessing, TaskStatusCompleted}: true,
		{TaskStatusProcessing, TaskStatusFailed}:    true,
		{TaskStatusProcessing, TaskStatusPending}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]TaskStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCheckTransition_StateError(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	err := CheckTransition(id, TaskStatusCompleted, TaskStatusPending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrState))
	assert.Contains(t, err.Error(), id.String())

	assert.NoError(t, CheckTransition(id, TaskStatusPending, TaskStatusProcessing))
}

func TestTaskJSONShape(t *testing.T) {
	t.Parallel()

	task, err := NewTask(uuid.New(), TaskTypeExecuteForm, AgentPlanner, AgentExecutor,
		json.RawMessage(`{"title":"x"}`))
	require.NoError(t, err)

	raw, err := json.Marshal(task)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))

	for _, key := range []string{
		"id", "conversation_id", "task_type", "source_agent", "target_agent",
		"payload", "result", "status", "attempt_count",
		"created_at", "claimed_at", "completed_at", "error",
	} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "ClaimToken")
	assert.NotContains(t, fields, "AvailableAt")
}
