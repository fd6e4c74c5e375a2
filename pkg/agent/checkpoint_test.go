// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/brain"
)

func TestSnapshot_CombinesHistoryAndTurnMessages(t *testing.T) {
	history := []brain.Message{{Role: brain.RoleUser, Content: "hi"}}
	res := agent.Result{
		Messages:     []brain.Message{{Role: brain.RoleAssistant, Content: "hello"}},
		FinishReason: brain.FinishStop,
	}

	cp := agent.Snapshot("task-1", "assistant", history, res, 0)
	require.Len(t, cp.Messages, 2)
	assert.Equal(t, "hello", cp.Messages[1].Content)
	assert.Nil(t, cp.Pending)
}

func TestCheckpoint_MarshalRoundTrips(t *testing.T) {
	cp := agent.Snapshot("task-1", "assistant", nil, agent.Result{
		Messages: []brain.Message{{Role: brain.RoleAssistant, Content: "x"}},
	}, 2)

	data, err := cp.Marshal()
	require.NoError(t, err)

	back, err := agent.UnmarshalCheckpoint(data)
	require.NoError(t, err)
	assert.Equal(t, cp.TaskID, back.TaskID)
	assert.Equal(t, cp.Round, back.Round)
	assert.Equal(t, cp.Messages, back.Messages)
}

func TestShouldCheckpointInterval(t *testing.T) {
	assert.False(t, agent.ShouldCheckpointInterval(3, 0))
	assert.False(t, agent.ShouldCheckpointInterval(0, 5))
	assert.False(t, agent.ShouldCheckpointInterval(3, 5))
	assert.True(t, agent.ShouldCheckpointInterval(5, 5))
	assert.True(t, agent.ShouldCheckpointInterval(10, 5))
}
