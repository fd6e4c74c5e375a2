// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package agent

import (
	"encoding/json"
	"time"

	"github.com/kadirpekel/conductor/pkg/brain"
)

// Checkpoint captures enough of a Turn's in-flight state to resume it after
// a process restart (the execution-state checkpointing supplement,
// SPEC_FULL §10). Grounded on hector's ExecutionState/checkpointExecution
// (pkg/agent/checkpoint.go), collapsed from its phase/interval/hybrid
// strategy machinery down to the fields this core's Task Executor actually
// needs to rehydrate a paused turn: the conversation so far, and - if the
// turn paused on a pending tool approval - which call is waiting.
type Checkpoint struct {
	TaskID    string
	AgentName string
	Messages  []brain.Message
	Pending   *PendingApproval
	Round     int
	TakenAt   time.Time
}

// Snapshot builds a Checkpoint from a Turn's Result, the round it stopped
// at, and the full message history (history the caller passed in, plus
// Result.Messages).
func Snapshot(taskID, agentName string, history []brain.Message, res Result, round int) Checkpoint {
	return Checkpoint{
		TaskID:    taskID,
		AgentName: agentName,
		Messages:  append(append([]brain.Message(nil), history...), res.Messages...),
		Pending:   res.PendingApproval,
		Round:     round,
		TakenAt:   time.Now().UTC(),
	}
}

// Marshal serializes the checkpoint for the Task Session Store (spec §4.8
// persists it as part of a task's step log). Stdlib encoding/json only:
// this is plain structured data with no schema-evolution concern beyond
// what json.Marshal already handles.
func (c Checkpoint) Marshal() ([]byte, error) { return json.Marshal(c) }

// UnmarshalCheckpoint is the inverse of Marshal.
func UnmarshalCheckpoint(data []byte) (Checkpoint, error) {
	var c Checkpoint
	err := json.Unmarshal(data, &c)
	return c, err
}

// ShouldCheckpointInterval reports whether iteration is a checkpoint
// boundary for an every-N-iterations interval policy (0 disables interval
// checkpointing). Grounded on hector's shouldCheckpointInterval.
func ShouldCheckpointInterval(iteration, everyN int) bool {
	if everyN <= 0 {
		return false
	}
	return iteration > 0 && iteration%everyN == 0
}
