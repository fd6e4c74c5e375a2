// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/conductor/pkg/session"
)

func TestConfigSnapshotHash_DeterministicForIdenticalInput(t *testing.T) {
	a := session.ConfigSnapshotHash([]byte("team: writers\nmax_rounds: 20\n"))
	b := session.ConfigSnapshotHash([]byte("team: writers\nmax_rounds: 20\n"))
	assert.Equal(t, a, b)
}

func TestConfigSnapshotHash_DiffersOnDrift(t *testing.T) {
	a := session.ConfigSnapshotHash([]byte("max_rounds: 20\n"))
	b := session.ConfigSnapshotHash([]byte("max_rounds: 25\n"))
	assert.NotEqual(t, a, b)
}

func TestPatch_ApplyLeavesUnsetFieldsUntouched(t *testing.T) {
	rec := session.Record{Status: session.StatusRunning, CurrentAgent: "writer", RoundCount: 2}
	newRound := 3
	patched := session.Patch{RoundCount: &newRound}.Apply(rec)

	assert.Equal(t, session.StatusRunning, patched.Status)
	assert.Equal(t, "writer", patched.CurrentAgent)
	assert.Equal(t, 3, patched.RoundCount)
}
