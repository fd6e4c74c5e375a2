// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/config"
)

const sampleYAML = `
name: writers-room
description: drafts and edits short copy
entry: drafter
max_rounds: 5
execution_mode: step_through

agents:
  - name: drafter
    description: writes a first pass
    prompt_template: "Draft: {{.input}}"
    tools: ["search"]
    brain:
      provider: ${BRAIN_PROVIDER:-openai}
      model: gpt-4o-mini
      temperature: 0.7
      max_tokens: 2000
  - name: editor
    description: tightens the draft
    brain:
      provider: openai
      model: gpt-4o-mini

handoffs:
  - from: drafter
    to: editor
  - from: editor
    to: drafter
    condition: "needs another pass"

memory:
  backend: vector
  vector_store: chromem
  embedder: openai

events:
  auto_emit_patterns:
    - event_name: task.step_completed
      emit: task.progress_logged
      exclusive: true
`

func TestLoad_DecodesExpandsDefaultsAndValidates(t *testing.T) {
	t.Setenv("BRAIN_PROVIDER", "anthropic")

	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	loaded, err := config.Load(path)
	require.NoError(t, err)

	team := loaded.Team
	assert.Equal(t, "writers-room", team.Name)
	assert.Equal(t, "drafter", team.Entry)
	assert.Equal(t, 5, team.MaxRounds)
	assert.Equal(t, config.ExecutionModeStepThrough, team.ExecutionMode)
	require.Len(t, team.Agents, 2)
	assert.Equal(t, "anthropic", team.Agents[0].Brain.Provider)
	assert.Equal(t, config.DefaultAgentMaxToolRounds, team.Agents[0].MaxToolRounds)
	require.Len(t, team.Handoffs, 2)
	assert.Equal(t, "needs another pass", team.Handoffs[1].Condition)
	require.NotNil(t, team.Memory)
	assert.Equal(t, "chromem", team.Memory.VectorStore)
	require.Len(t, team.Events.AutoEmitPatterns, 1)
	assert.Equal(t, "task.progress_logged", team.Events.AutoEmitPatterns[0].Emit)
	assert.True(t, team.Events.AutoEmitPatterns[0].Exclusive)

	assert.Len(t, loaded.Hash, 64)
}

func TestLoad_DefaultsEntryAndExecutionModeWhenOmitted(t *testing.T) {
	const minimal = `
name: solo-team
agents:
  - name: only
    brain:
      provider: openai
      model: gpt-4o-mini
`
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "only", loaded.Team.Entry)
	assert.Equal(t, config.ExecutionModeAutonomous, loaded.Team.ExecutionMode)
	assert.Equal(t, config.DefaultMaxRounds, loaded.Team.MaxRounds)
}

func TestLoad_RejectsMissingAgentBrain(t *testing.T) {
	const bad = `
name: broken-team
agents:
  - name: only
`
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownEntry(t *testing.T) {
	const bad = `
name: broken-team
entry: ghost
agents:
  - name: only
    brain:
      provider: openai
      model: gpt-4o-mini
`
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestWatch_ReloadsOnFileChange(t *testing.T) {
	const v1 = "name: watched-team\nagents:\n  - name: only\n    brain:\n      provider: openai\n      model: gpt-4o-mini\n"
	const v2 = "name: watched-team\nmax_rounds: 7\nagents:\n  - name: only\n    brain:\n      provider: openai\n      model: gpt-4o-mini\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(v1), 0o644))

	changes := make(chan config.Loaded, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, config.Watch(ctx, path, func(l config.Loaded) {
		changes <- l
	}))

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(v2), 0o644))

	select {
	case l := <-changes:
		assert.Equal(t, 7, l.Team.MaxRounds)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
