// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package builder_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/memory"
	"github.com/kadirpekel/conductor/team"
)

func minimalTeam() config.Team {
	return config.Team{
		Name: "support",
		Agents: []config.Agent{
			{Name: "triage", Brain: config.Brain{Provider: "openai", Model: "gpt-4o-mini"}, Tools: []string{"shell"}},
			{Name: "closer", Brain: config.Brain{Provider: "openai", Model: "gpt-4o-mini"}},
		},
		Tools: []config.Tool{
			{Name: "shell", Type: config.ToolTypeCommand, Source: "echo hello"},
		},
		Handoffs: []config.Handoff{
			{From: "triage", To: "closer", Condition: "TERMINATE"},
		},
		Entry:         "triage",
		MaxRounds:     5,
		ExecutionMode: config.ExecutionModeStepThrough,
	}
}

func TestBuild_WiresAgentsToolsRouterAndMode(t *testing.T) {
	cfg, err := builder.Build(minimalTeam(), builder.Options{})
	require.NoError(t, err)

	assert.Equal(t, "support", cfg.Name)
	assert.Equal(t, "triage", cfg.Entry)
	assert.Equal(t, team.ModeStepThrough, cfg.Mode)
	assert.Equal(t, 5, cfg.MaxRounds)
	assert.Len(t, cfg.Agents, 2)
	assert.Contains(t, cfg.Agents, "triage")
	assert.Contains(t, cfg.Agents, "closer")
	assert.IsType(t, memory.NopProvider{}, cfg.Memory)

	_, err = team.New(cfg)
	assert.NoError(t, err)
}

func TestBuild_RegistersCommandToolOnDemand(t *testing.T) {
	// Builtins is left nil, so Build allocates its own registry each call.
	doc := minimalTeam()
	_, err := builder.Build(doc, builder.Options{})
	require.NoError(t, err)
	// resolveTools is exercised indirectly through Build; building the same
	// document again, with the same declared command tool, must not fail.
	_, err = builder.Build(doc, builder.Options{})
	require.NoError(t, err)
}

func TestBuild_UndeclaredToolFails(t *testing.T) {
	doc := minimalTeam()
	doc.Agents[0].Tools = []string{"missing"}
	_, err := builder.Build(doc, builder.Options{})
	assert.Error(t, err)
}

func TestBuild_BuiltinToolRequiresOptionsBuiltins(t *testing.T) {
	doc := minimalTeam()
	doc.Tools = append(doc.Tools, config.Tool{Name: "search", Type: config.ToolTypeBuiltin})
	doc.Agents[0].Tools = append(doc.Agents[0].Tools, "search")
	_, err := builder.Build(doc, builder.Options{})
	assert.Error(t, err)
}

func TestBuild_MemoryBackendSelection(t *testing.T) {
	doc := minimalTeam()
	doc.Memory = &config.Memory{Backend: "file", Parameters: map[string]any{"base_dir": t.TempDir()}}
	cfg, err := builder.Build(doc, builder.Options{})
	require.NoError(t, err)
	assert.IsType(t, &memory.FileProvider{}, cfg.Memory)
}

func TestBuild_UnsupportedBrainProviderFails(t *testing.T) {
	doc := minimalTeam()
	doc.Agents[0].Brain.Provider = "anthropic"
	_, err := builder.Build(doc, builder.Options{})
	assert.Error(t, err)
}

func TestBuild_InstallsAutoEmitRules(t *testing.T) {
	doc := minimalTeam()
	doc.Events = config.Events{AutoEmitPatterns: []config.AutoEmitPattern{
		{EventName: "task.completed", Emit: "memory.added", Exclusive: true},
	}}
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)

	var mu sync.Mutex
	var got []event.Type
	done := make(chan struct{})
	bus.Subscribe("memory.added", func(ev event.Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
		close(done)
	})

	_, err := builder.Build(doc, builder.Options{Events: bus})
	require.NoError(t, err)

	bus.Publish(event.Event{Type: "task.completed"})

	select {
	case <-done:
	case <-time.After(time.Second):
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, event.Type("memory.added"))
}

func TestBuild_ApprovalGateMatchesConfiguredTools(t *testing.T) {
	doc := minimalTeam()
	doc.Agents[0].ApprovalTools = []string{"shell"}
	cfg, err := builder.Build(doc, builder.Options{})
	require.NoError(t, err)
	assert.Len(t, cfg.Agents, 2)
}
