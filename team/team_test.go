// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package team_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/brain/faketest"
	"github.com/kadirpekel/conductor/pkg/tool"
	"github.com/kadirpekel/conductor/team"
)

func newAgent(name string, b *faketest.Brain) *agent.Agent {
	return agent.New(agent.Config{Name: name, Brain: b, Tools: tool.NewRegistry()})
}

func TestNew_RejectsUnknownEntryAgent(t *testing.T) {
	a := newAgent("writer", faketest.New("writer", faketest.Text("ok")))
	_, err := team.New(team.Config{
		Name:   "solo",
		Entry:  "missing",
		Agents: map[string]*agent.Agent{"writer": a},
	})
	require.Error(t, err)
}

func TestNew_DropsHandoffRuleTargetingUnknownAgent(t *testing.T) {
	a := newAgent("writer", faketest.New("writer", faketest.Text("TERMINATE")))
	router := team.NewHandoffRouter([]team.Rule{{From: "writer", To: "ghost"}}, nil, nil)

	tm, err := team.New(team.Config{
		Name:   "solo",
		Entry:  "writer",
		Agents: map[string]*agent.Agent{"writer": a},
		Router: router,
	})
	require.NoError(t, err)
	require.NotNil(t, tm)
}

func TestRun_SingleAgentTerminatesOnMarker(t *testing.T) {
	a := newAgent("writer", faketest.New("writer", faketest.Text("all done. TERMINATE")))
	tm, err := team.New(team.Config{
		Name:   "solo",
		Entry:  "writer",
		Agents: map[string]*agent.Agent{"writer": a},
	})
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task-1", "write a poem")
	require.NoError(t, err)
	assert.True(t, res.Terminated)
	assert.Equal(t, 1, res.Rounds)
}

func TestRun_CircularChainRoutesInOrderAndStopsAtRoundCap(t *testing.T) {
	research := newAgent("research", faketest.New("research", faketest.Text("findings")))
	write := newAgent("write", faketest.New("write", faketest.Text("draft")))
	review := newAgent("review", faketest.New("review", faketest.Text("comments")))

	router := team.NewHandoffRouter(nil, []string{"research", "write", "review"}, nil)
	tm, err := team.New(team.Config{
		Name:  "pipeline",
		Entry: "research",
		Mode:  team.ModeAutonomous,
		Agents: map[string]*agent.Agent{
			"research": research, "write": write, "review": review,
		},
		Router:    router,
		MaxRounds: 4,
	})
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task-1", "write a guide on X")
	require.NoError(t, err)
	assert.True(t, res.Terminated)
	assert.Equal(t, 4, res.Rounds)
}

func TestRun_StepThroughReturnsAfterOneStep(t *testing.T) {
	a := newAgent("writer", faketest.New("writer", faketest.Text("first step")))
	reviewer := newAgent("reviewer", faketest.New("reviewer", faketest.Text("TERMINATE")))

	router := team.NewHandoffRouter([]team.Rule{{From: "writer", To: "reviewer"}}, nil, nil)
	tm, err := team.New(team.Config{
		Name:   "pair",
		Entry:  "writer",
		Mode:   team.ModeStepThrough,
		Agents: map[string]*agent.Agent{"writer": a, "reviewer": reviewer},
		Router: router,
	})
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task-1", "draft this")
	require.NoError(t, err)
	assert.False(t, res.Terminated)
	assert.Equal(t, "reviewer", res.Next)

	res2, err := tm.Resume(context.Background(), "task-1", res.Next, res.Messages, res.Rounds)
	require.NoError(t, err)
	assert.True(t, res2.Terminated)
}

func TestRun_PendingApprovalPausesBeforeRouting(t *testing.T) {
	b := faketest.New("worker", faketest.ToolCall("call-1", "echo", `{"text":"hi"}`))
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name: "echo",
		Call: func(_ context.Context, args map[string]any) (any, error) { return args["text"], nil },
	}, false))

	a := agent.New(agent.Config{
		Name: "worker", Brain: b, Tools: reg, Allow: []string{"echo"},
		ApprovalRequired: agent.StaticApprovalGate("echo"),
	})
	tm, err := team.New(team.Config{
		Name:   "solo",
		Entry:  "worker",
		Agents: map[string]*agent.Agent{"worker": a},
	})
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task-1", "do it")
	require.NoError(t, err)
	require.NotNil(t, res.PendingApproval)
	assert.Equal(t, "worker", res.PendingAgent)
}
