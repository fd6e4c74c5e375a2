// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package team implements the Team container (spec §4.5): a named group of
// agents, the tools and memory they share, and the handoff rules that
// decide which agent runs next.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/memory"
	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// ExecutionMode controls how far Run advances before returning control to
// the caller (spec §4.5). Autonomous drives the handoff loop to
// completion; StepThrough returns after a single agent step so an owning
// Task Executor can persist progress and decide whether to continue.
type ExecutionMode string

const (
	ModeAutonomous  ExecutionMode = "autonomous"
	ModeStepThrough ExecutionMode = "step_through"
)

// DefaultMaxRounds is the round cap shared by every agent in a Team absent
// an explicit override (spec §4.5).
const DefaultMaxRounds = 20

// Config declares a Team. Loading is tolerant (spec §4.5): a handoff rule
// naming an agent the Team doesn't have is kept out of the router with a
// logged warning rather than failing New; effective tool lookups for an
// agent's unknown tool names are handled by pkg/tool.Registry itself.
type Config struct {
	Name  string
	Entry string
	Mode  ExecutionMode

	Agents map[string]*agent.Agent
	Router *HandoffRouter

	Memory    memory.Provider
	Events    *event.Bus
	MaxRounds int
}

// Team runs a multi-agent conversation under one Config.
type Team struct {
	cfg Config
}

// New validates and constructs a Team.
func New(cfg Config) (*Team, error) {
	if cfg.Name == "" {
		return nil, orcherr.New(orcherr.ConfigError, "team", "new", "team name is required", nil)
	}
	if len(cfg.Agents) == 0 {
		return nil, orcherr.New(orcherr.ConfigError, "team", "new", "team must declare at least one agent", nil)
	}
	if _, ok := cfg.Agents[cfg.Entry]; !ok {
		return nil, orcherr.New(orcherr.ConfigError, "team", "new",
			fmt.Sprintf("entry agent %q is not declared", cfg.Entry), nil)
	}
	if cfg.Router == nil {
		cfg.Router = NewHandoffRouter(nil, nil, nil)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAutonomous
	}
	if cfg.Mode != ModeAutonomous && cfg.Mode != ModeStepThrough {
		return nil, orcherr.New(orcherr.ConfigError, "team", "new", fmt.Sprintf("unknown execution_mode %q", cfg.Mode), nil)
	}

	for _, target := range cfg.Router.targets() {
		if _, ok := cfg.Agents[target]; !ok {
			slog.Warn("handoff rule targets an agent not in the team, skipping rule", "team", cfg.Name, "agent", target)
			cfg.Router.dropRulesTargeting(target)
		}
	}

	return &Team{cfg: cfg}, nil
}

// Name returns the team's configured name.
func (t *Team) Name() string { return t.cfg.Name }

// Entry returns the agent name Run starts from.
func (t *Team) Entry() string { return t.cfg.Entry }

// MaxRounds returns the round cap this Team was constructed with (after
// defaulting), independent of which ExecutionMode it runs under.
func (t *Team) MaxRounds() int { return t.cfg.MaxRounds }

// Result is the outcome of a Run call. When Mode is StepThrough, Result is
// returned after exactly one agent step and Terminated/PendingApproval
// tell the caller whether to resume with Next.
type Result struct {
	Messages        []brain.Message
	Rounds          int
	Terminated      bool
	PendingApproval *agent.PendingApproval
	PendingAgent    string
	// Next is the agent Run would invoke on the following call; set when
	// StepThrough returns without terminating.
	Next string
}

// Run drives the team from the given input, starting at the configured
// Entry agent. In autonomous mode it runs until termination, a round cap,
// or a pending approval; in step_through mode it performs a single step
// and returns.
func (t *Team) Run(ctx context.Context, taskID, input string) (Result, error) {
	return t.run(ctx, taskID, t.cfg.Entry, []brain.Message{{Role: brain.RoleUser, Content: input}}, 0)
}

// Resume continues a step_through (or paused-for-approval) run from the
// given agent and transcript, typically reconstructed from a Task Session
// Store record (spec §4.8) or an agent.Checkpoint (spec §10).
func (t *Team) Resume(ctx context.Context, taskID, fromAgent string, history []brain.Message, roundsSoFar int) (Result, error) {
	return t.run(ctx, taskID, fromAgent, history, roundsSoFar)
}

func (t *Team) run(ctx context.Context, taskID, current string, history []brain.Message, roundsSoFar int) (Result, error) {
	var all []brain.Message

	for round := roundsSoFar; round < t.cfg.MaxRounds; round++ {
		ag, ok := t.cfg.Agents[current]
		if !ok {
			return Result{Messages: all, Rounds: round}, orcherr.New(orcherr.RoutingFailure, "team", "run",
				fmt.Sprintf("handoff routed to unknown agent %q", current), nil)
		}

		res, err := ag.Turn(ctx, taskID, history)
		if err != nil {
			return Result{Messages: all, Rounds: round + 1}, err
		}
		history = append(history, res.Messages...)
		all = append(all, res.Messages...)

		if res.PendingApproval != nil {
			return Result{Messages: all, Rounds: round + 1, PendingApproval: res.PendingApproval, PendingAgent: current}, nil
		}

		output := lastAssistantText(res.Messages)
		t.emit(taskID, event.HandoffRouted, map[string]any{"from": current, "output_preview": preview(output)})

		next, terminate, rerr := t.cfg.Router.Route(current, output)
		if rerr != nil {
			return Result{Messages: all, Rounds: round + 1}, rerr
		}
		if terminate {
			return Result{Messages: all, Rounds: round + 1, Terminated: true}, nil
		}

		if t.cfg.Mode == ModeStepThrough {
			return Result{Messages: all, Rounds: round + 1, Next: next}, nil
		}
		current = next
	}

	return Result{Messages: all, Rounds: t.cfg.MaxRounds, Terminated: true}, nil
}

func lastAssistantText(msgs []brain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == brain.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func (t *Team) emit(taskID string, typ event.Type, payload map[string]any) {
	if t.cfg.Events == nil {
		return
	}
	t.cfg.Events.Publish(event.Event{
		Type: typ, Source: t.cfg.Name, TaskID: taskID, Timestamp: time.Now().UTC(), Payload: payload,
	})
}
