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

// Package agent implements the Agent turn loop (spec §4.4): a single
// Brain<->Tool cycle that renders a prompt, streams a chat completion,
// executes any requested tools, and repeats until the Brain reaches a
// terminal finish reason.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/memory"
	"github.com/kadirpekel/conductor/pkg/orcherr"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// DefaultMaxToolRounds bounds the number of Brain<->Tool round trips within
// a single Turn before giving up with a ToolLoop error (spec §4.4).
const DefaultMaxToolRounds = 8

// ApprovalGate decides whether a tool call must pause for human approval
// before it runs (the human-in-the-loop supplement, SPEC_FULL §10).
type ApprovalGate func(toolName string) bool

// Config configures an Agent.
type Config struct {
	Name   string
	Brain  brain.Brain
	Tools  *tool.Registry
	Allow  []string // tool allowlist offered to the Brain this turn
	Memory memory.Provider
	Events *event.Bus
	Tokens *brain.Counter

	MaxToolRounds int
	TokenBudget   int // 0 disables truncation

	ApprovalRequired ApprovalGate
}

// Agent runs turns for one named participant in a Team.
type Agent struct {
	cfg Config
}

// New creates an Agent. MaxToolRounds defaults to DefaultMaxToolRounds and
// Tokens defaults to brain.DefaultCounter when left zero.
func New(cfg Config) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Tokens == nil {
		cfg.Tokens = brain.DefaultCounter
	}
	return &Agent{cfg: cfg}
}

// Name returns the agent's configured name.
func (a *Agent) Name() string { return a.cfg.Name }

// PendingApproval describes a tool call that is waiting on a human
// decision before it can run.
type PendingApproval struct {
	Call brain.ToolCall
}

// Result is the outcome of a Turn.
type Result struct {
	// Messages holds every message this Turn appended to the conversation
	// (assistant messages and tool results), in order.
	Messages []brain.Message

	FinishReason brain.FinishReason
	Usage        brain.Usage

	// PendingApproval is set when the turn stopped early because a
	// requested tool call needs human sign-off (spec §10 supplement).
	// Messages/FinishReason reflect the state up to that point; resume the
	// turn with ResumeApproved/ResumeDenied once a decision is made.
	PendingApproval *PendingApproval
}

// Turn implements the spec §4.4 loop:
//  1. render the system prompt and assemble chat history,
//  2. stream the Brain, assembling any tool-call deltas concurrently with
//     text deltas,
//  3. on finish_reason == tool_calls, execute each assembled call (pausing
//     for approval if configured) and append tool results,
//  4. repeat from (2) with the updated history,
//  5. stop on any other finish_reason, surfacing it to the caller.
//
// Exceeding MaxToolRounds without reaching a terminal finish_reason is a
// ToolLoop error. When the conversation exceeds TokenBudget it is
// truncated (oldest steps dropped first, system message and the last two
// steps kept verbatim) before each Brain call.
func (a *Agent) Turn(ctx context.Context, taskID string, history []brain.Message) (Result, error) {
	messages := append([]brain.Message(nil), history...)
	schemas := toBrainSchemas(a.cfg.Tools.Schemas(a.cfg.Allow))

	var produced []brain.Message
	var usage brain.Usage

	for round := 0; ; round++ {
		if round >= a.cfg.MaxToolRounds {
			return Result{Messages: produced, FinishReason: brain.FinishError, Usage: usage},
				orcherr.New(orcherr.ToolLoop, "agent", "turn",
					fmt.Sprintf("exceeded %d tool-call rounds without a final response", a.cfg.MaxToolRounds), nil)
		}

		req := brain.Request{Messages: a.truncate(messages), Tools: schemas}

		assistantMsg, finish, roundUsage, err := a.streamOnce(ctx, taskID, req)
		if err != nil {
			return Result{Messages: produced, Usage: usage}, err
		}
		usage = roundUsage

		messages = append(messages, assistantMsg)
		produced = append(produced, assistantMsg)

		switch finish {
		case brain.FinishToolCalls:
			if len(assistantMsg.ToolCalls) == 0 {
				// Nothing to execute despite the finish reason; stop rather
				// than spin on an empty round.
				return Result{Messages: produced, FinishReason: finish, Usage: usage}, nil
			}
		case brain.FinishError:
			return Result{Messages: produced, FinishReason: finish, Usage: usage},
				orcherr.New(orcherr.BrainPermanent, "agent", "turn", "brain reported a fatal error", nil)
		default:
			return Result{Messages: produced, FinishReason: finish, Usage: usage}, nil
		}

		toolMsgs, pending, err := a.runToolCalls(ctx, taskID, assistantMsg.ToolCalls)
		messages = append(messages, toolMsgs...)
		produced = append(produced, toolMsgs...)
		if err != nil {
			return Result{Messages: produced, FinishReason: finish, Usage: usage}, err
		}
		if pending != nil {
			return Result{Messages: produced, FinishReason: finish, Usage: usage, PendingApproval: pending}, nil
		}
	}
}

// streamOnce runs a single Brain.Stream call to completion, assembling text
// and tool-call deltas as they arrive.
func (a *Agent) streamOnce(ctx context.Context, taskID string, req brain.Request) (brain.Message, brain.FinishReason, brain.Usage, error) {
	chunks, err := a.cfg.Brain.Stream(ctx, req)
	if err != nil {
		return brain.Message{}, "", brain.Usage{}, orcherr.New(orcherr.BrainTransient, "agent", "turn",
			"brain failed to start streaming", err)
	}

	asm := brain.NewAssembler()
	var text strings.Builder
	var finish brain.FinishReason
	var usage brain.Usage
	var streamErr error

	a.emit(taskID, event.AgentTurnStarted, map[string]any{"agent": a.cfg.Name})

	for chunk := range chunks {
		switch chunk.Kind {
		case brain.ChunkTextDelta:
			text.WriteString(chunk.TextDelta)
		case brain.ChunkToolCallDelta:
			asm.Add(chunk.ToolCallDelta)
		case brain.ChunkFinish:
			finish = chunk.FinishReason
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			streamErr = chunk.Err
		}
	}

	msg := brain.Message{Role: brain.RoleAssistant, Content: text.String()}
	for _, assembled := range asm.Finish() {
		// A malformed call is still recorded so the caller can produce a
		// failed tool_result for it specifically (spec §4.2); Arguments
		// carries the unparsable raw string either way.
		msg.ToolCalls = append(msg.ToolCalls, assembled.Call)
	}

	a.emit(taskID, event.AgentTurnFinished, map[string]any{
		"agent":         a.cfg.Name,
		"finish_reason": string(finish),
	})

	if finish == brain.FinishError && streamErr != nil {
		return msg, finish, usage, orcherr.New(orcherr.BrainPermanent, "agent", "turn", "brain stream ended in error", streamErr)
	}
	return msg, finish, usage, nil
}

// runToolCalls executes every assembled tool call in order, stopping (and
// returning a PendingApproval) at the first call that requires human
// sign-off. A call whose arguments failed to parse produces a failed
// tool_result directly, without reaching the registry.
func (a *Agent) runToolCalls(ctx context.Context, taskID string, calls []brain.ToolCall) ([]brain.Message, *PendingApproval, error) {
	var out []brain.Message

	for _, call := range calls {
		var args map[string]any
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			out = append(out, toolResultMessage(call.ID, fmt.Sprintf("error: %v", orcherr.New(
				orcherr.MalformedToolArguments, "agent", "run_tool_calls", "arguments failed to parse", err))))
			continue
		}

		if a.cfg.ApprovalRequired != nil && a.cfg.ApprovalRequired(call.Name) {
			return out, &PendingApproval{Call: call}, nil
		}

		a.emit(taskID, event.ToolInvoked, map[string]any{"tool": call.Name, "call_id": call.ID})

		result := a.cfg.Tools.Invoke(ctx, call.Name, args, tool.Context{TaskID: taskID, AgentID: a.cfg.Name})
		if result.Ok() {
			a.emit(taskID, event.ToolSucceeded, map[string]any{"tool": call.Name, "call_id": call.ID})
		} else {
			a.emit(taskID, event.ToolFailed, map[string]any{"tool": call.Name, "call_id": call.ID, "error": result.Err.Error()})
		}

		out = append(out, toolResultMessage(call.ID, formatResult(result)))
	}

	return out, nil, nil
}

// ResumeApproved runs a previously-paused tool call after a human approved
// it, returning the tool_result message to append to history.
func (a *Agent) ResumeApproved(ctx context.Context, taskID string, call brain.ToolCall) brain.Message {
	var args map[string]any
	_ = json.Unmarshal([]byte(call.Arguments), &args)
	result := a.cfg.Tools.Invoke(ctx, call.Name, args, tool.Context{TaskID: taskID, AgentID: a.cfg.Name})
	return toolResultMessage(call.ID, formatResult(result))
}

// ResumeDenied produces the tool_result message for a human-denied call, so
// the Brain sees the denial rather than silence. Grounded on hector's
// preparePendingDenialMessages (pkg/agent/tool_approval.go).
func ResumeDenied(call brain.ToolCall, reason string) brain.Message {
	if reason == "" {
		reason = "the user denied this tool call"
	}
	return toolResultMessage(call.ID, "denied: "+reason)
}

func toolResultMessage(callID, content string) brain.Message {
	return brain.Message{Role: brain.RoleTool, ToolCallID: callID, Content: content}
}

func formatResult(r tool.Result) string {
	if !r.Ok() {
		return fmt.Sprintf("error: %v", r.Err)
	}
	switch v := r.Value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func toBrainSchemas(fs []tool.FunctionSchema) []brain.ToolSchema {
	out := make([]brain.ToolSchema, 0, len(fs))
	for _, f := range fs {
		out = append(out, brain.ToolSchema{
			Type: f.Type,
			Function: brain.ToolSchemaFunction{
				Name:        f.Function.Name,
				Description: f.Function.Description,
				Parameters:  f.Function.Parameters,
			},
		})
	}
	return out
}

// truncate applies the budget-discipline rule (spec §4.4): when the
// conversation exceeds TokenBudget, oldest steps are dropped first,
// preserving the system message (if any, always messages[0]) and the last
// two steps verbatim.
func (a *Agent) truncate(messages []brain.Message) []brain.Message {
	if a.cfg.TokenBudget <= 0 || len(messages) <= 3 {
		return messages
	}
	if a.cfg.Tokens.CountMessages(messages) <= a.cfg.TokenBudget {
		return messages
	}

	hasSystem := messages[0].Role == brain.RoleSystem
	head := 0
	if hasSystem {
		head = 1
	}
	keepTail := 2
	if len(messages)-head < keepTail {
		return messages
	}

	kept := append([]brain.Message(nil), messages[:head]...)
	tail := messages[len(messages)-keepTail:]
	middle := messages[head : len(messages)-keepTail]

	for len(middle) > 0 {
		candidate := append(append(append([]brain.Message(nil), kept...), middle...), tail...)
		if a.cfg.Tokens.CountMessages(candidate) <= a.cfg.TokenBudget {
			break
		}
		middle = middle[1:]
	}

	slog.Debug("agent truncated conversation to fit token budget",
		"agent", a.cfg.Name, "budget", a.cfg.TokenBudget, "dropped", len(messages)-head-keepTail-len(middle))

	return append(append(kept, middle...), tail...)
}

func (a *Agent) emit(taskID string, t event.Type, payload map[string]any) {
	if a.cfg.Events == nil {
		return
	}
	a.cfg.Events.Publish(event.Event{
		Type:      t,
		Source:    a.cfg.Name,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
