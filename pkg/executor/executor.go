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

// Package executor implements the Task Executor (spec §4.9): the driver
// that turns a Team's handoff loop into an auditable, resumable Task. One
// Executor instance binds a Team to a Session Store and Event Bus and
// drives any number of that Team's tasks, one agent turn at a time,
// persisting and emitting after every turn so a crash or a cooperative
// pause never loses progress.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/observability"
	"github.com/kadirpekel/conductor/pkg/orcherr"
	"github.com/kadirpekel/conductor/pkg/session"
	"github.com/kadirpekel/conductor/team"
)

// RetryPolicy controls how the Executor responds to a transient Brain
// error (spec §4.9): retried with exponential backoff up to MaxAttempts
// total tries. Permanent Brain errors and routing failures are never
// retried here - orcherr.IsRetryable draws that line. Tool errors never
// reach this policy at all: pkg/agent turns a failed tool call into a
// tool_result message, not a Go error, so the Executor only ever observes
// Brain-level failures bubbling out of Team.Resume.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches spec §4.9's stated policy: retried up to 3
// attempts total with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 4 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Config configures an Executor. Team is passed through to team.New
// with Mode forced to team.ModeStepThrough (see New's doc comment); the
// declared Mode is kept separately to decide the outer driving cadence.
type Config struct {
	Team   team.Config
	Store  session.Store
	Events *event.Bus
	Tracer *observability.Tracer // nil disables span emission

	Retry RetryPolicy // zero value resolves to DefaultRetryPolicy()
}

// Executor drives one Team's tasks through the state machine in spec
// §4.9:
//
//	created --start--> running --step_ok--> running
//	                       |
//	                       |--pause--> paused --resume--> running
//	                       |--terminate_signal--> completed
//	                       |--round_cap_reached--> completed
//	                       |--stop()--> stopped
//	                       `--fatal_error--> failed
//	paused --stop()--> stopped
//
// completed, failed, and stopped are terminal.
//
// The Team itself always runs internally in step_through mode regardless
// of what cfg.Team.Mode declares: that's what gives the Executor a
// turn-at-a-time boundary to persist, emit, and check for cancellation at.
// What cfg.Team.Mode actually controls, from the Executor's side, is
// whether the *outer* loop keeps calling the Team on the caller's behalf
// (autonomous) or returns control to the caller after exactly one turn
// (step_through), the same distinction a standalone Team makes for
// itself. See DESIGN.md's Open Question decisions for why this split
// exists rather than trusting the Team's own Mode end to end.
type Executor struct {
	team         *team.Team
	declaredMode team.ExecutionMode
	store        session.Store
	events       *event.Bus
	tracer       *observability.Tracer
	retry        RetryPolicy

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New validates cfg.Team, constructs the internal step-through Team, and
// returns an Executor ready to Start or Resume tasks.
func New(cfg Config) (*Executor, error) {
	declared := cfg.Team.Mode
	if declared == "" {
		declared = team.ModeAutonomous
	}

	stepCfg := cfg.Team
	stepCfg.Mode = team.ModeStepThrough
	tm, err := team.New(stepCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Store == nil {
		return nil, orcherr.New(orcherr.ConfigError, "executor", "new", "a session store is required", nil)
	}

	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}

	return &Executor{
		team:         tm,
		declaredMode: declared,
		store:        cfg.Store,
		events:       cfg.Events,
		tracer:       cfg.Tracer,
		retry:        retry,
		cancels:      make(map[string]context.CancelFunc),
	}, nil
}

// Start creates a new task from prompt and drives it from the Team's entry
// agent: created -> running, then the loop contract below.
func (e *Executor) Start(ctx context.Context, prompt string) (session.Record, error) {
	rec := session.Record{
		TeamName:     e.team.Name(),
		Status:       session.StatusCreated,
		Prompt:       prompt,
		CurrentAgent: e.team.Entry(),
	}
	taskID, err := e.store.Create(ctx, rec)
	if err != nil {
		return session.Record{}, orcherr.New(orcherr.SessionIOError, "executor", "start", "failed to create session", err)
	}
	e.emit(taskID, event.TaskCreated, map[string]any{"team": e.team.Name()})
	e.emit(taskID, event.TaskStarted, map[string]any{"team": e.team.Name()})

	history := []brain.Message{{Role: brain.RoleUser, Content: prompt}}
	return e.drive(ctx, taskID, e.team.Entry(), history, 0)
}

// Resume loads a persisted task, re-hydrates its transcript into Brain
// history, and re-enters the loop at step 1 with status running (spec
// §4.9 "resume(task_id)"). A task already in a terminal state cannot be
// resumed.
func (e *Executor) Resume(ctx context.Context, taskID string) (session.Record, error) {
	rec, steps, err := e.store.Get(ctx, taskID)
	if err != nil {
		return session.Record{}, err
	}
	if isTerminal(rec.Status) {
		return session.Record{}, orcherr.New(orcherr.ConfigError, "executor", "resume",
			fmt.Sprintf("task %s is already %s and cannot be resumed", taskID, rec.Status), nil)
	}

	history := []brain.Message{{Role: brain.RoleUser, Content: rec.Prompt}}
	for _, s := range steps {
		history = append(history, s.Messages...)
	}

	running := session.StatusRunning
	if err := e.store.Update(ctx, taskID, session.Patch{Status: &running}); err != nil {
		return session.Record{}, orcherr.New(orcherr.SessionIOError, "executor", "resume", "failed to mark task running", err)
	}
	e.emit(taskID, event.TaskResumed, map[string]any{"round_count": rec.RoundCount})

	current := rec.CurrentAgent
	if current == "" {
		current = e.team.Entry()
	}
	return e.drive(ctx, taskID, current, history, rec.RoundCount)
}

// Stop requests cancellation of taskID. If a drive loop for this task is
// active in this process, its context is cancelled so the next suspension
// point (spec §5) observes it and transitions to stopped. Otherwise - the
// common case for a single-shot CLI invocation, where the process that ran
// the task has already exited - the persisted record is patched to stopped
// directly, since there is no live loop left to cooperate with.
func (e *Executor) Stop(ctx context.Context, taskID string) (session.Record, error) {
	e.mu.Lock()
	cancel, active := e.cancels[taskID]
	e.mu.Unlock()
	if active {
		cancel()
		return e.reload(ctx, taskID)
	}

	rec, _, err := e.store.Get(ctx, taskID)
	if err != nil {
		return session.Record{}, err
	}
	if isTerminal(rec.Status) {
		return rec, nil
	}
	stopped := session.StatusStopped
	if err := e.store.Update(ctx, taskID, session.Patch{Status: &stopped}); err != nil {
		return session.Record{}, orcherr.New(orcherr.SessionIOError, "executor", "stop", "failed to persist stop", err)
	}
	e.emit(taskID, event.TaskStopped, nil)
	return e.reload(ctx, taskID)
}

// drive runs the loop contract (spec §4.9) starting at current/history/
// round, returning once the task reaches a terminal state or pauses.
func (e *Executor) drive(ctx context.Context, taskID, current string, history []brain.Message, round int) (session.Record, error) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[taskID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, taskID)
		e.mu.Unlock()
		cancel()
	}()

	for {
		// Step 1: cancellation requested -> stopped.
		if runCtx.Err() != nil {
			return e.transition(ctx, taskID, session.StatusStopped, event.TaskStopped, nil)
		}

		// Steps 4-5: run one agent turn, retrying transient Brain errors.
		e.emit(taskID, event.AgentTurnStarted, map[string]any{"agent": current, "round": round})
		res, err := e.stepWithRetry(runCtx, taskID, current, history, round)
		if err != nil {
			return e.transition(ctx, taskID, session.StatusFailed, event.TaskFailed, map[string]any{"error": err.Error()}, withErr(err))
		}

		// Step 6: append the turn's messages, advance round_count.
		round = res.Rounds
		history = append(history, res.Messages...)
		step := session.Step{Round: round, Agent: current, Messages: res.Messages, Timestamp: time.Now().UTC()}
		if err := e.store.AppendStep(ctx, taskID, step); err != nil {
			wrapped := orcherr.New(orcherr.SessionIOError, "executor", "drive", "failed to append transcript step", err)
			return e.transition(ctx, taskID, session.StatusFailed, event.TaskFailed, map[string]any{"error": wrapped.Error()}, withErr(wrapped))
		}

		// Step 7: turn_finished + step_completed.
		e.emit(taskID, event.AgentTurnFinished, map[string]any{"agent": current, "round": round})
		e.emit(taskID, event.TaskStepCompleted, map[string]any{"round": round})

		nextAgent := current
		if res.Next != "" {
			nextAgent = res.Next
		}

		// A tool call awaiting human approval pauses the task exactly like
		// a step_through boundary, so the same resume path re-enters it
		// (SPEC_FULL §10 human-in-the-loop supplement).
		if res.PendingApproval != nil {
			pendingAgent := res.PendingAgent
			if err := e.persist(ctx, taskID, session.StatusPaused, round, pendingAgent); err != nil {
				return e.transition(ctx, taskID, session.StatusFailed, event.TaskFailed, map[string]any{"error": err.Error()}, withErr(err))
			}
			e.emit(taskID, event.TaskPaused, map[string]any{"reason": "pending_approval", "tool": res.PendingApproval.Call.Name})
			return e.reload(ctx, taskID)
		}

		// Step 8: persist.
		if err := e.persist(ctx, taskID, session.StatusRunning, round, nextAgent); err != nil {
			return e.transition(ctx, taskID, session.StatusFailed, event.TaskFailed, map[string]any{"error": err.Error()}, withErr(err))
		}

		if res.Terminated {
			return e.transition(ctx, taskID, session.StatusCompleted, event.TaskCompleted, map[string]any{"reason": "terminated"})
		}

		// Step 9: round cap.
		if round >= e.team.MaxRounds() {
			return e.transition(ctx, taskID, session.StatusCompleted, event.TaskCompleted, map[string]any{"reason": "round_cap_reached"})
		}

		// Step 10: step_through returns control to the caller after one turn.
		if e.declaredMode == team.ModeStepThrough {
			if err := e.persist(ctx, taskID, session.StatusPaused, round, nextAgent); err != nil {
				return e.transition(ctx, taskID, session.StatusFailed, event.TaskFailed, map[string]any{"error": err.Error()}, withErr(err))
			}
			e.emit(taskID, event.TaskPaused, map[string]any{"reason": "step_through"})
			return e.reload(ctx, taskID)
		}

		current = nextAgent
	}
}

// stepWithRetry drives exactly one Team.Resume call, retrying transient
// Brain errors with exponential backoff (spec §4.9). The whole attempt
// sequence is wrapped in a single OpenTelemetry span so a retried round
// still reads as one unit of work in a trace.
func (e *Executor) stepWithRetry(ctx context.Context, taskID, current string, history []brain.Message, round int) (team.Result, error) {
	spanCtx, span := e.tracer.StartAgentRun(ctx, taskID, current, "", round)
	defer span.End()

	var lastErr error
attempts:
	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		res, err := e.team.Resume(spanCtx, taskID, current, history, round)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !orcherr.IsRetryable(err) || attempt == e.retry.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(e.retry.delay(attempt)):
		case <-spanCtx.Done():
			lastErr = spanCtx.Err()
			break attempts
		}
	}
	e.tracer.RecordError(span, lastErr)
	return team.Result{}, lastErr
}

// persist applies a status/round/current-agent patch in one call.
func (e *Executor) persist(ctx context.Context, taskID string, status session.Status, round int, currentAgent string) error {
	if err := e.store.Update(ctx, taskID, session.Patch{Status: &status, RoundCount: &round, CurrentAgent: &currentAgent}); err != nil {
		return orcherr.New(orcherr.SessionIOError, "executor", "drive", "failed to persist session", err)
	}
	return nil
}

type transitionOpt func(*transitionState)
type transitionState struct{ err error }

func withErr(err error) transitionOpt { return func(s *transitionState) { s.err = err } }

// transition persists a terminal status, emits the matching event, and
// reloads the record. When opts carries withErr, that error is returned
// alongside the reloaded record, or alongside an empty record if the
// persist itself failed.
func (e *Executor) transition(ctx context.Context, taskID string, status session.Status, evt event.Type, payload map[string]any, opts ...transitionOpt) (session.Record, error) {
	var st transitionState
	for _, o := range opts {
		o(&st)
	}

	patch := session.Patch{Status: &status}
	if st.err != nil {
		msg := st.err.Error()
		patch.Error = &msg
	}
	if err := e.store.Update(ctx, taskID, patch); err != nil {
		wrapped := orcherr.New(orcherr.SessionIOError, "executor", "transition", "failed to persist terminal status", err)
		if st.err != nil {
			return session.Record{}, st.err
		}
		return session.Record{}, wrapped
	}
	e.emit(taskID, evt, payload)

	rec, loadErr := e.reload(ctx, taskID)
	if st.err != nil {
		return rec, st.err
	}
	return rec, loadErr
}

func (e *Executor) reload(ctx context.Context, taskID string) (session.Record, error) {
	rec, _, err := e.store.Get(ctx, taskID)
	if err != nil {
		return session.Record{}, orcherr.New(orcherr.SessionIOError, "executor", "reload", "failed to reload session", err)
	}
	return rec, nil
}

func (e *Executor) emit(taskID string, t event.Type, payload map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(event.Event{
		Type: t, Source: e.team.Name(), TaskID: taskID, Timestamp: time.Now().UTC(), Payload: payload,
	})
}

func isTerminal(s session.Status) bool {
	return s == session.StatusCompleted || s == session.StatusFailed || s == session.StatusStopped
}
