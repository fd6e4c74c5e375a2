// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package executor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/brain/faketest"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/executor"
	"github.com/kadirpekel/conductor/pkg/orcherr"
	"github.com/kadirpekel/conductor/pkg/session"
	"github.com/kadirpekel/conductor/pkg/tool"
	"github.com/kadirpekel/conductor/team"
)

// collect gathers the first n events published to a Bus, mirroring
// pkg/event's own test helper since executor tests need the same
// wait-for-async-delivery shape.
func collect(n int) (event.Handler, func() []event.Event) {
	var mu sync.Mutex
	var got []event.Event
	done := make(chan struct{})
	var once sync.Once

	h := func(ev event.Event) {
		mu.Lock()
		got = append(got, ev)
		count := len(got)
		mu.Unlock()
		if count >= n {
			once.Do(func() { close(done) })
		}
	}
	wait := func() []event.Event {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]event.Event(nil), got...)
	}
	return h, wait
}

func soloTeamConfig(name string, b brain.Brain, mode team.ExecutionMode, maxRounds int, events *event.Bus) team.Config {
	ag := agent.New(agent.Config{Name: "solo", Brain: b, Tools: tool.NewRegistry(), Events: events})
	return team.Config{
		Name:      name,
		Entry:     "solo",
		Mode:      mode,
		Agents:    map[string]*agent.Agent{"solo": ag},
		Router:    team.NewHandoffRouter(nil, []string{"solo"}, nil),
		Events:    events,
		MaxRounds: maxRounds,
	}
}

func TestExecutor_Start_CompletesOnTerminationMarker(t *testing.T) {
	b := faketest.New("fake", faketest.Text("all done TERMINATE"))
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", b, team.ModeAutonomous, 10, bus),
		Store:  store,
		Events: bus,
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "write me a haiku")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.RoundCount)

	_, steps, err := store.Get(context.Background(), rec.TaskID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "all done TERMINATE", steps[0].Messages[0].Content)
}

func TestExecutor_RoundCapReachedCompletesTask(t *testing.T) {
	b := faketest.New("fake", faketest.Text("still working"))
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	h, wait := collect(1)
	bus.Subscribe(string(event.TaskCompleted), h)

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", b, team.ModeAutonomous, 3, bus),
		Store:  store,
		Events: bus,
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "keep iterating")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.RoundCount)

	got := wait()
	require.Len(t, got, 1)
	assert.Equal(t, "round_cap_reached", got[0].Payload["reason"])
}

func TestExecutor_StepThroughPausesThenResumeCompletes(t *testing.T) {
	b := faketest.New("fake", faketest.Text("thinking"), faketest.Text("wrapped up TERMINATE"))
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", b, team.ModeStepThrough, 10, bus),
		Store:  store,
		Events: bus,
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "draft this in two passes")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaused, rec.Status)
	assert.Equal(t, 1, rec.RoundCount)

	rec, err = ex.Resume(context.Background(), rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.RoundCount)

	_, steps, err := store.Get(context.Background(), rec.TaskID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
}

func TestExecutor_ResumeRejectsTerminalTask(t *testing.T) {
	b := faketest.New("fake", faketest.Text("done TERMINATE"))
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", b, team.ModeAutonomous, 10, bus),
		Store:  store,
		Events: bus,
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "finish fast")
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, rec.Status)

	_, err = ex.Resume(context.Background(), rec.TaskID)
	assert.Error(t, err)
}

func TestExecutor_Stop_TransitionsPausedTaskToStopped(t *testing.T) {
	b := faketest.New("fake", faketest.Text("still going"))
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", b, team.ModeStepThrough, 10, bus),
		Store:  store,
		Events: bus,
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "pause here")
	require.NoError(t, err)
	require.Equal(t, session.StatusPaused, rec.Status)

	rec, err = ex.Stop(context.Background(), rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusStopped, rec.Status)

	_, err = ex.Resume(context.Background(), rec.TaskID)
	assert.Error(t, err)
}

// transientThenOK fails with a transient Brain error for the first
// failCount calls to Stream, then defers to inner.
type transientThenOK struct {
	inner     brain.Brain
	failCount int
	calls     int
}

func (b *transientThenOK) Name() string { return "flaky" }
func (b *transientThenOK) Stream(ctx context.Context, req brain.Request) (<-chan brain.Chunk, error) {
	b.calls++
	if b.calls <= b.failCount {
		return nil, orcherr.New(orcherr.BrainTransient, "test", "stream", "simulated rate limit", nil)
	}
	return b.inner.Stream(ctx, req)
}

func TestExecutor_RetriesTransientBrainErrorThenSucceeds(t *testing.T) {
	flaky := &transientThenOK{inner: faketest.New("fake", faketest.Text("recovered TERMINATE")), failCount: 2}
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", flaky, team.ModeAutonomous, 10, bus),
		Store:  store,
		Events: bus,
		Retry:  executor.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "flaky provider")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, rec.Status)
	assert.Equal(t, 3, flaky.calls)
}

// permanentErrBrain always finishes with a fatal error, yielding
// orcherr.BrainPermanent from pkg/agent (never retryable).
type permanentErrBrain struct{ calls int }

func (b *permanentErrBrain) Name() string { return "broken" }
func (b *permanentErrBrain) Stream(context.Context, brain.Request) (<-chan brain.Chunk, error) {
	b.calls++
	ch := make(chan brain.Chunk, 1)
	ch <- brain.Chunk{Kind: brain.ChunkFinish, FinishReason: brain.FinishError, Err: assertError{}}
	close(ch)
	return ch, nil
}

type assertError struct{}

func (assertError) Error() string { return "content filter triggered" }

func TestExecutor_PermanentBrainErrorFailsWithoutRetrying(t *testing.T) {
	b := &permanentErrBrain{}
	bus := event.New(event.Config{Source: "test"})
	defer bus.Close(time.Second)
	store := session.NewFileStore(t.TempDir())

	h, wait := collect(1)
	bus.Subscribe(string(event.TaskFailed), h)

	ex, err := executor.New(executor.Config{
		Team:   soloTeamConfig("writers", b, team.ModeAutonomous, 10, bus),
		Store:  store,
		Events: bus,
	})
	require.NoError(t, err)

	rec, err := ex.Start(context.Background(), "this will fail")
	require.Error(t, err)
	assert.Equal(t, session.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
	assert.Equal(t, 1, b.calls)

	got := wait()
	require.Len(t, got, 1)
}
