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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/conductor/pkg/session"
)

// withInterruptSignal wraps ctx so SIGINT/SIGTERM cancel it cooperatively -
// the Executor observes the cancellation at its next suspension point and
// transitions the task to stopped (spec §5) rather than the process simply
// dying mid-turn.
func withInterruptSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// asTaskResult maps a drive loop's returned (Record, error) onto the CLI's
// exit-code table: a context cancellation (SIGINT) is 130 regardless of
// what status the record landed in; any other error, or a record whose
// status is failed, is a runtime error (2). Every other record, stopped
// included, maps to success (0).
func asTaskResult(ctx context.Context, rec session.Record, err error) (session.Record, error) {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return rec, interrupted(ctx.Err())
	}
	if err != nil {
		return rec, runtimeError(err)
	}
	if rec.Status == session.StatusFailed {
		msg := rec.Error
		if msg == "" {
			msg = "task failed"
		}
		return rec, runtimeError(errors.New(msg))
	}
	return rec, nil
}

// StartCmd implements `conductor start <prompt>` (spec §6 "prints task_id,
// exits 0").
type StartCmd struct {
	Prompt string `arg:"" help:"The task's initial prompt."`
}

func (c *StartCmd) Run(cli *CLI) error {
	exec, err := newExecutor(cli.Config, cli.SessionDir, cli.MaxRounds)
	if err != nil {
		return err
	}

	ctx, cancel := withInterruptSignal()
	defer cancel()

	rec, runErr := exec.Start(ctx, c.Prompt)
	rec, outcome := asTaskResult(ctx, rec, runErr)
	fmt.Println(rec.TaskID)
	return outcome
}

// ResumeCmd implements `conductor resume <task_id>`.
type ResumeCmd struct {
	TaskID string `arg:"" help:"The task to resume."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	exec, err := newExecutor(cli.Config, cli.SessionDir, cli.MaxRounds)
	if err != nil {
		return err
	}

	ctx, cancel := withInterruptSignal()
	defer cancel()

	rec, runErr := exec.Resume(ctx, c.TaskID)
	_, outcome := asTaskResult(ctx, rec, runErr)
	return outcome
}

// StopCmd implements `conductor stop <task_id>` ("returns once persisted").
type StopCmd struct {
	TaskID string `arg:"" help:"The task to stop."`
}

func (c *StopCmd) Run(cli *CLI) error {
	exec, err := newExecutor(cli.Config, cli.SessionDir, cli.MaxRounds)
	if err != nil {
		return err
	}
	rec, err := exec.Stop(context.Background(), c.TaskID)
	if err != nil {
		return runtimeError(err)
	}
	fmt.Printf("%s: %s\n", rec.TaskID, rec.Status)
	return nil
}

// ListCmd implements `conductor list [--status S]`.
type ListCmd struct {
	Status string `help:"Filter by status (created, running, paused, completed, failed, stopped)."`
}

func (c *ListCmd) Run(cli *CLI) error {
	store := session.NewFileStore(cli.SessionDir)

	filter := session.ListFilter{}
	if c.Status != "" {
		filter.Status = session.Status(c.Status)
	}

	recs, err := store.List(context.Background(), filter)
	if err != nil {
		return runtimeError(err)
	}
	for _, rec := range recs {
		fmt.Printf("%s\t%s\t%s\t%s\n", rec.TaskID, rec.Status, rec.CurrentAgent, rec.Prompt)
	}
	return nil
}

// DetailsCmd implements `conductor details <task_id>`.
type DetailsCmd struct {
	TaskID string `arg:"" help:"The task to show."`
}

func (c *DetailsCmd) Run(cli *CLI) error {
	store := session.NewFileStore(cli.SessionDir)
	rec, steps, err := store.Get(context.Background(), c.TaskID)
	if err != nil {
		return userError(err)
	}

	fmt.Printf("task_id:       %s\n", rec.TaskID)
	fmt.Printf("team:          %s\n", rec.TeamName)
	fmt.Printf("status:        %s\n", rec.Status)
	fmt.Printf("current_agent: %s\n", rec.CurrentAgent)
	fmt.Printf("round_count:   %d\n", rec.RoundCount)
	fmt.Printf("prompt:        %s\n", rec.Prompt)
	if rec.Error != "" {
		fmt.Printf("error:         %s\n", rec.Error)
	}
	fmt.Printf("steps:\n")
	for _, s := range steps {
		fmt.Printf("  [round %d] %s (%d messages)\n", s.Round, s.Agent, len(s.Messages))
	}
	return nil
}

// FindCmd implements `conductor find <description>`.
type FindCmd struct {
	Description string `arg:"" help:"A description to match against continuable tasks."`
}

func (c *FindCmd) Run(cli *CLI) error {
	store := session.NewFileStore(cli.SessionDir)
	rec, ok, err := store.FindContinuable(context.Background(), c.Description)
	if err != nil {
		return runtimeError(err)
	}
	if !ok {
		return userError(fmt.Errorf("no continuable task matches %q", c.Description))
	}
	fmt.Println(rec.TaskID)
	return nil
}
