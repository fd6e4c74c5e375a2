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

// Command conductor is the CLI for the Task Executor: it starts, resumes,
// inspects, and stops Tasks driven by a Team configuration.
//
// Usage:
//
//	conductor start "summarize this repo" --config team.yaml
//	conductor resume <task_id>
//	conductor list --status paused
//	conductor details <task_id>
//	conductor find "summarize this repo"
//	conductor stop <task_id>
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/conductor/pkg/config"
)

// CLI is the top-level kong command tree (spec §6 "CLI surface").
type CLI struct {
	Start   StartCmd   `cmd:"" help:"Start a new task from a prompt."`
	Resume  ResumeCmd  `cmd:"" help:"Resume a paused or running task."`
	List    ListCmd    `cmd:"" help:"List persisted tasks."`
	Details DetailsCmd `cmd:"" help:"Show one task's record and transcript."`
	Find    FindCmd    `cmd:"" help:"Find a continuable task by description."`
	Stop    StopCmd    `cmd:"" help:"Stop a running or paused task."`

	Config     string `short:"c" help:"Path to the team configuration YAML." default:"team.yaml" type:"path"`
	SessionDir string `help:"Directory the Task Session Store persists under." default:".conductor/sessions" type:"path"`
	MaxRounds  int    `help:"Override the team config's max_rounds for this invocation."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// exitError carries the spec §6 exit-code table (0 success, 1 user error,
// 2 runtime error, 130 interrupted) through kong's plain error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error    { return &exitError{code: 1, err: err} }
func runtimeError(err error) error { return &exitError{code: 2, err: err} }
func interrupted(err error) error  { return &exitError{code: 130, err: err} }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conductor"),
		kong.Description("Task Executor CLI - run and inspect multi-agent Tasks."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	runErr := ctx.Run(&cli)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
	}
	os.Exit(exitCode(runErr))
}
