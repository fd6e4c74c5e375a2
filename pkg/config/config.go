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

// Package config declares and loads a Team's YAML configuration (spec
// §6): the agents it contains, the tools and memory they share, the
// handoff rules between them, and the execution parameters that bound a
// Task Executor's loop.
package config

import "fmt"

// Team is the top-level document a Team's YAML config decodes into
// (spec §6's configuration field table).
type Team struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`

	Agents   []Agent   `yaml:"agents" mapstructure:"agents"`
	Tools    []Tool    `yaml:"tools" mapstructure:"tools"`
	Handoffs []Handoff `yaml:"handoffs" mapstructure:"handoffs"`
	Memory   *Memory   `yaml:"memory" mapstructure:"memory"`
	Events   Events    `yaml:"events" mapstructure:"events"`

	// Entry names the agent a task starts at. Defaults to the first
	// declared agent when omitted.
	Entry string `yaml:"entry" mapstructure:"entry"`

	MaxRounds     int    `yaml:"max_rounds" mapstructure:"max_rounds"`
	ExecutionMode string `yaml:"execution_mode" mapstructure:"execution_mode"`
}

// Agent declares one participant (spec §6's agents[] entry).
type Agent struct {
	Name           string   `yaml:"name" mapstructure:"name"`
	Description    string   `yaml:"description" mapstructure:"description"`
	PromptTemplate string   `yaml:"prompt_template" mapstructure:"prompt_template"`
	Tools          []string `yaml:"tools" mapstructure:"tools"`
	Brain          Brain    `yaml:"brain" mapstructure:"brain"`

	// MaxToolRounds/TokenBudget/ApprovalTools supplement the distilled
	// spec (SPEC_FULL §4.4/§10): per-agent tool-loop cap, truncation
	// budget, and the tool names that pause for human approval before
	// running.
	MaxToolRounds int      `yaml:"max_tool_rounds" mapstructure:"max_tool_rounds"`
	TokenBudget   int      `yaml:"token_budget" mapstructure:"token_budget"`
	ApprovalTools []string `yaml:"approval_tools" mapstructure:"approval_tools"`
}

// Brain declares the LLM provider backing one agent (spec §6's
// agents[].brain entry).
type Brain struct {
	Provider              string  `yaml:"provider" mapstructure:"provider"`
	Model                 string  `yaml:"model" mapstructure:"model"`
	Temperature           float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens             int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	SupportsFunctionCalls bool    `yaml:"supports_function_calls" mapstructure:"supports_function_calls"`

	// BaseURL/APIKeyEnv are the ambient provider-wiring fields every
	// Brain adapter needs but that spec §6's distilled table omits;
	// APIKeyEnv names an environment variable rather than embedding a
	// secret directly in the document.
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
}

// Tool declares one callable a Team's agents can be offered (spec §6's
// tools[] entry). Types mirror pkg/tool's closed registration kinds.
type Tool struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Type   string `yaml:"type" mapstructure:"type"` // builtin | python_function | command
	Source string `yaml:"source" mapstructure:"source"`
}

const (
	ToolTypeBuiltin        = "builtin"
	ToolTypePythonFunction = "python_function"
	ToolTypeCommand        = "command"
)

// Handoff declares one explicit transition rule (spec §6's handoffs[]
// entry; spec §4.6 "unordered, interpreted by Router"). Condition, when
// set, is a substring that must appear in the From agent's last output
// for the rule to fire; omitted, the rule always fires. This is the
// simplest ConditionFunc shape team.Rule exposes, and covers every
// condition example in spec §4.6 ("looks_like_code", "TERMINATE")
// without introducing an expression language the spec never asked for.
type Handoff struct {
	From      string `yaml:"from" mapstructure:"from"`
	To        string `yaml:"to" mapstructure:"to"`
	Condition string `yaml:"condition" mapstructure:"condition"`
}

// Memory declares the Team's shared Memory Provider (spec §6's memory
// entry).
type Memory struct {
	Backend     string         `yaml:"backend" mapstructure:"backend"`
	Parameters  map[string]any `yaml:"parameters" mapstructure:"parameters"`
	VectorStore string         `yaml:"vector_store" mapstructure:"vector_store"`
	Embedder    string         `yaml:"embedder" mapstructure:"embedder"`
}

// Events declares the auto-emit rules installed on the Team's Event Bus
// (spec §6's events.auto_emit_patterns[] entry, supplemented with the
// Emit/Exclusive fields pkg/event.AutoEmitRule already requires - the
// distilled table's {event_name, metadata_filter} pair only identifies
// the trigger, not what it produces).
type Events struct {
	AutoEmitPatterns []AutoEmitPattern `yaml:"auto_emit_patterns" mapstructure:"auto_emit_patterns"`
}

// AutoEmitPattern is one entry in Events.AutoEmitPatterns.
type AutoEmitPattern struct {
	EventName      string         `yaml:"event_name" mapstructure:"event_name"`
	MetadataFilter map[string]any `yaml:"metadata_filter" mapstructure:"metadata_filter"`
	Emit           string         `yaml:"emit" mapstructure:"emit"`
	Exclusive      bool           `yaml:"exclusive" mapstructure:"exclusive"`
}

const (
	ExecutionModeAutonomous   = "autonomous"
	ExecutionModeStepThrough  = "step_through"
	DefaultMaxRounds          = 20
	DefaultAgentMaxToolRounds = 8
)

// SetDefaults fills in every field spec §4.5/§4.9 document a default for.
func (t *Team) SetDefaults() {
	if t.MaxRounds <= 0 {
		t.MaxRounds = DefaultMaxRounds
	}
	if t.ExecutionMode == "" {
		t.ExecutionMode = ExecutionModeAutonomous
	}
	if t.Entry == "" && len(t.Agents) > 0 {
		t.Entry = t.Agents[0].Name
	}
	for i := range t.Agents {
		if t.Agents[i].MaxToolRounds <= 0 {
			t.Agents[i].MaxToolRounds = DefaultAgentMaxToolRounds
		}
	}
}

// Validate checks the structural invariants SetDefaults doesn't resolve
// on its own: required fields, referential integrity between agents,
// handoffs, and tools. Handoffs naming an undeclared agent are tolerated
// here - team.New drops those rules itself with a logged warning (spec
// §4.5) - so Validate only rejects documents that can never produce a
// usable Team.
func (t *Team) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("team: name is required")
	}
	if len(t.Agents) == 0 {
		return fmt.Errorf("team %q: at least one agent is required", t.Name)
	}

	seen := make(map[string]bool, len(t.Agents))
	for _, a := range t.Agents {
		if a.Name == "" {
			return fmt.Errorf("team %q: agent name is required", t.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("team %q: duplicate agent name %q", t.Name, a.Name)
		}
		seen[a.Name] = true
		if a.Brain.Provider == "" {
			return fmt.Errorf("team %q: agent %q: brain.provider is required", t.Name, a.Name)
		}
		if a.Brain.Model == "" {
			return fmt.Errorf("team %q: agent %q: brain.model is required", t.Name, a.Name)
		}
	}

	if t.Entry != "" && !seen[t.Entry] {
		return fmt.Errorf("team %q: entry agent %q is not declared", t.Name, t.Entry)
	}

	for _, h := range t.Handoffs {
		if h.From == "" || h.To == "" {
			return fmt.Errorf("team %q: handoff entries require both from and to", t.Name)
		}
	}

	switch t.ExecutionMode {
	case "", ExecutionModeAutonomous, ExecutionModeStepThrough:
	default:
		return fmt.Errorf("team %q: unknown execution_mode %q", t.Name, t.ExecutionMode)
	}

	return nil
}
