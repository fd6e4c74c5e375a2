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

// Package builder turns a decoded pkg/config.Team document into the live
// team.Config an Executor runs: resolving each agent's Brain, assembling
// the shared Tool Registry and Memory Provider, and translating handoffs
// into a team.HandoffRouter.
package builder

import (
	"fmt"
	"os"
	"strings"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/memory"
	"github.com/kadirpekel/conductor/pkg/orcherr"
	"github.com/kadirpekel/conductor/pkg/tool"
	"github.com/kadirpekel/conductor/team"
)

// Options supplies the pieces a Team document can't declare for itself:
// the shared Event Bus, and a Tool Registry pre-populated with whatever
// builtin tools this deployment offers (spec §6 tools[].type == "builtin"
// names are looked up here; "command" entries are registered into it by
// Build itself since the command and its arguments are fully described in
// the document).
type Options struct {
	Events   *event.Bus
	Builtins *tool.Registry // nil is treated as empty
}

// Build resolves doc into a ready-to-run team.Config.
func Build(doc config.Team, opts Options) (team.Config, error) {
	registry := opts.Builtins
	if registry == nil {
		registry = tool.NewRegistry()
	}

	mem, err := buildMemory(doc.Memory)
	if err != nil {
		return team.Config{}, err
	}

	installAutoEmitRules(doc.Events, opts.Events)

	agents := make(map[string]*agent.Agent, len(doc.Agents))
	for _, a := range doc.Agents {
		b, err := buildBrain(a.Brain)
		if err != nil {
			return team.Config{}, fmt.Errorf("agent %q: %w", a.Name, err)
		}

		allowed, registry2, err := resolveTools(a, registry, doc)
		if err != nil {
			return team.Config{}, fmt.Errorf("agent %q: %w", a.Name, err)
		}
		registry = registry2

		approval := approvalGate(a.ApprovalTools)

		agents[a.Name] = agent.New(agent.Config{
			Name: a.Name, Brain: b, Tools: registry, Allow: allowed,
			Memory: mem, Events: opts.Events,
			MaxToolRounds: a.MaxToolRounds, TokenBudget: a.TokenBudget,
			ApprovalRequired: approval,
		})
	}

	router := buildRouter(doc.Handoffs)

	mode := team.ModeAutonomous
	if doc.ExecutionMode == config.ExecutionModeStepThrough {
		mode = team.ModeStepThrough
	}

	return team.Config{
		Name: doc.Name, Entry: doc.Entry, Mode: mode,
		Agents: agents, Router: router, Memory: mem, Events: opts.Events,
		MaxRounds: doc.MaxRounds,
	}, nil
}

func buildBrain(b config.Brain) (brain.Brain, error) {
	switch strings.ToLower(b.Provider) {
	case "", "openai":
		apiKey := resolveAPIKey(b.APIKeyEnv, "OPENAI_API_KEY")
		return brain.NewOpenAI(brain.OpenAIConfig{
			APIKey: apiKey, BaseURL: b.BaseURL, Model: b.Model,
			Temperature: b.Temperature, MaxTokens: b.MaxTokens,
		}), nil
	default:
		return nil, orcherr.New(orcherr.ConfigError, "builder", "build_brain",
			fmt.Sprintf("unsupported brain provider %q", b.Provider), nil)
	}
}

func resolveAPIKey(envVar, fallback string) string {
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	return os.Getenv(fallback)
}

func buildMemory(m *config.Memory) (memory.Provider, error) {
	if m == nil {
		return memory.NopProvider{}, nil
	}
	switch strings.ToLower(m.Backend) {
	case "", "none":
		return memory.NopProvider{}, nil
	case "vector", "chromem":
		return memory.NewChromemProvider(nil), nil
	case "file":
		dir, _ := m.Parameters["base_dir"].(string)
		if dir == "" {
			dir = ".conductor/memory"
		}
		return memory.NewFileProvider(dir), nil
	default:
		return nil, orcherr.New(orcherr.ConfigError, "builder", "build_memory",
			fmt.Sprintf("unsupported memory backend %q", m.Backend), nil)
	}
}

// resolveTools registers any "command" tool entries this agent references
// that the registry doesn't already have, and returns the agent's
// allowlist. "builtin" entries must already be present in opts.Builtins;
// Build does not invent builtin tool implementations from a name alone.
func resolveTools(a config.Agent, registry *tool.Registry, doc config.Team) ([]string, *tool.Registry, error) {
	toolsByName := make(map[string]config.Tool, len(doc.Tools))
	for _, t := range doc.Tools {
		toolsByName[t.Name] = t
	}

	for _, name := range a.Tools {
		if _, ok := registry.Get(name); ok {
			continue
		}
		decl, ok := toolsByName[name]
		if !ok {
			return nil, nil, orcherr.New(orcherr.ConfigError, "builder", "resolve_tools",
				fmt.Sprintf("tool %q is not declared and not a registered builtin", name), nil)
		}
		switch decl.Type {
		case config.ToolTypeCommand:
			parts := strings.Fields(decl.Source)
			if len(parts) == 0 {
				return nil, nil, orcherr.New(orcherr.ConfigError, "builder", "resolve_tools",
					fmt.Sprintf("tool %q: command source is empty", name), nil)
			}
			desc := tool.NewCommandTool(name, "command-backed tool: "+decl.Source, parts[0], parts[1:]...)
			if err := registry.Register(desc, false); err != nil {
				return nil, nil, err
			}
		case config.ToolTypeBuiltin:
			return nil, nil, orcherr.New(orcherr.ConfigError, "builder", "resolve_tools",
				fmt.Sprintf("builtin tool %q was not supplied in Options.Builtins", name), nil)
		default:
			return nil, nil, orcherr.New(orcherr.ConfigError, "builder", "resolve_tools",
				fmt.Sprintf("tool %q: unsupported type %q", name, decl.Type), nil)
		}
	}

	return a.Tools, registry, nil
}

func approvalGate(names []string) agent.ApprovalGate {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(toolName string) bool { return set[toolName] }
}

// installAutoEmitRules installs doc's declared rules on bus, in document
// order, so bus.Publish synthesizes the follow-on events spec §6's
// events.auto_emit_patterns[] describes. A nil bus (no events configured
// for this build) is a no-op rather than an error, matching buildMemory's
// "missing section means disabled" posture.
func installAutoEmitRules(events config.Events, bus *event.Bus) {
	if bus == nil {
		return
	}
	for _, p := range events.AutoEmitPatterns {
		bus.AddAutoEmitRule(event.AutoEmitRule{
			Match:          event.Type(p.EventName),
			MetadataFilter: p.MetadataFilter,
			Emit:           event.Type(p.Emit),
			Exclusive:      p.Exclusive,
		})
	}
}

func buildRouter(handoffs []config.Handoff) *team.HandoffRouter {
	rules := make([]team.Rule, 0, len(handoffs))
	for _, h := range handoffs {
		rule := team.Rule{From: h.From, To: h.To}
		if h.Condition != "" {
			cond := h.Condition
			rule.Condition = func(lastOutput string) bool {
				return strings.Contains(lastOutput, cond)
			}
		}
		rules = append(rules, rule)
	}
	return team.NewHandoffRouter(rules, nil, nil)
}
