// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package team

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// DefaultTerminateMarkers are the text tokens that close a task when an
// agent emits them verbatim (spec §4.6, "configurable").
var DefaultTerminateMarkers = []string{"TERMINATE"}

// ConditionFunc evaluates whether an explicit handoff rule should fire,
// given the text of the agent's last output.
type ConditionFunc func(lastOutput string) bool

// Rule is an explicit "from A, transition to B" handoff (spec §4.6).
// Condition is optional; a nil Condition always fires.
type Rule struct {
	From      string
	To        string
	Condition ConditionFunc
}

// PatternRoute maps a natural-language handoff-intent phrase to a
// candidate agent. Patterns are tried in declaration order; the first
// match wins (spec §4.6).
type PatternRoute struct {
	Pattern *regexp.Regexp
	To      string
}

// HandoffRouter chooses the next agent given the current one and the
// latest Step output (spec §4.6).
type HandoffRouter struct {
	rules      []Rule
	cycle      []string
	patterns   []PatternRoute
	terminates []string
}

// NewHandoffRouter builds a router from explicit rules, an optional cycle
// (round-robin, consulted when no explicit rule fires), and
// natural-language patterns (consulted when neither a rule nor the cycle
// routes). The termination markers start as DefaultTerminateMarkers;
// WithTerminateMarkers replaces them.
func NewHandoffRouter(rules []Rule, cycle []string, patterns []PatternRoute) *HandoffRouter {
	return &HandoffRouter{
		rules:      rules,
		cycle:      cycle,
		patterns:   patterns,
		terminates: DefaultTerminateMarkers,
	}
}

// WithTerminateMarkers overrides the default termination tokens.
func (r *HandoffRouter) WithTerminateMarkers(markers ...string) *HandoffRouter {
	if len(markers) > 0 {
		r.terminates = markers
	}
	return r
}

// Route decides the next agent given the current agent's name and the
// text of its last output. terminate is true when the output carries a
// termination marker, in which case next is meaningless.
//
// Resolution order (spec §4.6): explicit rule (first matching From+
// Condition in declaration order) → circular chain (next agent after
// current in the configured cycle) → natural-language pattern (first
// regex match in declaration order) → error, since every Step must route
// somewhere.
func (r *HandoffRouter) Route(current, lastOutput string) (next string, terminate bool, err error) {
	for _, marker := range r.terminates {
		if strings.Contains(lastOutput, marker) {
			return "", true, nil
		}
	}

	for _, rule := range r.rules {
		if rule.From != current {
			continue
		}
		if rule.Condition == nil || rule.Condition(lastOutput) {
			return rule.To, false, nil
		}
	}

	if len(r.cycle) > 0 {
		for i, name := range r.cycle {
			if name == current {
				return r.cycle[(i+1)%len(r.cycle)], false, nil
			}
		}
	}

	for _, pr := range r.patterns {
		if pr.Pattern.MatchString(lastOutput) {
			return pr.To, false, nil
		}
	}

	return "", false, orcherr.New(orcherr.RoutingFailure, "team", "route",
		"no explicit rule, cycle entry, or pattern matched; routing is undefined for agent "+current, nil)
}

// targets returns every agent name referenced by this router's rules,
// cycle, and patterns, used by Team.New to validate against the Team's
// declared agents (spec §4.6 "Validation").
func (r *HandoffRouter) targets() []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, rule := range r.rules {
		add(rule.To)
	}
	for _, name := range r.cycle {
		add(name)
	}
	for _, pr := range r.patterns {
		add(pr.To)
	}
	return out
}

// dropRulesTargeting removes every rule, cycle entry, and pattern that
// routes to the given agent name, used when Team.New finds a handoff
// target that isn't a declared agent (spec §4.6: "the check is a
// warning, not a fatal error").
func (r *HandoffRouter) dropRulesTargeting(name string) {
	rules := r.rules[:0]
	for _, rule := range r.rules {
		if rule.To != name {
			rules = append(rules, rule)
		}
	}
	r.rules = rules

	cycle := r.cycle[:0]
	for _, c := range r.cycle {
		if c != name {
			cycle = append(cycle, c)
		}
	}
	r.cycle = cycle

	patterns := r.patterns[:0]
	for _, pr := range r.patterns {
		if pr.To != name {
			patterns = append(patterns, pr)
		}
	}
	r.patterns = patterns
}
