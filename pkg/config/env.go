// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package config

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

var (
	envVarWithDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-([^}]*)\}`)
	envVarBraced      = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	envVarSimple      = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// LoadEnvFiles loads .env.local then .env from the current directory,
// in that order, without overriding variables already set in the
// process environment. Missing files are not an error.
func LoadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return err
		}
	}
	return nil
}

// expandEnvVars resolves ${VAR}, ${VAR:-default}, and $VAR references in
// s against the process environment. An unset ${VAR} or $VAR with no
// default expands to the empty string, matching shell behavior under
// `set +u`.
func expandEnvVars(s string) string {
	s = envVarWithDefault.ReplaceAllStringFunc(s, func(m string) string {
		groups := envVarWithDefault.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
	s = envVarBraced.ReplaceAllStringFunc(s, func(m string) string {
		groups := envVarBraced.FindStringSubmatch(m)
		return os.Getenv(groups[1])
	})
	s = envVarSimple.ReplaceAllStringFunc(s, func(m string) string {
		groups := envVarSimple.FindStringSubmatch(m)
		return os.Getenv(groups[1])
	})
	return s
}

// expandEnvVarsInData recursively walks a decoded YAML document (as
// produced by yaml.v3 into map[string]any/[]any/string) and expands
// environment variable references in every string value. Map keys and
// non-string scalar values are left untouched.
func expandEnvVarsInData(v any) any {
	switch t := v.(type) {
	case string:
		return expandEnvVars(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = expandEnvVarsInData(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = expandEnvVarsInData(val)
		}
		return out
	default:
		return v
	}
}
