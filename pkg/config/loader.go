// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/conductor/pkg/session"
)

// Loaded is the result of a successful Load: the decoded, defaulted,
// and validated Team config together with the hash a Task Session
// record stamps onto every task it creates (spec §4.8's
// config_snapshot_hash, used by Resume to detect config drift).
type Loaded struct {
	Team Team
	Hash string
}

// Load reads a Team's YAML config from path, expands environment
// variable references, decodes it into Team, and applies defaults and
// validation. It mirrors hector's original load pipeline (parse, expand,
// decode, default, validate) without that pipeline's multi-backend
// Provider abstraction: SPEC_FULL's config surface is a single local
// YAML file, so the indirection buys nothing here.
func Load(path string) (Loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(raw)
}

func decode(raw []byte) (Loaded, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Loaded{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	expanded := expandEnvVarsInData(doc)

	var cfg Team
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Loaded{}, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := dec.Decode(expanded); err != nil {
		return Loaded{}, fmt.Errorf("config: decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}

	return Loaded{Team: cfg, Hash: session.ConfigSnapshotHash(raw)}, nil
}

// Watch watches path for changes and invokes onChange with the newly
// loaded, defaulted, and validated config whenever it does. It watches
// the containing directory rather than the file itself, since editors
// commonly save by renaming a temp file over the original - a pattern
// that unregisters a direct file watch - and debounces the resulting
// burst of fs events, adapted from hector's original file provider.
func Watch(ctx context.Context, path string, onChange func(Loaded)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve path: %w", err)
	}
	dir := filepath.Dir(abs)
	base := filepath.Base(abs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		reload := func() {
			loaded, err := Load(abs)
			if err != nil {
				slog.Warn("config: reload failed, keeping previous config", "path", abs, "error", err)
				return
			}
			onChange(loaded)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(100*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config: watcher error", "error", err)
			}
		}
	}()

	return nil
}
