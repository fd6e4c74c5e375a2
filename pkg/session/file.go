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

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// FileStore is the default Store: one directory per task holding
// metadata.json (the Record) and an append-only steps.jsonl transcript
// (spec §4.8's named example format).
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a Store rooted at baseDir; per-task directories are
// created lazily on first Create.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) taskDir(taskID string) string  { return filepath.Join(s.baseDir, taskID) }
func (s *FileStore) metaPath(taskID string) string { return filepath.Join(s.taskDir(taskID), "metadata.json") }
func (s *FileStore) stepsPath(taskID string) string {
	return filepath.Join(s.taskDir(taskID), "steps.jsonl")
}

func (s *FileStore) Create(_ context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.TaskID == "" {
		rec.TaskID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusCreated
	}
	rec.CreatedAt = nowIfZero(rec.CreatedAt)
	rec.UpdatedAt = rec.CreatedAt

	if err := os.MkdirAll(s.taskDir(rec.TaskID), 0o755); err != nil {
		return "", orcherr.New(orcherr.SessionIOError, "session", "create", "failed to create session directory", err)
	}
	if err := s.writeMeta(rec); err != nil {
		return "", err
	}
	return rec.TaskID, nil
}

func (s *FileStore) writeMeta(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "write_meta", "failed to encode session metadata", err)
	}
	if err := os.WriteFile(s.metaPath(rec.TaskID), data, 0o644); err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "write_meta", "failed to persist session metadata", err)
	}
	return nil
}

func (s *FileStore) readMeta(taskID string) (Record, error) {
	data, err := os.ReadFile(s.metaPath(taskID))
	if os.IsNotExist(err) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, orcherr.New(orcherr.SessionIOError, "session", "read_meta", "failed to read session metadata", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, orcherr.New(orcherr.SessionIOError, "session", "read_meta", "failed to decode session metadata", err)
	}
	return rec, nil
}

func (s *FileStore) Update(_ context.Context, taskID string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readMeta(taskID)
	if err != nil {
		return err
	}
	return s.writeMeta(patch.Apply(rec))
}

func (s *FileStore) AppendStep(_ context.Context, taskID string, step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.taskDir(taskID)); os.IsNotExist(err) {
		return ErrNotFound
	}
	step.Timestamp = nowIfZero(step.Timestamp)

	f, err := os.OpenFile(s.stepsPath(taskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to open transcript log", err)
	}
	defer f.Close()

	line, err := json.Marshal(step)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to encode step", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to persist step", err)
	}
	return f.Sync()
}

func (s *FileStore) readSteps(taskID string) ([]Step, error) {
	f, err := os.Open(s.stepsPath(taskID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, orcherr.New(orcherr.SessionIOError, "session", "read_steps", "failed to open transcript log", err)
	}
	defer f.Close()

	var steps []Step
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var step Step
		if err := json.Unmarshal(scanner.Bytes(), &step); err != nil {
			continue // skip a corrupt line rather than fail the whole read
		}
		steps = append(steps, step)
	}
	return steps, scanner.Err()
}

func (s *FileStore) Get(_ context.Context, taskID string) (Record, []Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readMeta(taskID)
	if err != nil {
		return Record{}, nil, err
	}
	steps, err := s.readSteps(taskID)
	if err != nil {
		return Record{}, nil, err
	}
	return rec, steps, nil
}

func (s *FileStore) List(_ context.Context, filter ListFilter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, orcherr.New(orcherr.SessionIOError, "session", "list", "failed to read session root", err)
	}

	var recs []Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := s.readMeta(e.Name())
		if err != nil {
			continue // a directory without valid metadata isn't a session
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[filter.Offset:]
	}
	if filter.Limit > 0 && len(recs) > filter.Limit {
		recs = recs[:filter.Limit]
	}
	return recs, nil
}

func (s *FileStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.taskDir(taskID)); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := os.RemoveAll(s.taskDir(taskID)); err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "delete", "failed to remove session directory", err)
	}
	return nil
}

func (s *FileStore) FindContinuable(ctx context.Context, description string) (Record, bool, error) {
	recs, err := s.List(ctx, ListFilter{})
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := bestMatch(description, recs)
	return rec, ok, nil
}

var _ Store = (*FileStore)(nil)
