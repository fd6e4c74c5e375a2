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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// KVStore persists sessions in etcd: one key per record under
// <prefix>/meta/<task_id>, and one key per transcript step under
// <prefix>/steps/<task_id>/<zero-padded-sequence>, ordered lexically so a
// prefix range scan returns steps in append order.
type KVStore struct {
	client *clientv3.Client
	prefix string
}

// NewKVStore wraps an already-connected etcd client. prefix namespaces
// every key this Store writes (e.g. "/conductor/sessions").
func NewKVStore(client *clientv3.Client, prefix string) *KVStore {
	return &KVStore{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *KVStore) metaKey(taskID string) string { return fmt.Sprintf("%s/meta/%s", s.prefix, taskID) }
func (s *KVStore) stepsPrefix(taskID string) string {
	return fmt.Sprintf("%s/steps/%s/", s.prefix, taskID)
}
func (s *KVStore) stepKey(taskID string, seq int) string {
	return fmt.Sprintf("%s%010d", s.stepsPrefix(taskID), seq)
}

func (s *KVStore) Create(ctx context.Context, rec Record) (string, error) {
	if rec.TaskID == "" {
		rec.TaskID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusCreated
	}
	rec.CreatedAt = nowIfZero(rec.CreatedAt)
	rec.UpdatedAt = rec.CreatedAt

	if err := s.putRecord(ctx, rec); err != nil {
		return "", err
	}
	return rec.TaskID, nil
}

func (s *KVStore) putRecord(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "put", "failed to encode session record", err)
	}
	if _, err := s.client.Put(ctx, s.metaKey(rec.TaskID), string(data)); err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "put", "failed to write session record to etcd", err)
	}
	return nil
}

func (s *KVStore) getRecord(ctx context.Context, taskID string) (Record, error) {
	resp, err := s.client.Get(ctx, s.metaKey(taskID))
	if err != nil {
		return Record{}, orcherr.New(orcherr.SessionIOError, "session", "get", "failed to read session record from etcd", err)
	}
	if len(resp.Kvs) == 0 {
		return Record{}, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return Record{}, orcherr.New(orcherr.SessionIOError, "session", "get", "failed to decode session record", err)
	}
	return rec, nil
}

func (s *KVStore) Update(ctx context.Context, taskID string, patch Patch) error {
	rec, err := s.getRecord(ctx, taskID)
	if err != nil {
		return err
	}
	return s.putRecord(ctx, patch.Apply(rec))
}

func (s *KVStore) AppendStep(ctx context.Context, taskID string, step Step) error {
	if _, err := s.getRecord(ctx, taskID); err != nil {
		return err
	}
	step.Timestamp = nowIfZero(step.Timestamp)

	resp, err := s.client.Get(ctx, s.stepsPrefix(taskID), clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to count existing steps", err)
	}
	data, err := json.Marshal(step)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to encode step", err)
	}
	if _, err := s.client.Put(ctx, s.stepKey(taskID, int(resp.Count)), string(data)); err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to write step to etcd", err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, taskID string) (Record, []Step, error) {
	rec, err := s.getRecord(ctx, taskID)
	if err != nil {
		return Record{}, nil, err
	}

	resp, err := s.client.Get(ctx, s.stepsPrefix(taskID), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return Record{}, nil, orcherr.New(orcherr.SessionIOError, "session", "get", "failed to read steps from etcd", err)
	}

	steps := make([]Step, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var step Step
		if err := json.Unmarshal(kv.Value, &step); err != nil {
			continue // skip a corrupt entry rather than fail the whole read
		}
		steps = append(steps, step)
	}
	return rec, steps, nil
}

func (s *KVStore) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	resp, err := s.client.Get(ctx, s.prefix+"/meta/", clientv3.WithPrefix())
	if err != nil {
		return nil, orcherr.New(orcherr.SessionIOError, "session", "list", "failed to scan sessions in etcd", err)
	}

	var recs []Record
	for _, kv := range resp.Kvs {
		var rec Record
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			continue
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

func (s *KVStore) Delete(ctx context.Context, taskID string) error {
	resp, err := s.client.Delete(ctx, s.metaKey(taskID))
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "delete", "failed to delete session record from etcd", err)
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	if _, err := s.client.Delete(ctx, s.stepsPrefix(taskID), clientv3.WithPrefix()); err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "delete", "failed to delete session steps from etcd", err)
	}
	return nil
}

func (s *KVStore) FindContinuable(ctx context.Context, description string) (Record, bool, error) {
	recs, err := s.List(ctx, ListFilter{})
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := bestMatch(description, recs)
	return rec, ok, nil
}

var _ Store = (*KVStore)(nil)
