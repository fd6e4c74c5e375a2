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
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// SQLStore persists sessions in a relational table via database/sql. The
// driver name ("sqlite3", "mysql", "postgres") selects dialect-specific
// placeholder syntax; everything else is driver-agnostic.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens db and ensures its schema exists. driver must be one
// of "sqlite3", "mysql", "postgres" - the drivers this module links.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, orcherr.New(orcherr.SessionIOError, "session", "open", "failed to open session database", err)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	autoincrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		autoincrement = "SERIAL PRIMARY KEY"
	} else if s.driver == "mysql" {
		autoincrement = "INTEGER PRIMARY KEY AUTO_INCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			task_id              VARCHAR(64) PRIMARY KEY,
			team_name            VARCHAR(255) NOT NULL,
			status               VARCHAR(32) NOT NULL,
			prompt               TEXT,
			current_agent        VARCHAR(255),
			round_count          INTEGER NOT NULL DEFAULT 0,
			config_snapshot_hash VARCHAR(64),
			error                TEXT,
			created_at           TIMESTAMP NOT NULL,
			updated_at           TIMESTAMP NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_steps (
			id        %s,
			task_id   VARCHAR(64) NOT NULL,
			round     INTEGER NOT NULL,
			agent     VARCHAR(255) NOT NULL,
			messages  TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)`, autoincrement),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return orcherr.New(orcherr.SessionIOError, "session", "migrate", "failed to create session schema", err)
		}
	}
	return nil
}

// ph returns the driver-appropriate positional placeholder for argument n
// (1-indexed): "?" for sqlite3/mysql, "$n" for postgres.
func (s *SQLStore) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Create(ctx context.Context, rec Record) (string, error) {
	if rec.TaskID == "" {
		rec.TaskID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusCreated
	}
	rec.CreatedAt = nowIfZero(rec.CreatedAt)
	rec.UpdatedAt = rec.CreatedAt

	query := fmt.Sprintf(`INSERT INTO sessions
		(task_id, team_name, status, prompt, current_agent, round_count, config_snapshot_hash, error, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))

	_, err := s.db.ExecContext(ctx, query,
		rec.TaskID, rec.TeamName, string(rec.Status), rec.Prompt, rec.CurrentAgent,
		rec.RoundCount, rec.ConfigSnapshotHash, rec.Error, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return "", orcherr.New(orcherr.SessionIOError, "session", "create", "failed to insert session", err)
	}
	return rec.TaskID, nil
}

func (s *SQLStore) scanRecord(row *sql.Row) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.TaskID, &rec.TeamName, &status, &rec.Prompt, &rec.CurrentAgent,
		&rec.RoundCount, &rec.ConfigSnapshotHash, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, orcherr.New(orcherr.SessionIOError, "session", "scan", "failed to read session row", err)
	}
	rec.Status = Status(status)
	return rec, nil
}

func (s *SQLStore) getRecord(ctx context.Context, taskID string) (Record, error) {
	query := fmt.Sprintf(`SELECT task_id, team_name, status, prompt, current_agent, round_count,
		config_snapshot_hash, error, created_at, updated_at FROM sessions WHERE task_id = %s`, s.ph(1))
	return s.scanRecord(s.db.QueryRowContext(ctx, query, taskID))
}

func (s *SQLStore) Update(ctx context.Context, taskID string, patch Patch) error {
	rec, err := s.getRecord(ctx, taskID)
	if err != nil {
		return err
	}
	rec = patch.Apply(rec)

	query := fmt.Sprintf(`UPDATE sessions SET status = %s, current_agent = %s, round_count = %s,
		error = %s, updated_at = %s WHERE task_id = %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	res, err := s.db.ExecContext(ctx, query, string(rec.Status), rec.CurrentAgent, rec.RoundCount, rec.Error, rec.UpdatedAt, taskID)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "update", "failed to update session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) AppendStep(ctx context.Context, taskID string, step Step) error {
	if _, err := s.getRecord(ctx, taskID); err != nil {
		return err
	}
	step.Timestamp = nowIfZero(step.Timestamp)

	messages, err := json.Marshal(step.Messages)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to encode step messages", err)
	}

	query := fmt.Sprintf(`INSERT INTO session_steps (task_id, round, agent, messages, timestamp)
		VALUES (%s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	_, err = s.db.ExecContext(ctx, query, taskID, step.Round, step.Agent, string(messages), step.Timestamp)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "append_step", "failed to insert step", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, taskID string) (Record, []Step, error) {
	rec, err := s.getRecord(ctx, taskID)
	if err != nil {
		return Record{}, nil, err
	}

	query := fmt.Sprintf(`SELECT round, agent, messages, timestamp FROM session_steps
		WHERE task_id = %s ORDER BY id ASC`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return Record{}, nil, orcherr.New(orcherr.SessionIOError, "session", "get", "failed to query steps", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var step Step
		var messages string
		if err := rows.Scan(&step.Round, &step.Agent, &messages, &step.Timestamp); err != nil {
			return Record{}, nil, orcherr.New(orcherr.SessionIOError, "session", "get", "failed to scan step row", err)
		}
		if err := json.Unmarshal([]byte(messages), &step.Messages); err != nil {
			return Record{}, nil, orcherr.New(orcherr.SessionIOError, "session", "get", "failed to decode step messages", err)
		}
		steps = append(steps, step)
	}
	return rec, steps, rows.Err()
}

func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	query := `SELECT task_id, team_name, status, prompt, current_agent, round_count,
		config_snapshot_hash, error, created_at, updated_at FROM sessions`
	var args []any
	if filter.Status != "" {
		query += fmt.Sprintf(" WHERE status = %s", s.ph(1))
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, orcherr.New(orcherr.SessionIOError, "session", "list", "failed to query sessions", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.TaskID, &rec.TeamName, &status, &rec.Prompt, &rec.CurrentAgent,
			&rec.RoundCount, &rec.ConfigSnapshotHash, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, orcherr.New(orcherr.SessionIOError, "session", "list", "failed to scan session row", err)
		}
		rec.Status = Status(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM sessions WHERE task_id = %s`, s.ph(1)), taskID)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "delete", "failed to delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM session_steps WHERE task_id = %s`, s.ph(1)), taskID)
	if err != nil {
		return orcherr.New(orcherr.SessionIOError, "session", "delete", "failed to delete session steps", err)
	}
	return nil
}

func (s *SQLStore) FindContinuable(ctx context.Context, description string) (Record, bool, error) {
	recs, err := s.List(ctx, ListFilter{})
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := bestMatch(description, recs)
	return rec, ok, nil
}

// Close releases the underlying database connection.
func (s *SQLStore) Close() error { return s.db.Close() }

var _ Store = (*SQLStore)(nil)
