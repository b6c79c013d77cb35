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

package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SQLSaver stores checkpoints in a SQL database.
// Supported dialects are postgres, mysql and sqlite.
type SQLSaver struct {
	db      *sql.DB
	dialect string
}

const (
	createCheckpointTableSQL = `
CREATE TABLE IF NOT EXISTS plan_checkpoints (
    id VARCHAR(64) PRIMARY KEY,
    thread_id VARCHAR(255) NOT NULL,
    parent_id VARCHAR(64),
    step INTEGER NOT NULL,
    source VARCHAR(32) NOT NULL,
    next_node VARCHAR(128),
    state_json TEXT NOT NULL,
    interrupt_json TEXT,
    resume_json TEXT,
    created_at BIGINT NOT NULL
)`

	// MySQL has no CREATE INDEX IF NOT EXISTS, so its indexes are inline.
	createCheckpointTableMySQL = `
CREATE TABLE IF NOT EXISTS plan_checkpoints (
    id VARCHAR(64) PRIMARY KEY,
    thread_id VARCHAR(255) NOT NULL,
    parent_id VARCHAR(64),
    step INTEGER NOT NULL,
    source VARCHAR(32) NOT NULL,
    next_node VARCHAR(128),
    state_json LONGTEXT NOT NULL,
    interrupt_json LONGTEXT,
    resume_json LONGTEXT,
    created_at BIGINT NOT NULL,
    INDEX idx_plan_checkpoints_thread (thread_id, created_at)
)`

	createCheckpointIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_plan_checkpoints_thread ON plan_checkpoints(thread_id, created_at)`

	checkpointColumns = `id, thread_id, parent_id, step, source, next_node, state_json, interrupt_json, resume_json, created_at`
)

// NewSQLSaver creates a saver over an existing connection pool and
// initializes the schema.
func NewSQLSaver(ctx context.Context, db *sql.DB, dialect string) (*SQLSaver, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLSaver{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	return s, nil
}

func (s *SQLSaver) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.dialect == "mysql" {
		_, err := s.db.ExecContext(ctx, createCheckpointTableMySQL)
		return err
	}
	if _, err := s.db.ExecContext(ctx, createCheckpointTableSQL); err != nil {
		return fmt.Errorf("failed to create plan_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createCheckpointIndexSQL); err != nil {
		return fmt.Errorf("failed to create thread index: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLSaver) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for _, r := range query {
		if r == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLSaver) Put(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.ID == "" || cp.ThreadID == "" {
		return fmt.Errorf("checkpoint id and thread_id are required")
	}
	var resume []byte
	if len(cp.ResumeValues) > 0 {
		var err error
		if resume, err = json.Marshal(cp.ResumeValues); err != nil {
			return fmt.Errorf("failed to encode resume values: %w", err)
		}
	}

	query := s.rebind(`INSERT INTO plan_checkpoints (` + checkpointColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		cp.ID, cp.ThreadID, nullString(cp.ParentID), cp.Step, string(cp.Source),
		nullString(cp.Next), string(cp.State), nullString(string(cp.Interrupt)),
		nullString(string(resume)), cp.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	slog.Debug("Saved checkpoint", "thread_id", cp.ThreadID, "checkpoint_id", cp.ID, "next", cp.Next)
	return nil
}

func (s *SQLSaver) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	var row *sql.Row
	if checkpointID == "" {
		row = s.db.QueryRowContext(ctx, s.rebind(
			`SELECT `+checkpointColumns+` FROM plan_checkpoints WHERE thread_id = ? ORDER BY created_at DESC, step DESC LIMIT 1`),
			threadID)
	} else {
		row = s.db.QueryRowContext(ctx, s.rebind(
			`SELECT `+checkpointColumns+` FROM plan_checkpoints WHERE thread_id = ? AND id = ?`),
			threadID, checkpointID)
	}

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		if checkpointID == "" {
			return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
		}
		return nil, fmt.Errorf("checkpoint %q: %w", checkpointID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLSaver) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM plan_checkpoints WHERE thread_id = ? ORDER BY created_at DESC, step DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLSaver) Prune(ctx context.Context, threadID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	list, err := s.List(ctx, threadID, 0)
	if err != nil {
		return err
	}
	if len(list) <= keep {
		return nil
	}
	cutoff := list[keep-1].CreatedAt.UnixNano()
	_, err = s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM plan_checkpoints WHERE thread_id = ? AND created_at < ?`), threadID, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return nil
}

func (s *SQLSaver) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM plan_checkpoints WHERE thread_id = ?`), threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by config.DBPool.
func (s *SQLSaver) Close() error { return nil }

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(sc scanner) (*Checkpoint, error) {
	var (
		cp                         Checkpoint
		parent, next, intr, resume sql.NullString
		source, stateJSON          string
		createdAt                  int64
	)
	if err := sc.Scan(&cp.ID, &cp.ThreadID, &parent, &cp.Step, &source, &next,
		&stateJSON, &intr, &resume, &createdAt); err != nil {
		return nil, err
	}
	cp.ParentID = parent.String
	cp.Source = Source(source)
	cp.Next = next.String
	cp.State = json.RawMessage(stateJSON)
	if intr.Valid && intr.String != "" {
		cp.Interrupt = json.RawMessage(intr.String)
	}
	if resume.Valid && resume.String != "" {
		if err := json.Unmarshal([]byte(resume.String), &cp.ResumeValues); err != nil {
			return nil, fmt.Errorf("failed to decode resume values: %w", err)
		}
	}
	cp.CreatedAt = time.Unix(0, createdAt)
	return &cp, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Saver = (*SQLSaver)(nil)
