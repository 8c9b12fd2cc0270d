/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// language=SQL
const insertSnapshotSQL = `INSERT INTO snapshots(project_id, ts, state) VALUES (?, ?, ?)`

// language=SQL
const selectLatestSnapshotSQL = `SELECT ts, state FROM snapshots WHERE project_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
const listSnapshotsSQL = `SELECT ts, state FROM snapshots WHERE project_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE project_id = ? AND id NOT IN (
	SELECT id FROM (SELECT id FROM snapshots WHERE project_id = ? ORDER BY ts DESC, id DESC LIMIT ?) AS recent
)`

// Snapshot is one saved canvas state of a project.
type Snapshot struct {
	TS    time.Time
	State []byte
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) appendSnapshot(ctx context.Context, ex execer, projectID string, state []byte, ts time.Time) error {
	if _, err := ex.ExecContext(ctx, s.rebind(insertSnapshotSQL), projectID, ts.UTC().Format(tsLayout), string(state)); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	if _, err := ex.ExecContext(ctx, s.rebind(pruneOldSnapshotsSQL), projectID, projectID, s.keep); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// AppendSnapshot records a canvas state for the project and prunes the log to the configured size.
func (s *Store) AppendSnapshot(ctx context.Context, projectID string, state []byte, ts time.Time) error {
	if len(state) == 0 {
		return errors.New("empty snapshot")
	}
	return s.appendSnapshot(ctx, s.db, projectID, state, ts)
}

// LatestSnapshot returns the most recent snapshot, or ok=false if the project has none.
func (s *Store) LatestSnapshot(ctx context.Context, projectID string) (Snapshot, bool, error) {
	var ts, state string
	err := s.db.QueryRowContext(ctx, s.rebind(selectLatestSnapshotSQL), projectID).Scan(&ts, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	t, _ := time.Parse(tsLayout, ts)
	return Snapshot{TS: t, State: []byte(state)}, true, nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, projectID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = s.keep
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(listSnapshotsSQL), projectID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var ts, state string
		if err := rows.Scan(&ts, &state); err != nil {
			return nil, err
		}
		t, _ := time.Parse(tsLayout, ts)
		out = append(out, Snapshot{TS: t, State: []byte(state)})
	}
	return out, rows.Err()
}

// PruneSnapshots keeps only the newest keep snapshots for the project.
func (s *Store) PruneSnapshots(ctx context.Context, projectID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, s.rebind(pruneOldSnapshotsSQL), projectID, projectID, keep)
	return err
}
