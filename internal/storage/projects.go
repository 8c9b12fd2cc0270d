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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixnoma/internal/domain"
)

const projectColumns = `id, owner, title, width, height, canvas_state, original_image_url, current_image_url,
	thumbnail_url, active_transformation, background_removed, created_at, updated_at`

// language=SQL
const insertProjectSQL = `INSERT INTO projects(` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// language=SQL
const selectProjectSQL = `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

// language=SQL
const listProjectsSQL = `SELECT ` + projectColumns + ` FROM projects WHERE owner = ? ORDER BY updated_at DESC`

// language=SQL
const updateProjectSQL = `UPDATE projects SET title = ?, width = ?, height = ?, canvas_state = ?, original_image_url = ?,
	current_image_url = ?, thumbnail_url = ?, active_transformation = ?, background_removed = ?, updated_at = ?
	WHERE id = ?`

// language=SQL
const deleteProjectSQL = `DELETE FROM projects WHERE id = ?`

// language=SQL
const deleteProjectSnapshotsSQL = `DELETE FROM snapshots WHERE project_id = ?`

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (domain.Project, error) {
	var (
		p                  domain.Project
		state              sql.NullString
		bgRemoved          int
		createdAt, updated string
	)
	if err := r.Scan(&p.ID, &p.Owner, &p.Title, &p.Width, &p.Height, &state, &p.OriginalImageURL, &p.CurrentImageURL,
		&p.ThumbnailURL, &p.ActiveTransformation, &bgRemoved, &createdAt, &updated); err != nil {
		return domain.Project{}, err
	}
	if state.Valid && state.String != "" {
		p.CanvasState = json.RawMessage(state.String)
	}
	p.BackgroundRemoved = bgRemoved != 0
	p.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	p.UpdatedAt, _ = time.Parse(tsLayout, updated)
	return p, nil
}

func nullState(b json.RawMessage) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateProject inserts p. A missing id is generated; timestamps are set to now.
func (s *Store) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return domain.Project{}, fmt.Errorf("create project: size %dx%d: %w", p.Width, p.Height, domain.ErrValidation)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if strings.TrimSpace(p.Title) == "" {
		p.Title = "Untitled Project"
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, s.rebind(insertProjectSQL), p.ID, p.Owner, p.Title, p.Width, p.Height, nullState(p.CanvasState),
		p.OriginalImageURL, p.CurrentImageURL, p.ThumbnailURL, p.ActiveTransformation, boolInt(p.BackgroundRemoved),
		now.Format(tsLayout), now.Format(tsLayout))
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.log.Info("project created", slog.String("project", p.ID), slog.String("owner", p.Owner))
	return p, nil
}

func (s *Store) get(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, owner, id string) (domain.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, s.rebind(selectProjectSQL), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, err)
	}
	if owner != "" && p.Owner != owner {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrUnauthorized)
	}
	return p, nil
}

// GetProject returns the project if it exists and belongs to owner (an empty owner skips the check).
func (s *Store) GetProject(ctx context.Context, owner, id string) (domain.Project, error) {
	return s.get(ctx, s.db, owner, id)
}

// ListProjects returns owner's projects, most recently updated first.
func (s *Store) ListProjects(ctx context.Context, owner string) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(listProjectsSQL), owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject applies a partial update in one transaction. A provided canvas state is
// also appended to the snapshot log, which is then pruned.
func (s *Store) UpdateProject(ctx context.Context, owner string, u domain.ProjectUpdate) (string, error) {
	if u.Width != nil && *u.Width <= 0 || u.Height != nil && *u.Height <= 0 {
		return "", fmt.Errorf("update project: non-positive size: %w", domain.ErrValidation)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	p, err := s.get(ctx, tx, owner, u.ProjectID)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	u.Apply(&p, now)
	if _, err := tx.ExecContext(ctx, s.rebind(updateProjectSQL), p.Title, p.Width, p.Height, nullState(p.CanvasState),
		p.OriginalImageURL, p.CurrentImageURL, p.ThumbnailURL, p.ActiveTransformation, boolInt(p.BackgroundRemoved),
		now.Format(tsLayout), p.ID); err != nil {
		return "", fmt.Errorf("update project %s: %w", p.ID, err)
	}
	if len(u.CanvasState) > 0 {
		if err := s.appendSnapshot(ctx, tx, p.ID, u.CanvasState, now); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("update project %s: commit: %w", p.ID, err)
	}
	return p.ID, nil
}

// DeleteProject removes the project and its snapshot log.
func (s *Store) DeleteProject(ctx context.Context, owner, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := s.get(ctx, tx, owner, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(deleteProjectSnapshotsSQL), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(deleteProjectSQL), id); err != nil {
		return err
	}
	return tx.Commit()
}

var _ domain.ProjectService = (*Store)(nil)
