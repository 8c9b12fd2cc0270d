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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pixnoma/internal/domain"
)

func openTemp(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "pixnoma.db"), Options{KeepSnapshots: keep})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMigratesToCurrentSchema(t *testing.T) {
	s := openTemp(t, 0)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema got %d want %d", v, schemaVersion)
	}
	if s.keep != DefaultKeepSnapshots {
		t.Fatalf("keep got %d want %d", s.keep, DefaultKeepSnapshots)
	}
}

func TestOpenTwiceKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pixnoma.db")
	s, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p, err := s.CreateProject(ctx, domain.Project{Owner: "u1", Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	_ = s.Close()

	s2, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	got, err := s2.GetProject(ctx, "u1", p.ID)
	if err != nil {
		t.Fatalf("GetProject after reopen: %v", err)
	}
	if got.Width != 800 || got.Title != "Untitled Project" {
		t.Fatalf("unexpected project after reopen: %+v", got)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  ", Options{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	got := s.rebind(`UPDATE t SET a = ?, b = ? WHERE id = ?`)
	if got != `UPDATE t SET a = $1, b = $2 WHERE id = $3` {
		t.Fatalf("rebind got %q", got)
	}
	s.dialect = dialectSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	s := openTemp(t, 0)
	_, err := s.CreateProject(context.Background(), domain.Project{Owner: "u1", Width: 0, Height: 10})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestGetProjectOwnership(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)
	p, err := s.CreateProject(ctx, domain.Project{Owner: "alice", Title: "Beach", Width: 1080, Height: 1920,
		OriginalImageURL: "https://ik.imagekit.io/pixnoma/a.jpg"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.GetProject(ctx, "bob", p.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign owner: want ErrUnauthorized, got %v", err)
	}
	if _, err := s.GetProject(ctx, "alice", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
	got, err := s.GetProject(ctx, "alice", p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Title != "Beach" || got.OriginalImageURL != p.OriginalImageURL || len(got.CanvasState) != 0 {
		t.Fatalf("unexpected project: %+v", got)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(p.CreatedAt) {
		t.Fatalf("created_at not preserved: got %v want %v", got.CreatedAt, p.CreatedAt)
	}
}

func TestUpdateProjectPartial(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)
	p, err := s.CreateProject(ctx, domain.Project{Owner: "alice", Width: 800, Height: 600, CurrentImageURL: "https://x/a.png"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	state := json.RawMessage(`{"version":1,"width":1080,"height":1920,"objects":[]}`)
	id, err := s.UpdateProject(ctx, "alice", domain.ProjectUpdate{
		ProjectID:            p.ID,
		CanvasState:          state,
		Width:                domain.Ptr(1080),
		Height:               domain.Ptr(1920),
		ActiveTransformation: domain.Ptr("e-bgremove"),
		BackgroundRemoved:    domain.Ptr(true),
	})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if id != p.ID {
		t.Fatalf("id got %q want %q", id, p.ID)
	}
	got, err := s.GetProject(ctx, "alice", p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Width != 1080 || got.Height != 1920 || !got.BackgroundRemoved || got.ActiveTransformation != "e-bgremove" {
		t.Fatalf("fields not applied: %+v", got)
	}
	if got.CurrentImageURL != "https://x/a.png" {
		t.Fatalf("untouched field changed: %q", got.CurrentImageURL)
	}
	if string(got.CanvasState) != string(state) {
		t.Fatalf("canvas state got %s", got.CanvasState)
	}
	snap, ok, err := s.LatestSnapshot(ctx, p.ID)
	if err != nil || !ok {
		t.Fatalf("LatestSnapshot ok=%v err=%v", ok, err)
	}
	if string(snap.State) != string(state) {
		t.Fatalf("snapshot state got %s", snap.State)
	}
}

func TestUpdateProjectErrors(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)
	p, err := s.CreateProject(ctx, domain.Project{Owner: "alice", Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.UpdateProject(ctx, "mallory", domain.ProjectUpdate{ProjectID: p.ID, Width: domain.Ptr(20)}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := s.UpdateProject(ctx, "alice", domain.ProjectUpdate{ProjectID: "nope", Width: domain.Ptr(20)}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateProject(ctx, "alice", domain.ProjectUpdate{ProjectID: p.ID, Height: domain.Ptr(0)}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	got, _ := s.GetProject(ctx, "alice", p.ID)
	if got.Width != 10 || got.Height != 10 {
		t.Fatalf("failed updates must not change the record: %+v", got)
	}
}

func TestListAndDeleteProjects(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }
	a, _ := s.CreateProject(ctx, domain.Project{Owner: "alice", Title: "A", Width: 1, Height: 1})
	b, _ := s.CreateProject(ctx, domain.Project{Owner: "alice", Title: "B", Width: 1, Height: 1})
	_, _ = s.CreateProject(ctx, domain.Project{Owner: "bob", Title: "C", Width: 1, Height: 1})
	if _, err := s.UpdateProject(ctx, "alice", domain.ProjectUpdate{ProjectID: a.ID, CanvasState: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	list, err := s.ListProjects(ctx, "alice")
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected order: %+v", list)
	}
	if err := s.DeleteProject(ctx, "alice", a.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, ok, _ := s.LatestSnapshot(ctx, a.ID); ok {
		t.Fatalf("snapshots should be deleted with the project")
	}
	if err := s.DeleteProject(ctx, "alice", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("PXN_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PXN_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, Options{KeepSnapshots: 2})
	if err != nil {
		t.Fatalf("Open postgres: %v", err)
	}
	defer func() { _ = s.Close() }()
	p, err := s.CreateProject(ctx, domain.Project{Owner: "pg", Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	defer func() { _ = s.DeleteProject(ctx, "pg", p.ID) }()
	for i := 0; i < 4; i++ {
		if _, err := s.UpdateProject(ctx, "pg", domain.ProjectUpdate{ProjectID: p.ID, CanvasState: json.RawMessage(`{"n":1}`)}); err != nil {
			t.Fatalf("UpdateProject %d: %v", i, err)
		}
	}
	list, err := s.ListSnapshots(ctx, p.ID, 10)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListSnapshots got %d err %v", len(list), err)
	}
}
