/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bundle packs a project and its saved canvas log into a zip archive and restores
// such archives into a store.
package bundle

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pixnoma/internal/domain"
	applog "pixnoma/internal/log"
	"pixnoma/internal/snapshot"
	"pixnoma/internal/storage"
)

const (
	manifestName = "bundle.manifest.txt"
	projectName  = "project.json"
	indexName    = "snapshots/index.json"
	maxEntrySize = 64 << 20
)

// Store is the part of the project store bundles read from and write to.
// storage.Store implements it.
type Store interface {
	GetProject(ctx context.Context, owner, id string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	ListSnapshots(ctx context.Context, projectID string, limit int) ([]storage.Snapshot, error)
	AppendSnapshot(ctx context.Context, projectID string, state []byte, ts time.Time) error
}

type indexEntry struct {
	File string    `json:"file"`
	TS   time.Time `json:"ts"`
}

// Export writes project id with its snapshot log to destZip and returns the number of
// snapshots written. The archive also carries a small manifest for quick human inspection.
func Export(ctx context.Context, st Store, owner, id, destZip string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "export").With(slog.String("project", id))
	if strings.TrimSpace(destZip) == "" {
		return 0, fmt.Errorf("destination is required: %w", domain.ErrValidation)
	}
	p, err := st.GetProject(ctx, owner, id)
	if err != nil {
		return 0, err
	}
	snaps, err := st.ListSnapshots(ctx, p.ID, 0)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(destZip)
	zf, err := os.Create(destZip)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	put := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	}

	manifest := fmt.Sprintf("Pixnoma Project Bundle\nCreated: %s\nProject: %s (%s)\nSize: %dx%d\nSnapshots: %d\n",
		time.Now().Format(time.RFC3339), p.Title, p.ID, p.Width, p.Height, len(snaps))
	if err := put(manifestName, []byte(manifest)); err != nil {
		return 0, err
	}
	pj, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode project: %w", err)
	}
	if err := put(projectName, pj); err != nil {
		return 0, err
	}
	index := make([]indexEntry, 0, len(snaps))
	for i, s := range snaps {
		name := fmt.Sprintf("snapshots/%04d.json", i)
		if err := put(name, s.State); err != nil {
			return 0, err
		}
		index = append(index, indexEntry{File: name, TS: s.TS})
	}
	ij, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode index: %w", err)
	}
	if err := put(indexName, ij); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		l.Error("zip build failed", slog.Any("err", err))
		return 0, fmt.Errorf("build zip: %w", err)
	}
	l.Info("bundle exported", slog.Int("snapshots", len(snaps)), slog.String("zip", destZip))
	return len(snaps), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("%s exceeds %d bytes: %w", f.Name, maxEntrySize, domain.ErrValidation)
	}
	return data, nil
}

// Import creates a project for owner from packZip and replays its snapshot log, oldest
// first. The original id is kept unless the store already has it. Snapshots that are not
// valid canvas states are skipped. Returns the created project and the snapshot count.
func Import(ctx context.Context, st Store, owner, packZip string) (domain.Project, int, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "import").With(slog.String("zip", packZip))
	r, err := zip.OpenReader(packZip)
	if err != nil {
		return domain.Project{}, 0, fmt.Errorf("open bundle: %v: %w", err, domain.ErrValidation)
	}
	defer func() { _ = r.Close() }()

	files := map[string]*zip.File{}
	for _, f := range r.File {
		files[f.Name] = f
	}
	pf, ok := files[projectName]
	if !ok {
		return domain.Project{}, 0, fmt.Errorf("bundle has no %s: %w", projectName, domain.ErrValidation)
	}
	data, err := readEntry(pf)
	if err != nil {
		return domain.Project{}, 0, err
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Project{}, 0, fmt.Errorf("decode project: %v: %w", err, domain.ErrValidation)
	}
	var index []indexEntry
	if f, ok := files[indexName]; ok {
		data, err := readEntry(f)
		if err != nil {
			return domain.Project{}, 0, err
		}
		if err := json.Unmarshal(data, &index); err != nil {
			return domain.Project{}, 0, fmt.Errorf("decode snapshot index: %v: %w", err, domain.ErrValidation)
		}
	}

	if p.ID != "" {
		if _, err := st.GetProject(ctx, "", p.ID); err == nil {
			l.Warn("project id taken, assigning a new one", slog.String("project", p.ID))
			p.ID = ""
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.Project{}, 0, err
		}
	}
	p.Owner = owner
	created, err := st.CreateProject(ctx, p)
	if err != nil {
		return domain.Project{}, 0, err
	}

	replayed := 0
	for i := len(index) - 1; i >= 0; i-- {
		e := index[i]
		f, ok := files[e.File]
		if !ok || !strings.HasPrefix(e.File, "snapshots/") {
			l.Warn("skip missing snapshot", slog.String("file", e.File))
			continue
		}
		state, err := readEntry(f)
		if err != nil {
			return created, replayed, err
		}
		if err := snapshot.Validate(state); err != nil {
			l.Warn("skip invalid snapshot", slog.String("file", e.File), slog.Any("err", err))
			continue
		}
		if err := st.AppendSnapshot(ctx, created.ID, state, e.TS); err != nil {
			return created, replayed, err
		}
		replayed++
	}
	l.Info("bundle imported", slog.String("project", created.ID), slog.Int("snapshots", replayed))
	return created, replayed, nil
}
