/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editortest provides in-memory collaborators for session and tool tests.
package editortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/imagekit"
)

// Service is an in-memory domain.ProjectService that records every update.
type Service struct {
	mu       sync.Mutex
	projects map[string]domain.Project
	updates  []domain.ProjectUpdate
	// Err, when set, is returned by UpdateProject.
	Err error
}

// NewService seeds a service with projects.
func NewService(ps ...domain.Project) *Service {
	s := &Service{projects: map[string]domain.Project{}}
	for _, p := range ps {
		s.projects[p.ID] = p
	}
	return s
}

func (s *Service) GetProject(_ context.Context, owner, id string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	if owner != "" && p.Owner != owner {
		return domain.Project{}, domain.ErrUnauthorized
	}
	return p, nil
}

func (s *Service) CreateProject(_ context.Context, p domain.Project) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("p%d", len(s.projects)+1)
	}
	s.projects[p.ID] = p
	return p, nil
}

func (s *Service) UpdateProject(_ context.Context, owner string, u domain.ProjectUpdate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	p, ok := s.projects[u.ProjectID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if owner != "" && p.Owner != owner {
		return "", domain.ErrUnauthorized
	}
	u.Apply(&p, time.Now())
	s.projects[p.ID] = p
	s.updates = append(s.updates, u)
	return p.ID, nil
}

// SetErr changes the error returned by UpdateProject.
func (s *Service) SetErr(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// Updates returns the recorded updates in order.
func (s *Service) Updates() []domain.ProjectUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProjectUpdate(nil), s.updates...)
}

// Project returns the stored record.
func (s *Service) Project(id string) domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

// Loader is an in-memory image loader keyed by URL. Unknown URLs fall back to Default
// when it has a size, otherwise they fail with ErrExternal.
type Loader struct {
	mu      sync.Mutex
	Sizes   map[string][2]int
	Default [2]int
	Err     error
	calls   []string
	// Gate, when set, blocks Load until it is closed.
	Gate chan struct{}
}

// NewLoader returns a loader that answers every URL with w x h.
func NewLoader(w, h int) *Loader {
	return &Loader{Sizes: map[string][2]int{}, Default: [2]int{w, h}}
}

func (l *Loader) Load(ctx context.Context, src string) (imagekit.Asset, error) {
	l.mu.Lock()
	l.calls = append(l.calls, src)
	gate := l.Gate
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return imagekit.Asset{}, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return imagekit.Asset{}, l.Err
	}
	size, ok := l.Sizes[src]
	if !ok {
		size = l.Default
	}
	if size[0] <= 0 || size[1] <= 0 {
		return imagekit.Asset{}, fmt.Errorf("load %s: %w", src, domain.ErrExternal)
	}
	return imagekit.Asset{URL: src, Width: size[0], Height: size[1], Format: "png"}, nil
}

// Calls returns the URLs requested so far.
func (l *Loader) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// SetErr changes the error returned by Load.
func (l *Loader) SetErr(err error) {
	l.mu.Lock()
	l.Err = err
	l.mu.Unlock()
}
