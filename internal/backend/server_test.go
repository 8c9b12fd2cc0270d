/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pixnoma/internal/domain"
)

// memService is a minimal in-memory ProjectService.
type memService struct {
	mu sync.Mutex
	m  map[string]domain.Project
}

func (s *memService) GetProject(_ context.Context, owner, id string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	if p.Owner != owner {
		return domain.Project{}, domain.ErrUnauthorized
	}
	return p, nil
}

func (s *memService) CreateProject(_ context.Context, p domain.Project) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = "p" + string(rune('0'+len(s.m)))
	}
	s.m[p.ID] = p
	return p, nil
}

func (s *memService) UpdateProject(_ context.Context, owner string, u domain.ProjectUpdate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[u.ProjectID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if p.Owner != owner {
		return "", domain.ErrUnauthorized
	}
	u.Apply(&p, time.Now())
	s.m[p.ID] = p
	return p.ID, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(&memService{m: map[string]domain.Project{}}, "secret", nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestClientServerRoundTrip(t *testing.T) {
	s, ts := newTestServer(t)
	tok, err := s.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	c := NewClient(ts.URL+"/", tok, time.Second, false)
	ctx := context.Background()
	created, err := c.CreateProject(ctx, domain.Project{Title: "t", Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if created.Owner != "alice" {
		t.Fatalf("owner = %q, want alice", created.Owner)
	}
	state := json.RawMessage(`{"version":1,"objects":[]}`)
	id, err := c.UpdateProject(ctx, "", domain.ProjectUpdate{ProjectID: created.ID, CanvasState: state, Width: domain.Ptr(1080)})
	if err != nil || id != created.ID {
		t.Fatalf("UpdateProject = %q,%v", id, err)
	}
	got, err := c.GetProject(ctx, "", created.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Width != 1080 || got.Height != 600 || string(got.CanvasState) != string(state) {
		t.Fatalf("project = %+v", got)
	}
}

func TestClientMapsErrors(t *testing.T) {
	s, ts := newTestServer(t)
	ctx := context.Background()
	alice, _ := s.IssueToken("alice", time.Hour)
	bob, _ := s.IssueToken("bob", time.Hour)
	p, _ := NewClient(ts.URL, alice, time.Second, false).CreateProject(ctx, domain.Project{Title: "x"})

	if _, err := NewClient(ts.URL, bob, time.Second, false).UpdateProject(ctx, "", domain.ProjectUpdate{ProjectID: p.ID, Width: domain.Ptr(1)}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign update err = %v, want ErrUnauthorized", err)
	}
	if _, err := NewClient(ts.URL, alice, time.Second, false).GetProject(ctx, "", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
	if _, err := NewClient(ts.URL, "garbage", time.Second, false).GetProject(ctx, "", p.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("bad token err = %v, want ErrUnauthorized", err)
	}
	if _, err := NewClient("http://127.0.0.1:1", alice, time.Second, false).GetProject(ctx, "", p.ID); !errors.Is(err, domain.ErrExternal) {
		t.Fatalf("unreachable err = %v, want ErrExternal", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	tok, err := signToken("k", "alice", time.Unix(1000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if sub, err := verifyToken("k", tok, time.Unix(999, 0)); err != nil || sub != "alice" {
		t.Fatalf("verify = %q,%v", sub, err)
	}
	if _, err := verifyToken("k", tok, time.Unix(1001, 0)); err == nil {
		t.Fatalf("expired token accepted")
	}
	if _, err := verifyToken("other", tok, time.Unix(999, 0)); err == nil {
		t.Fatalf("token with wrong secret accepted")
	}
}

func TestHealthAndTokenEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %v,%v", resp, err)
	}
	resp.Body.Close()
	resp, err = http.Post(ts.URL+"/api/auth/token", "application/json", strings.NewReader(`{"subject":"carol"}`))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		t.Fatalf("token body = %+v,%v", body, err)
	}
	if sub, err := verifyToken("secret", body.Token, time.Now()); err != nil || sub != "carol" {
		t.Fatalf("issued token subject = %q,%v", sub, err)
	}
}
