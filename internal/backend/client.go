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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pixnoma/internal/domain"
)

// Client is the HTTP client for the remote project service. It implements
// domain.ProjectService; the owner is derived server side from the bearer token.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string, timeout time.Duration, tlsInsecure bool) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	if tlsInsecure {
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // dev servers only
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  hc,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("server %s %s: %v: %w", method, u.Path, err, domain.ErrExternal)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server %s %s: %s: %w", method, u.Path, resp.Status, statusErr(resp.StatusCode))
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func statusErr(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation
	}
	return domain.ErrExternal
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, _ string, id string) (domain.Project, error) {
	var p domain.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// CreateProject stores a new project and returns it with server-assigned fields.
func (c *Client) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	var out domain.Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", p, &out); err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

type updateResponse struct {
	ID string `json:"id"`
}

// UpdateProject sends a partial update.
func (c *Client) UpdateProject(ctx context.Context, _ string, u domain.ProjectUpdate) (string, error) {
	var out updateResponse
	if err := c.doJSON(ctx, http.MethodPatch, "/api/projects/"+url.PathEscape(u.ProjectID), u, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

var _ domain.ProjectService = (*Client)(nil)
