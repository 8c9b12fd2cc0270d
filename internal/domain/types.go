/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"context"
	"encoding/json"
	"time"
)

// This file defines the persisted project record shared by the editing session, the local
// SQL store and the remote project service.

// Project is a single editable photo project.
// CanvasState holds the latest serialized scene snapshot and may be empty for a freshly
// uploaded image.
type Project struct {
	ID                   string          `json:"id"`
	Owner                string          `json:"owner,omitempty"`
	Title                string          `json:"title"`
	Width                int             `json:"width"`
	Height               int             `json:"height"`
	CanvasState          json.RawMessage `json:"canvasState,omitempty"`
	OriginalImageURL     string          `json:"originalImageUrl,omitempty"`
	CurrentImageURL      string          `json:"currentImageUrl,omitempty"`
	ThumbnailURL         string          `json:"thumbnailUrl,omitempty"`
	ActiveTransformation string          `json:"activeTransformation,omitempty"`
	BackgroundRemoved    bool            `json:"backgroundRemoved"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// ImportURL is the image a session imports when no canvas state has been saved yet.
func (p Project) ImportURL() string {
	if p.CurrentImageURL != "" {
		return p.CurrentImageURL
	}
	return p.OriginalImageURL
}

// ProjectUpdate is a partial update: nil fields are left untouched.
type ProjectUpdate struct {
	ProjectID            string          `json:"projectId"`
	CanvasState          json.RawMessage `json:"canvasState,omitempty"`
	Width                *int            `json:"width,omitempty"`
	Height               *int            `json:"height,omitempty"`
	CurrentImageURL      *string         `json:"currentImageUrl,omitempty"`
	OriginalImageURL     *string         `json:"originalImageUrl,omitempty"`
	ThumbnailURL         *string         `json:"thumbnailUrl,omitempty"`
	ActiveTransformation *string         `json:"activeTransformation,omitempty"`
	BackgroundRemoved    *bool           `json:"backgroundRemoved,omitempty"`
}

// Empty reports whether the update carries no fields besides the project id.
func (u ProjectUpdate) Empty() bool {
	return len(u.CanvasState) == 0 && u.Width == nil && u.Height == nil &&
		u.CurrentImageURL == nil && u.OriginalImageURL == nil && u.ThumbnailURL == nil &&
		u.ActiveTransformation == nil && u.BackgroundRemoved == nil
}

// Apply writes the provided fields onto p and bumps UpdatedAt.
func (u ProjectUpdate) Apply(p *Project, now time.Time) {
	if len(u.CanvasState) > 0 {
		p.CanvasState = append(json.RawMessage(nil), u.CanvasState...)
	}
	if u.Width != nil {
		p.Width = *u.Width
	}
	if u.Height != nil {
		p.Height = *u.Height
	}
	if u.CurrentImageURL != nil {
		p.CurrentImageURL = *u.CurrentImageURL
	}
	if u.OriginalImageURL != nil {
		p.OriginalImageURL = *u.OriginalImageURL
	}
	if u.ThumbnailURL != nil {
		p.ThumbnailURL = *u.ThumbnailURL
	}
	if u.ActiveTransformation != nil {
		p.ActiveTransformation = *u.ActiveTransformation
	}
	if u.BackgroundRemoved != nil {
		p.BackgroundRemoved = *u.BackgroundRemoved
	}
	p.UpdatedAt = now
}

// ProjectService is the persistence contract the editing session depends on.
// Implementations: storage.Store (local SQL) and backend.Client (remote HTTP).
type ProjectService interface {
	GetProject(ctx context.Context, owner, id string) (Project, error)
	CreateProject(ctx context.Context, p Project) (Project, error)
	// UpdateProject returns the project id or ErrUnauthorized / ErrNotFound.
	UpdateProject(ctx context.Context, owner string, u ProjectUpdate) (string, error)
}

// Ptr returns a pointer to v; handy for building ProjectUpdate values.
func Ptr[T any](v T) *T { return &v }
