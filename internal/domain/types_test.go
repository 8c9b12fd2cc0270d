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
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestProjectJSONUsesCamelCase(t *testing.T) {
	p := Project{ID: "p1", Title: "Beach", Width: 800, Height: 600, CurrentImageURL: "https://ik/x.png"}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["currentImageUrl"] != "https://ik/x.png" {
		t.Fatalf("currentImageUrl missing: %s", b)
	}
	if _, ok := m["canvasState"]; ok {
		t.Fatalf("empty canvasState should be omitted: %s", b)
	}
}

func TestImportURLPrefersCurrent(t *testing.T) {
	p := Project{OriginalImageURL: "orig"}
	if got := p.ImportURL(); got != "orig" {
		t.Fatalf("ImportURL = %q, want orig", got)
	}
	p.CurrentImageURL = "cur"
	if got := p.ImportURL(); got != "cur" {
		t.Fatalf("ImportURL = %q, want cur", got)
	}
}

func TestProjectUpdateApplyOnlyProvidedFields(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Project{ID: "p1", Width: 800, Height: 600, ThumbnailURL: "thumb", UpdatedAt: created}
	u := ProjectUpdate{ProjectID: "p1", Width: Ptr(1080), BackgroundRemoved: Ptr(true)}
	if u.Empty() {
		t.Fatalf("update with fields reported empty")
	}
	now := created.Add(time.Hour)
	u.Apply(&p, now)
	if p.Width != 1080 || p.Height != 600 {
		t.Fatalf("size = %dx%d, want 1080x600", p.Width, p.Height)
	}
	if p.ThumbnailURL != "thumb" || !p.BackgroundRemoved {
		t.Fatalf("unexpected project: %+v", p)
	}
	if !p.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", p.UpdatedAt, now)
	}
}

func TestProjectUpdateEmpty(t *testing.T) {
	if !(ProjectUpdate{ProjectID: "x"}).Empty() {
		t.Fatalf("expected empty update")
	}
}

func TestSentinelsWrap(t *testing.T) {
	err := fmt.Errorf("crop: %w", ErrExternal)
	if !errors.Is(err, ErrExternal) || errors.Is(err, ErrReplay) {
		t.Fatalf("errors.Is mismatch for %v", err)
	}
}
