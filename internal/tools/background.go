/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/imagekit"
	"pixnoma/internal/scene"
	"pixnoma/internal/stock"
)

// Background manages the canvas fill and the AI background operations on the main image.
type Background struct {
	base
	deps  Deps
	delay time.Duration

	smu      sync.Mutex
	results  []stock.Photo
	debounce *stock.Debounced
}

// NewBackground creates the background tool. searchDelay debounces SearchAsync.
func NewBackground(s *editor.Session, deps Deps, searchDelay time.Duration) *Background {
	return &Background{base: newBase(s, NameBackground), deps: deps, delay: searchDelay}
}

func (b *Background) Name() Name { return NameBackground }

// Deactivate stops any pending debounced search.
func (b *Background) Deactivate() {
	b.smu.Lock()
	d := b.debounce
	b.smu.Unlock()
	if d != nil {
		d.Stop()
	}
}

// SetColor fills the canvas with a solid color and drops any background image.
func (b *Background) SetColor(c string) error {
	if !ValidColor(c) {
		return fmt.Errorf("color %q: %w", c, domain.ErrValidation)
	}
	b.s.Store().SetBackgroundColor(c)
	applied(b.s, NameBackground, map[string]any{"action": "color"})
	return nil
}

// Clear makes the canvas background transparent. The main image is not touched.
func (b *Background) Clear() {
	b.s.Store().ClearBackground()
	b.s.Notify(editor.LevelSuccess, "Background removed")
}

// Search queries the stock photo service. An empty query returns stock.ErrEmptyQuery and
// no results is a nil error with an empty slice.
func (b *Background) Search(ctx context.Context, query string) ([]stock.Photo, error) {
	if b.deps.Stock == nil {
		return nil, fmt.Errorf("stock search not configured: %w", domain.ErrExternal)
	}
	ctx = logContext(ctx, b.s, NameBackground)
	photos, err := b.deps.Stock.Search(ctx, query)
	if err != nil {
		if errors.Is(err, stock.ErrEmptyQuery) {
			return nil, err
		}
		return nil, report(ctx, b.s, b.log, "Failed to fetch images", err)
	}
	b.smu.Lock()
	b.results = photos
	b.smu.Unlock()
	return photos, nil
}

// SearchAsync debounces interactive searches; fn receives only the latest query's result.
func (b *Background) SearchAsync(query string, fn func([]stock.Photo, error)) error {
	if b.deps.Stock == nil {
		return fmt.Errorf("stock search not configured: %w", domain.ErrExternal)
	}
	b.smu.Lock()
	if b.debounce == nil {
		b.debounce = stock.NewDebounced(b.deps.Stock, b.delay)
	}
	d := b.debounce
	b.smu.Unlock()
	d.Search(query, func(photos []stock.Photo, err error) {
		if err == nil {
			b.smu.Lock()
			b.results = photos
			b.smu.Unlock()
		}
		fn(photos, err)
	})
	return nil
}

// Results returns the last search results.
func (b *Background) Results() []stock.Photo {
	b.smu.Lock()
	defer b.smu.Unlock()
	return append([]stock.Photo(nil), b.results...)
}

// CoverScale returns the uniform scale that makes iw x ih cover cw x ch.
func CoverScale(cw, ch, iw, ih float64) float64 {
	if iw <= 0 || ih <= 0 {
		return 1
	}
	return math.Max(cw/iw, ch/ih)
}

// UseStockPhoto sets p as the canvas background image, scaled to cover and centered.
func (b *Background) UseStockPhoto(ctx context.Context, p stock.Photo) (*scene.Object, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	defer b.end()
	ctx = logContext(ctx, b.s, NameBackground)
	if b.deps.Stock != nil {
		b.deps.Stock.TrackDownload(ctx, p.ID)
	}
	ld := b.s.Loader()
	if ld == nil {
		return nil, fmt.Errorf("no image loader configured: %w", domain.ErrExternal)
	}
	a, err := ld.Load(ctx, p.FullURL)
	if err != nil {
		return nil, report(ctx, b.s, b.log, "Failed to update background image", err)
	}
	if err := b.s.Check(""); err != nil {
		return nil, err
	}
	w, h := b.s.Store().Size()
	img := scene.NewImage(a.URL, a.Width, a.Height)
	img.ScaleX = CoverScale(float64(w), float64(h), float64(a.Width), float64(a.Height))
	img.ScaleY = img.ScaleX
	img.OriginX, img.OriginY = scene.OriginCenter, scene.OriginCenter
	img.Left, img.Top = float64(w)/2, float64(h)/2
	if err := b.s.Store().SetBackgroundImage(img); err != nil {
		return nil, err
	}
	b.log.InfoContext(ctx, "stock background applied", slog.String("photo", p.ID))
	b.s.Notify(editor.LevelSuccess, "Background updated")
	applied(b.s, NameBackground, map[string]any{"action": "stock"})
	return img.Clone(), nil
}

// subjectURL is the project image with directive applied when transformations are
// available for it.
func (b *Background) subjectURL(directive string) (string, error) {
	src := b.s.Project().ImportURL()
	if src == "" {
		if img, err := firstImage(b.s); err == nil {
			src = img.Image.Src
		}
	}
	if src == "" {
		return "", fmt.Errorf("project has no image: %w", domain.ErrNotFound)
	}
	if !b.deps.hosted(src) {
		return src, nil
	}
	return imagekit.With(src, directive), nil
}

func (b *Background) transformSubject(ctx context.Context, busyMsg, failMsg, directive string) (*scene.Object, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	defer b.end()
	img, err := firstImage(b.s)
	if err != nil {
		return nil, err
	}
	src, err := b.subjectURL(directive)
	if err != nil {
		return nil, err
	}
	done, err := b.s.BeginProcessing(busyMsg)
	if err != nil {
		return nil, err
	}
	defer done()
	out, err := replaceImage(ctx, b.s, img.ID, replacement{src: src, preserve: true})
	if err != nil {
		return nil, report(ctx, b.s, b.log, failMsg, err)
	}
	return out, nil
}

// RemoveSubjectBackground replaces the main image with its background-removed cutout,
// keeping its placement, and records the cutout on the project.
func (b *Background) RemoveSubjectBackground(ctx context.Context) (*scene.Object, error) {
	ctx = logContext(ctx, b.s, NameBackground)
	out, err := b.transformSubject(ctx, "Removing background with AI...", "Failed to remove background", imagekit.BgRemove)
	if err != nil {
		return nil, err
	}
	b.persist(ctx, domain.ProjectUpdate{BackgroundRemoved: domain.Ptr(true)})
	b.log.InfoContext(ctx, "subject background removed", slog.String("object", out.ID))
	b.s.Notify(editor.LevelSuccess, "Background removed successfully")
	applied(b.s, NameBackground, map[string]any{"action": "remove"})
	return out, nil
}

// ChangeBackground replaces the main image with an AI composite on a background generated
// from prompt, keeping its placement.
func (b *Background) ChangeBackground(ctx context.Context, prompt string) (*scene.Object, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("empty prompt: %w", domain.ErrValidation)
	}
	ctx = logContext(ctx, b.s, NameBackground)
	out, err := b.transformSubject(ctx, "Generating background...", "Failed to generate background", imagekit.ChangeBackground(prompt))
	if err != nil {
		return nil, err
	}
	b.persist(ctx, domain.ProjectUpdate{})
	b.log.InfoContext(ctx, "background generated", slog.String("object", out.ID))
	b.s.Notify(editor.LevelSuccess, "Background generated successfully")
	applied(b.s, NameBackground, map[string]any{"action": "generate"})
	return out, nil
}

// persist writes u together with the current canvas state. Failures are reported only.
func (b *Background) persist(ctx context.Context, u domain.ProjectUpdate) {
	state, err := b.s.CanvasState()
	if err != nil {
		_ = report(ctx, b.s, b.log, "Failed to save changes", err)
		return
	}
	u.CanvasState = state
	if err := b.s.UpdateProject(ctx, u); err != nil {
		_ = report(ctx, b.s, b.log, "Failed to save changes", err)
	}
}
