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
	"fmt"
	"log/slog"
	"math"
	"sync"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
)

// ResizePreset is a named target aspect ratio for the canvas.
type ResizePreset struct {
	Name   string
	RatioW int
	RatioH int
}

// Ratio returns width over height.
func (p ResizePreset) Ratio() float64 { return float64(p.RatioW) / float64(p.RatioH) }

// ResizePresets are the one-click canvas formats.
var ResizePresets = []ResizePreset{
	{Name: "Instagram Story", RatioW: 9, RatioH: 16},
	{Name: "Instagram Post", RatioW: 1, RatioH: 1},
	{Name: "YouTube Thumbnail", RatioW: 16, RatioH: 9},
	{Name: "Portrait", RatioW: 2, RatioH: 3},
	{Name: "Facebook Cover", RatioW: 851, RatioH: 315},
	{Name: "Twitter Header", RatioW: 3, RatioH: 1},
}

// PresetSize returns dimensions with the given ratio that keep the area of w x h.
func PresetSize(w, h int, ratio float64) (int, int) {
	if ratio <= 0 {
		return w, h
	}
	area := float64(w) * float64(h)
	nw := math.Sqrt(area * ratio)
	return int(math.Round(nw)), int(math.Round(nw / ratio))
}

// Resize changes the logical canvas resolution. Objects keep their logical coordinates.
type Resize struct {
	s   *editor.Session
	log *slog.Logger

	mu     sync.Mutex
	width  int
	height int
	lock   bool
	preset string
	busy   bool
}

// NewResize creates the resize tool with the current canvas size as input.
func NewResize(s *editor.Session) *Resize {
	r := &Resize{s: s, log: toolLogger(NameResize)}
	r.width, r.height = s.Store().Size()
	return r
}

func (r *Resize) Name() Name { return NameResize }

// Activate reloads the inputs from the canvas.
func (r *Resize) Activate() error {
	r.mu.Lock()
	r.width, r.height = r.s.Store().Size()
	r.preset = ""
	r.mu.Unlock()
	return nil
}

func (r *Resize) Deactivate() {}

// Size returns the pending target size.
func (r *Resize) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// Preset returns the name of the applied preset, empty after manual edits.
func (r *Resize) Preset() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preset
}

// SetLockAspect toggles keeping the current canvas ratio while editing one dimension.
func (r *Resize) SetLockAspect(lock bool) {
	r.mu.Lock()
	r.lock = lock
	r.mu.Unlock()
}

// LockAspect reports whether the ratio is locked.
func (r *Resize) LockAspect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lock
}

// SetWidth sets the target width; with a locked ratio the height follows.
func (r *Resize) SetWidth(w int) {
	cw, ch := r.s.Store().Size()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width = max(w, 0)
	if r.lock {
		r.height = int(math.Round(float64(r.width) * float64(ch) / float64(cw)))
	}
	r.preset = ""
}

// SetHeight sets the target height; with a locked ratio the width follows.
func (r *Resize) SetHeight(h int) {
	cw, ch := r.s.Store().Size()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.height = max(h, 0)
	if r.lock {
		r.width = int(math.Round(float64(r.height) * float64(cw) / float64(ch)))
	}
	r.preset = ""
}

// ApplyPreset fills the target size from a preset, keeping the canvas area.
func (r *Resize) ApplyPreset(p ResizePreset) {
	cw, ch := r.s.Store().Size()
	w, h := PresetSize(cw, ch, p.Ratio())
	r.mu.Lock()
	r.width, r.height, r.preset = w, h, p.Name
	r.mu.Unlock()
}

// Changed reports whether the target differs from the canvas.
func (r *Resize) Changed() bool {
	cw, ch := r.s.Store().Size()
	w, h := r.Size()
	return w != cw || h != ch
}

// Apply resizes the canvas and persists width, height and canvas state at once.
// A persist failure is reported; the local resize stays.
func (r *Resize) Apply(ctx context.Context) error {
	ctx = logContext(ctx, r.s, NameResize)
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return domain.ErrBusy
	}
	w, h := r.width, r.height
	if w <= 0 || h <= 0 {
		r.mu.Unlock()
		return fmt.Errorf("canvas %dx%d: %w", w, h, domain.ErrValidation)
	}
	r.busy = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	done, err := r.s.BeginProcessing("Resizing canvas...")
	if err != nil {
		return err
	}
	defer done()
	if err := r.s.Store().Resize(w, h); err != nil {
		return err
	}
	state, err := r.s.CanvasState()
	if err != nil {
		return report(ctx, r.s, r.log, "Failed to resize canvas", err)
	}
	if err := r.s.UpdateProject(ctx, domain.ProjectUpdate{Width: &w, Height: &h, CanvasState: state}); err != nil {
		return report(ctx, r.s, r.log, "Failed to save the new canvas size", err)
	}
	r.log.InfoContext(ctx, "canvas resized", slog.Int("width", w), slog.Int("height", h))
	r.s.Notify(editor.LevelSuccess, "Canvas resized successfully")
	applied(r.s, NameResize, map[string]any{"width": w, "height": h})
	return nil
}
