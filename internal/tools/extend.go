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
	"pixnoma/internal/imagekit"
	"pixnoma/internal/scene"
)

// Direction is the side the canvas content is extended towards.
type Direction string

const (
	DirLeft   Direction = "left"
	DirRight  Direction = "right"
	DirTop    Direction = "top"
	DirBottom Direction = "bottom"
)

// Directions lists the extension directions.
var Directions = []Direction{DirLeft, DirRight, DirTop, DirBottom}

// Focus returns the hint that anchors the existing content opposite the extension.
func (d Direction) Focus() string {
	switch d {
	case DirLeft:
		return "fo-right"
	case DirRight:
		return "fo-left"
	case DirTop:
		return "fo-bottom"
	case DirBottom:
		return "fo-top"
	}
	return ""
}

// Horizontal reports whether d extends the width.
func (d Direction) Horizontal() bool { return d == DirLeft || d == DirRight }

func (d Direction) valid() bool { return d.Focus() != "" }

const (
	MinExtension     = 50
	MaxExtension     = 500
	DefaultExtension = 200
)

// ExtendedSize returns the output size for an image displayed at w x h extended by amount
// pixels towards d. Only the axis of d grows.
func ExtendedSize(w, h float64, d Direction, amount int) (int, int) {
	if d.Horizontal() {
		w += float64(amount)
	} else if d.valid() {
		h += float64(amount)
	}
	return int(math.Round(w)), int(math.Round(h))
}

// Extend grows the main image with generated content in one direction.
type Extend struct {
	base
	pmu    sync.Mutex
	dir    Direction
	amount int
}

// NewExtend creates the AI extend tool.
func NewExtend(s *editor.Session) *Extend {
	return &Extend{base: newBase(s, NameExtend), amount: DefaultExtension}
}

func (e *Extend) Name() Name { return NameExtend }

// Blocked reports whether the main image is a cutout, which has no surrounding context to
// extend into.
func (e *Extend) Blocked() bool {
	img, err := firstImage(e.s)
	return err == nil && imagekit.HasCutout(img.Image.Src)
}

// SetDirection selects d; selecting the current direction again clears it.
func (e *Extend) SetDirection(d Direction) error {
	if d != "" && !d.valid() {
		return fmt.Errorf("direction %q: %w", d, domain.ErrValidation)
	}
	e.pmu.Lock()
	defer e.pmu.Unlock()
	if e.dir == d {
		e.dir = ""
		return nil
	}
	e.dir = d
	return nil
}

// Direction returns the selected direction.
func (e *Extend) Direction() Direction {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	return e.dir
}

// SetAmount sets the extension in pixels, clamped to [MinExtension, MaxExtension].
func (e *Extend) SetAmount(px int) {
	e.pmu.Lock()
	e.amount = max(MinExtension, min(MaxExtension, px))
	e.pmu.Unlock()
}

// Amount returns the extension in pixels.
func (e *Extend) Amount() int {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	return e.amount
}

// Plan returns the request URL and output size for the current settings.
func (e *Extend) Plan() (url string, w, h int, err error) {
	e.pmu.Lock()
	d, amount := e.dir, e.amount
	e.pmu.Unlock()
	if !d.valid() {
		return "", 0, 0, fmt.Errorf("no direction selected: %w", domain.ErrValidation)
	}
	img, err := firstImage(e.s)
	if err != nil {
		return "", 0, 0, err
	}
	if imagekit.HasCutout(img.Image.Src) {
		return "", 0, 0, fmt.Errorf("image has its background removed: %w", domain.ErrBlocked)
	}
	cw, ch := img.ScaledSize()
	w, h = ExtendedSize(cw, ch, d, amount)
	return imagekit.With(img.Image.Src, imagekit.Extend(w, h, d.Focus())...), w, h, nil
}

// Apply requests the extended image and replaces the main image with it, centered and
// scaled to fit the canvas without upscaling.
func (e *Extend) Apply(ctx context.Context) (*scene.Object, error) {
	ctx = logContext(ctx, e.s, NameExtend)
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	src, w, h, err := e.Plan()
	if err != nil {
		return nil, err
	}
	img, err := firstImage(e.s)
	if err != nil {
		return nil, err
	}
	done, err := e.s.BeginProcessing("Applying AI extension...")
	if err != nil {
		return nil, err
	}
	defer done()
	cw, ch := e.s.Store().Size()
	out, err := replaceImage(ctx, e.s, img.ID, replacement{src: src, configure: func(next *scene.Object, a imagekit.Asset) {
		scale := math.Min(math.Min(float64(cw)/float64(a.Width), float64(ch)/float64(a.Height)), 1)
		next.ScaleX, next.ScaleY = scale, scale
		next.OriginX, next.OriginY = scene.OriginCenter, scene.OriginCenter
		next.Left, next.Top = float64(cw)/2, float64(ch)/2
	}})
	if err != nil {
		return nil, report(ctx, e.s, e.log, "Failed to apply AI extension", err)
	}
	state, err := e.s.CanvasState()
	if err == nil {
		err = e.s.UpdateProject(ctx, domain.ProjectUpdate{CurrentImageURL: &src, CanvasState: state})
	}
	if err != nil {
		_ = report(ctx, e.s, e.log, "Failed to save changes", err)
	}
	e.pmu.Lock()
	e.dir = ""
	e.pmu.Unlock()
	e.log.InfoContext(ctx, "extension applied", slog.Int("width", w), slog.Int("height", h))
	e.s.Notify(editor.LevelSuccess, "AI extension applied")
	applied(e.s, NameExtend, nil)
	return out, nil
}
