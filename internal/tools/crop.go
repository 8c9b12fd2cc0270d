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
	"pixnoma/internal/scene"
)

// CropState is the crop tool's mode.
type CropState int

const (
	CropIdle CropState = iota
	CropSelecting
	CropApplying
)

func (s CropState) String() string {
	switch s {
	case CropSelecting:
		return "selecting"
	case CropApplying:
		return "applying"
	}
	return "idle"
}

// AspectPreset is a crop ratio; Ratio 0 is freeform.
type AspectPreset struct {
	Label string
	Ratio float64
	Hint  string
}

// CropPresets are offered while selecting.
var CropPresets = []AspectPreset{
	{Label: "Freeform"},
	{Label: "Square", Ratio: 1, Hint: "1:1"},
	{Label: "Widescreen", Ratio: 16.0 / 9.0, Hint: "16:9"},
	{Label: "Portrait", Ratio: 4.0 / 5.0, Hint: "4:5"},
	{Label: "Story", Ratio: 9.0 / 16.0, Hint: "9:16"},
}

const (
	selectionInset = 0.2
	selectionSize  = 0.6
	selectionColor = "#00bcd4"
)

// Crop selects a region of the main image and replaces the image with a cropped copy.
type Crop struct {
	s   *editor.Session
	log *slog.Logger

	mu       sync.Mutex
	state    CropState
	targetID string
	saved    scene.Transform
	rectID   string
	ratio    float64
}

// NewCrop creates the crop tool.
func NewCrop(s *editor.Session) *Crop { return &Crop{s: s, log: toolLogger(NameCrop)} }

func (c *Crop) Name() Name { return NameCrop }

// Activate enters selection mode when there is an image to crop.
func (c *Crop) Activate() error {
	if err := c.Start(); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// Deactivate leaves crop mode without applying.
func (c *Crop) Deactivate() { c.Cancel() }

// State returns the current mode.
func (c *Crop) State() CropState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the id of the image being cropped.
func (c *Crop) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetID
}

// Start captures the main image's transform, locks it against interaction and overlays a
// selection covering the middle 60% of the image.
func (c *Crop) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CropIdle {
		return nil
	}
	img, err := mainImage(c.s)
	if err != nil {
		return err
	}
	st := c.s.Store()
	for _, o := range st.Objects() {
		if o.Kind == scene.KindShape {
			_ = st.RemoveObject(o.ID)
		}
	}
	c.saved = img.Transform
	c.targetID = img.ID
	if err := st.SetInteractive(img.ID, false, false); err != nil {
		return err
	}
	b := img.Bounds()
	sel := scene.R(b.X+b.W*selectionInset, b.Y+b.H*selectionInset, b.W*selectionSize, b.H*selectionSize)
	if c.ratio > 0 {
		sel.H = sel.W / c.ratio
	}
	rect := scene.NewShape(sel, scene.Shape{Fill: "transparent", Stroke: selectionColor, StrokeWidth: 2, Dashed: true})
	if err := st.AddObject(rect); err != nil {
		return err
	}
	_ = st.SetActiveObject(rect.ID)
	c.rectID = rect.ID
	c.state = CropSelecting
	c.log.Debug("crop started", slog.String("target", img.ID))
	return nil
}

// Selection returns the selection rectangle in logical canvas space.
func (c *Crop) Selection() (scene.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectionLocked()
}

func (c *Crop) selectionLocked() (scene.Rect, bool) {
	if c.state == CropIdle {
		return scene.Rect{}, false
	}
	o, ok := c.s.Store().Object(c.rectID)
	if !ok || o.Shape == nil {
		return scene.Rect{}, false
	}
	return scene.R(o.Left, o.Top, o.Shape.Width*o.ScaleX, o.Shape.Height*o.ScaleY), true
}

// SetSelection moves or resizes the selection. While a ratio is locked the height is
// recomputed from the width.
func (c *Crop) SetSelection(r scene.Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CropSelecting {
		return fmt.Errorf("not selecting: %w", domain.ErrValidation)
	}
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("selection %vx%v: %w", r.W, r.H, domain.ErrValidation)
	}
	if c.ratio > 0 && math.Abs(r.W/r.H-c.ratio) > 0.01 {
		r.H = r.W / c.ratio
	}
	return c.writeSelectionLocked(r)
}

func (c *Crop) writeSelectionLocked(r scene.Rect) error {
	err := c.s.Store().Update(c.rectID, func(o *scene.Object) {
		o.Left, o.Top, o.ScaleX, o.ScaleY = r.X, r.Y, 1, 1
		o.Shape.Width, o.Shape.Height = r.W, r.H
	})
	if isNotFound(err) {
		c.resetLocked()
		return fmt.Errorf("selection discarded: %w", domain.ErrStale)
	}
	return err
}

// SetAspect locks the selection to ratio (0 unlocks) and reshapes the current selection.
func (c *Crop) SetAspect(ratio float64) error {
	if ratio < 0 {
		return fmt.Errorf("ratio %v: %w", ratio, domain.ErrValidation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ratio = ratio
	if c.state != CropSelecting || ratio == 0 {
		return nil
	}
	sel, ok := c.selectionLocked()
	if !ok {
		c.resetLocked()
		return fmt.Errorf("selection discarded: %w", domain.ErrStale)
	}
	sel.H = sel.W / ratio
	return c.writeSelectionLocked(sel)
}

// Aspect returns the locked ratio, 0 for freeform.
func (c *Crop) Aspect() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratio
}

// CropRegion maps sel (logical canvas space) back through img's offset and scale to a
// rectangle in source pixels. The result is clamped to the image source, or to its current
// crop when it already has one. ok is false when sel does not overlap the image.
func CropRegion(img *scene.Object, sel scene.Rect) (scene.Rect, bool) {
	if img == nil || img.Image == nil {
		return scene.Rect{}, false
	}
	b := img.Bounds()
	sx, sy := math.Abs(img.ScaleX), math.Abs(img.ScaleY)
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	x := math.Max(0, sel.X-b.X)
	y := math.Max(0, sel.Y-b.Y)
	w := math.Min(sel.X+sel.W-b.X, b.W) - x
	h := math.Min(sel.Y+sel.H-b.Y, b.H) - y
	if w <= 0 || h <= 0 {
		return scene.Rect{}, false
	}
	src := scene.R(0, 0, float64(img.Image.Width), float64(img.Image.Height))
	if img.Image.Crop != nil {
		src = *img.Image.Crop
	}
	r := scene.R(src.X+x/sx, src.Y+y/sy, w/sx, h/sy).Intersect(src)
	if r.Empty() {
		return scene.Rect{}, false
	}
	return r, true
}

// Apply replaces the target image with a copy bound to the selected crop region, centered
// on the region and keeping the image scale. The result is selected.
func (c *Crop) Apply() (*scene.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CropSelecting {
		return nil, fmt.Errorf("not selecting: %w", domain.ErrValidation)
	}
	c.state = CropApplying
	st := c.s.Store()
	img, ok := st.Object(c.targetID)
	sel, selOK := c.selectionLocked()
	if !ok || !selOK {
		c.resetLocked()
		return nil, fmt.Errorf("crop target gone: %w", domain.ErrStale)
	}
	img.Transform = c.saved
	region, ok := CropRegion(img, sel)
	if !ok {
		c.state = CropSelecting
		return nil, fmt.Errorf("selection outside the image: %w", domain.ErrValidation)
	}
	b := img.Bounds()
	sx, sy := math.Abs(img.ScaleX), math.Abs(img.ScaleY)
	src := scene.R(0, 0, float64(img.Image.Width), float64(img.Image.Height))
	if img.Image.Crop != nil {
		src = *img.Image.Crop
	}
	next := scene.NewImage(img.Image.Src, img.Image.Width, img.Image.Height)
	next.Image.Crop = &region
	next.Image.Filters = append([]scene.Filter(nil), img.Image.Filters...)
	next.OriginX, next.OriginY = scene.OriginCenter, scene.OriginCenter
	next.ScaleX, next.ScaleY = img.ScaleX, img.ScaleY
	next.Left = b.X + (region.X-src.X)*sx + region.W*sx/2
	next.Top = b.Y + (region.Y-src.Y)*sy + region.H*sy/2

	_ = st.RemoveObject(c.rectID)
	if err := st.ReplaceObject(c.targetID, next, false); err != nil {
		c.restoreLocked()
		return nil, fmt.Errorf("apply crop: %w", err)
	}
	_ = st.SetActiveObject(next.ID)
	c.log.InfoContext(logContext(context.Background(), c.s, NameCrop), "crop applied", slog.Any("region", region))
	applied(c.s, NameCrop, nil)
	c.state, c.targetID, c.rectID = CropIdle, "", ""
	out, _ := st.Object(next.ID)
	return out, nil
}

// Cancel discards the selection and restores the exact pre-crop transform of the image.
func (c *Crop) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CropIdle {
		return
	}
	c.restoreLocked()
}

func (c *Crop) restoreLocked() {
	st := c.s.Store()
	if c.rectID != "" {
		_ = st.RemoveObject(c.rectID)
	}
	if cur, ok := st.Object(c.targetID); ok {
		locked := cur.Transform
		locked.Selectable, locked.Evented = c.saved.Selectable, c.saved.Evented
		if locked == c.saved {
			_ = st.SetInteractive(c.targetID, c.saved.Selectable, c.saved.Evented)
		} else {
			saved := c.saved
			_ = st.Update(c.targetID, func(o *scene.Object) { o.Transform = saved })
		}
		_ = st.SetActiveObject(c.targetID)
	}
	c.resetLocked()
}

func (c *Crop) resetLocked() {
	c.state, c.targetID, c.rectID = CropIdle, "", ""
	c.saved = scene.Transform{}
}
