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
	"strings"
	"sync"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/imagekit"
	"pixnoma/internal/scene"
)

// RetouchPreset is a named combination of enhancement directives.
type RetouchPreset struct {
	Key         string
	Label       string
	Description string
	Transform   string
	Recommended bool
}

// RetouchPresets are the available enhancements.
var RetouchPresets = []RetouchPreset{
	{Key: "ai_retouch", Label: "AI Retouch", Description: "Improve image quality with AI", Transform: imagekit.Retouch, Recommended: true},
	{Key: "ai_upscale", Label: "AI Upscale", Description: "Increase resolution to 16MP", Transform: imagekit.Upscale},
	{Key: "enhance_sharpen", Label: "Enhance & Sharpen", Description: "AI retouch + contrast + sharpening",
		Transform: strings.Join([]string{imagekit.Retouch, imagekit.Contrast, imagekit.Sharpen}, ",")},
	{Key: "premium_quality", Label: "Premium Quality", Description: "AI retouch + upscale + enhancements",
		Transform: strings.Join([]string{imagekit.Retouch, imagekit.Upscale, imagekit.Contrast, imagekit.Sharpen}, ",")},
}

// FindRetouchPreset looks a preset up by key.
func FindRetouchPreset(key string) (RetouchPreset, bool) {
	for _, p := range RetouchPresets {
		if p.Key == key {
			return p, true
		}
	}
	return RetouchPreset{}, false
}

// Retouch enhances the main image with a preset, keeping its placement.
type Retouch struct {
	base
	pmu    sync.Mutex
	preset RetouchPreset
}

// NewRetouch creates the AI retouch tool with the recommended preset selected.
func NewRetouch(s *editor.Session) *Retouch {
	return &Retouch{base: newBase(s, NameRetouch), preset: RetouchPresets[0]}
}

func (r *Retouch) Name() Name { return NameRetouch }

// Select chooses the preset to apply.
func (r *Retouch) Select(key string) error {
	p, ok := FindRetouchPreset(key)
	if !ok {
		return fmt.Errorf("retouch preset %q: %w", key, domain.ErrValidation)
	}
	r.pmu.Lock()
	r.preset = p
	r.pmu.Unlock()
	return nil
}

// Selected returns the chosen preset.
func (r *Retouch) Selected() RetouchPreset {
	r.pmu.Lock()
	defer r.pmu.Unlock()
	return r.preset
}

// AlreadyEnhanced reports whether the project's last transformation included a retouch.
func (r *Retouch) AlreadyEnhanced() bool {
	return strings.Contains(r.s.Project().ActiveTransformation, imagekit.Retouch)
}

// Apply appends the preset to the main image's transformation chain and swaps in the result.
func (r *Retouch) Apply(ctx context.Context) (*scene.Object, error) {
	ctx = logContext(ctx, r.s, NameRetouch)
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()
	p := r.Selected()
	img, err := firstImage(r.s)
	if err != nil {
		return nil, err
	}
	src := imagekit.Append(img.Image.Src, p.Transform)
	done, err := r.s.BeginProcessing("Enhancing image with " + p.Label + "...")
	if err != nil {
		return nil, err
	}
	defer done()
	out, err := replaceImage(ctx, r.s, img.ID, replacement{src: src, preserve: true})
	if err != nil {
		return nil, report(ctx, r.s, r.log, "Failed to retouch the image", err)
	}
	state, err := r.s.CanvasState()
	if err == nil {
		err = r.s.UpdateProject(ctx, domain.ProjectUpdate{
			CurrentImageURL:      &src,
			CanvasState:          state,
			ActiveTransformation: &p.Transform,
		})
	}
	if err != nil {
		_ = report(ctx, r.s, r.log, "Failed to save changes", err)
	}
	r.log.InfoContext(ctx, "retouch applied", slog.String("preset", p.Key))
	r.s.Notify(editor.LevelSuccess, "Image retouched successfully")
	applied(r.s, NameRetouch, map[string]any{"preset": p.Key})
	return out, nil
}
