/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package viewport maps the logical canvas resolution onto the available display area.
// It only ever produces display state; logical object coordinates are never touched.
package viewport

import "math"

// DefaultMargin is the padding kept free around the canvas in display pixels.
const DefaultMargin = 40

// ComputeScale returns min((cw-margin)/w, (ch-margin)/h, 1). ok is false when the
// container has no usable size and rendering must be deferred.
func ComputeScale(containerW, containerH float64, logicalW, logicalH int, margin float64) (scale float64, ok bool) {
	if containerW <= 0 || containerH <= 0 || logicalW <= 0 || logicalH <= 0 {
		return 0, false
	}
	availW, availH := containerW-margin, containerH-margin
	if availW <= 0 || availH <= 0 {
		return 0, false
	}
	return math.Min(math.Min(availW/float64(logicalW), availH/float64(logicalH)), 1), true
}

// Display is the display-only transform: zoom plus on-screen canvas dimensions.
type Display struct {
	Zoom   float64
	Width  float64
	Height float64
}

// Viewport tracks container and logical sizes and recomputes the display transform
// whenever either changes.
type Viewport struct {
	margin     float64
	containerW float64
	containerH float64
	logicalW   int
	logicalH   int
	display    Display
	ready      bool
}

// New creates a viewport for a logical resolution.
func New(logicalW, logicalH int, margin float64) *Viewport {
	if margin < 0 {
		margin = DefaultMargin
	}
	return &Viewport{margin: margin, logicalW: logicalW, logicalH: logicalH}
}

// SetContainer records a container resize and returns the new display transform.
func (v *Viewport) SetContainer(w, h float64) (Display, bool) {
	v.containerW, v.containerH = w, h
	return v.recompute()
}

// SetLogical records a logical resolution change, e.g. after a canvas resize.
func (v *Viewport) SetLogical(w, h int) (Display, bool) {
	v.logicalW, v.logicalH = w, h
	return v.recompute()
}

// Display returns the last computed display transform. ok is false until a usable
// container size has been seen.
func (v *Viewport) Display() (Display, bool) { return v.display, v.ready }

// ToLogical maps a display point back to logical canvas coordinates.
func (v *Viewport) ToLogical(x, y float64) (float64, float64) {
	if !v.ready || v.display.Zoom == 0 {
		return x, y
	}
	return x / v.display.Zoom, y / v.display.Zoom
}

func (v *Viewport) recompute() (Display, bool) {
	s, ok := ComputeScale(v.containerW, v.containerH, v.logicalW, v.logicalH, v.margin)
	if !ok {
		// keep the last good display so a transient zero-size container does not flicker
		return v.display, false
	}
	v.display = Display{Zoom: s, Width: float64(v.logicalW) * s, Height: float64(v.logicalH) * s}
	v.ready = true
	return v.display, true
}
