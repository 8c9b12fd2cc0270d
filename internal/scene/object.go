/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"math"
	"slices"

	"github.com/google/uuid"
)

// Kind is the closed set of scene object variants.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
	// KindShape is the transient crop selection; it is never part of a snapshot.
	KindShape Kind = "rect"
)

// Origin anchors used by Transform.OriginX / OriginY.
const (
	OriginLeft   = "left"
	OriginCenter = "center"
	OriginRight  = "right"
	OriginTop    = "top"
	OriginBottom = "bottom"
)

// Transform is the placement of an object in logical canvas space.
type Transform struct {
	Left       float64
	Top        float64
	OriginX    string
	OriginY    string
	ScaleX     float64
	ScaleY     float64
	Angle      float64 // degrees
	Selectable bool
	Evented    bool
}

// DefaultTransform is the neutral placement applied to new objects and missing snapshot fields.
func DefaultTransform() Transform {
	return Transform{OriginX: OriginLeft, OriginY: OriginTop, ScaleX: 1, ScaleY: 1, Selectable: true, Evented: true}
}

// FilterKind names a non-destructive image adjustment.
type FilterKind string

const (
	FilterBrightness FilterKind = "brightness"
	FilterContrast   FilterKind = "contrast"
	FilterSaturation FilterKind = "saturation"
	FilterVibrance   FilterKind = "vibrance"
	FilterBlur       FilterKind = "blur"
	FilterHue        FilterKind = "hue"
)

// FilterKinds lists every kind in application order.
var FilterKinds = []FilterKind{FilterBrightness, FilterContrast, FilterSaturation, FilterVibrance, FilterBlur, FilterHue}

// Filter is a serializable filter descriptor. Value is the engine parameter
// (hue in radians, the rest in [-1,1] or [0,1] for blur).
type Filter struct {
	Kind  FilterKind
	Value float64
}

// Image is the image variant payload.
type Image struct {
	Src string
	// Width/Height are the intrinsic source pixel dimensions.
	Width   int
	Height  int
	Crop    *Rect
	Filters []Filter
}

// Text is the text variant payload.
type Text struct {
	Content    string
	FontFamily string
	FontSize   float64
	Fill       string
	TextAlign  string
	Bold       bool
	Italic     bool
	Underline  bool
}

// Shape is the rectangle variant payload.
type Shape struct {
	Width       float64
	Height      float64
	Fill        string
	Stroke      string
	StrokeWidth float64
	Dashed      bool
}

// Object is one visual element. Exactly one of Image, Text, Shape is set, matching Kind.
type Object struct {
	ID   string
	Kind Kind
	Transform
	Image *Image
	Text  *Text
	Shape *Shape
}

// NewID returns a fresh object identity.
func NewID() string { return uuid.NewString() }

// NewImage creates an image object with the default transform.
func NewImage(src string, width, height int) *Object {
	return &Object{ID: NewID(), Kind: KindImage, Transform: DefaultTransform(), Image: &Image{Src: src, Width: width, Height: height}}
}

// NewText creates a text object with the default transform.
func NewText(t Text) *Object {
	return &Object{ID: NewID(), Kind: KindText, Transform: DefaultTransform(), Text: &t}
}

// NewShape creates a rectangle object at r.
func NewShape(r Rect, s Shape) *Object {
	s.Width, s.Height = r.W, r.H
	o := &Object{ID: NewID(), Kind: KindShape, Transform: DefaultTransform(), Shape: &s}
	o.Left, o.Top = r.X, r.Y
	return o
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	if o.Image != nil {
		img := *o.Image
		if o.Image.Crop != nil {
			cr := *o.Image.Crop
			img.Crop = &cr
		}
		img.Filters = slices.Clone(o.Image.Filters)
		c.Image = &img
	}
	if o.Text != nil {
		t := *o.Text
		c.Text = &t
	}
	if o.Shape != nil {
		s := *o.Shape
		c.Shape = &s
	}
	return &c
}

// Size returns the unscaled width and height of the object. For images this is the crop
// region when one is set, otherwise the intrinsic size.
func (o *Object) Size() (float64, float64) {
	switch o.Kind {
	case KindImage:
		if o.Image == nil {
			return 0, 0
		}
		if o.Image.Crop != nil {
			return o.Image.Crop.W, o.Image.Crop.H
		}
		return float64(o.Image.Width), float64(o.Image.Height)
	case KindText:
		if o.Text == nil {
			return 0, 0
		}
		// Approximate metrics; exact shaping is a renderer concern.
		lines, longest := 1, 0
		cur := 0
		for _, r := range o.Text.Content {
			if r == '\n' {
				lines++
				cur = 0
				continue
			}
			cur++
			longest = max(longest, cur)
		}
		return float64(longest) * o.Text.FontSize * 0.5, float64(lines) * o.Text.FontSize * 1.16
	case KindShape:
		if o.Shape == nil {
			return 0, 0
		}
		return o.Shape.Width, o.Shape.Height
	}
	return 0, 0
}

// ScaledSize returns Size multiplied by the scale factors.
func (o *Object) ScaledSize() (float64, float64) {
	w, h := o.Size()
	return w * math.Abs(o.ScaleX), h * math.Abs(o.ScaleY)
}

func originFactor(anchor string) float64 {
	switch anchor {
	case OriginCenter:
		return 0.5
	case OriginRight, OriginBottom:
		return 1
	}
	return 0
}

// Matrix maps object-local coordinates (0,0 at the top-left of the unscaled object) to
// logical canvas coordinates.
func (o *Object) Matrix() Affine2D {
	w, h := o.Size()
	local := Translate(-originFactor(o.OriginX)*w, -originFactor(o.OriginY)*h)
	return Translate(o.Left, o.Top).
		Mul(Rotate(o.Angle * math.Pi / 180)).
		Mul(Scale(o.ScaleX, o.ScaleY)).
		Mul(local)
}

// Bounds returns the axis-aligned bounding rectangle in logical canvas space.
func (o *Object) Bounds() Rect {
	w, h := o.Size()
	return BoundsOf(o.Matrix(), Rect{W: w, H: h})
}

// CopyTransform copies placement and interactivity from src.
func (o *Object) CopyTransform(src *Object) {
	o.Transform = src.Transform
}

// HasFilter reports whether an image object carries a filter of the given kind.
func (o *Object) HasFilter(k FilterKind) bool {
	if o.Image == nil {
		return false
	}
	for _, f := range o.Image.Filters {
		if f.Kind == k {
			return true
		}
	}
	return false
}
