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
	"math"
	"sync"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/scene"
)

// Slider describes one adjustment control in display units.
type Slider struct {
	Kind    scene.FilterKind
	Label   string
	Min     float64
	Max     float64
	Default float64
	Suffix  string
}

// Sliders are the adjustment controls in application order.
var Sliders = []Slider{
	{Kind: scene.FilterBrightness, Label: "Brightness", Min: -100, Max: 100},
	{Kind: scene.FilterContrast, Label: "Contrast", Min: -100, Max: 100},
	{Kind: scene.FilterSaturation, Label: "Saturation", Min: -100, Max: 100},
	{Kind: scene.FilterVibrance, Label: "Vibrance", Min: -100, Max: 100},
	{Kind: scene.FilterBlur, Label: "Blur", Min: 0, Max: 100},
	{Kind: scene.FilterHue, Label: "Hue", Min: -180, Max: 180, Suffix: "°"},
}

func sliderFor(k scene.FilterKind) (Slider, bool) {
	for _, s := range Sliders {
		if s.Kind == k {
			return s, true
		}
	}
	return Slider{}, false
}

// ToParam converts a slider value to the filter parameter: degrees to radians for hue,
// percent to a fraction for everything else.
func ToParam(k scene.FilterKind, v float64) float64 {
	if k == scene.FilterHue {
		return v * math.Pi / 180
	}
	return v / 100
}

// FromParam is the inverse of ToParam, rounded to whole slider steps.
func FromParam(k scene.FilterKind, p float64) float64 {
	if k == scene.FilterHue {
		return math.Round(p * 180 / math.Pi)
	}
	return math.Round(p * 100)
}

// Values holds slider positions keyed by filter kind.
type Values map[scene.FilterKind]float64

// DefaultValues returns every slider at its neutral position.
func DefaultValues() Values {
	v := Values{}
	for _, s := range Sliders {
		v[s.Kind] = s.Default
	}
	return v
}

// FiltersFor derives the complete filter list from slider values. Neutral sliders are
// omitted, so an all-neutral state yields no filters.
func FiltersFor(v Values) []scene.Filter {
	var out []scene.Filter
	for _, s := range Sliders {
		val, ok := v[s.Kind]
		if !ok || val == s.Default {
			continue
		}
		out = append(out, scene.Filter{Kind: s.Kind, Value: ToParam(s.Kind, val)})
	}
	return out
}

// ValuesFrom reads slider positions back from filter descriptors.
func ValuesFrom(fs []scene.Filter) Values {
	v := DefaultValues()
	for _, f := range fs {
		if _, ok := sliderFor(f.Kind); ok {
			v[f.Kind] = FromParam(f.Kind, f.Value)
		}
	}
	return v
}

// Adjust applies non-destructive color filters to the main image.
type Adjust struct {
	base
	vmu    sync.Mutex
	values Values
}

// NewAdjust creates the adjust tool with neutral sliders.
func NewAdjust(s *editor.Session) *Adjust {
	return &Adjust{base: newBase(s, NameAdjust), values: DefaultValues()}
}

func (a *Adjust) Name() Name { return NameAdjust }

// Activate loads the sliders from the main image's filters.
func (a *Adjust) Activate() error {
	v := DefaultValues()
	if img, err := mainImage(a.s); err == nil && img.Image != nil {
		v = ValuesFrom(img.Image.Filters)
	}
	a.vmu.Lock()
	a.values = v
	a.vmu.Unlock()
	return nil
}

// Values returns a copy of the slider positions.
func (a *Adjust) Values() Values {
	a.vmu.Lock()
	defer a.vmu.Unlock()
	out := make(Values, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Set moves one slider, clamped to its range, and reapplies all filters.
func (a *Adjust) Set(k scene.FilterKind, v float64) error {
	sl, ok := sliderFor(k)
	if !ok {
		return fmt.Errorf("unknown filter %q: %w", k, domain.ErrValidation)
	}
	a.vmu.Lock()
	a.values[k] = math.Max(sl.Min, math.Min(sl.Max, v))
	a.vmu.Unlock()
	return a.Apply()
}

// Reset returns every slider to neutral and reapplies, leaving no filters.
func (a *Adjust) Reset() error {
	a.vmu.Lock()
	a.values = DefaultValues()
	a.vmu.Unlock()
	return a.Apply()
}

// Apply recomputes the main image's filter list from the sliders.
func (a *Adjust) Apply() error {
	if err := a.begin(); err != nil {
		return err
	}
	defer a.end()
	img, err := mainImage(a.s)
	if err != nil {
		return err
	}
	fs := FiltersFor(a.Values())
	err = a.s.Store().Update(img.ID, func(o *scene.Object) {
		if o.Image != nil {
			o.Image.Filters = fs
		}
	})
	if err != nil {
		return report(logContext(context.Background(), a.s, NameAdjust), a.s, a.log, "Failed to apply filters", err)
	}
	applied(a.s, NameAdjust, map[string]any{"filters": len(fs)})
	return nil
}
