/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package snapshot converts a scene to and from the persisted canvas state JSON.
// The format is renderer independent and tolerant: unknown keys are ignored and missing
// attributes fall back to neutral defaults.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
	"pixnoma/internal/scene"
)

// Version is written into every encoded snapshot.
const Version = 1

//go:embed canvas.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

type state struct {
	Version         int      `json:"version"`
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	BackgroundImage *object  `json:"backgroundImage,omitempty"`
	Objects         []object `json:"objects"`
}

type rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

type filter struct {
	Kind string `json:"kind,omitempty"`
	// Type is accepted on read for descriptors written by older clients.
	Type  string  `json:"type,omitempty"`
	Value float64 `json:"value"`
}

type object struct {
	Type       string   `json:"type"`
	ID         string   `json:"id,omitempty"`
	Left       float64  `json:"left"`
	Top        float64  `json:"top"`
	OriginX    string   `json:"originX,omitempty"`
	OriginY    string   `json:"originY,omitempty"`
	ScaleX     *float64 `json:"scaleX,omitempty"`
	ScaleY     *float64 `json:"scaleY,omitempty"`
	Angle      float64  `json:"angle"`
	Selectable *bool    `json:"selectable,omitempty"`
	Evented    *bool    `json:"evented,omitempty"`

	Src     string   `json:"src,omitempty"`
	Width   float64  `json:"width,omitempty"`
	Height  float64  `json:"height,omitempty"`
	Crop    *rect    `json:"crop,omitempty"`
	Filters []filter `json:"filters,omitempty"`

	Text       *string `json:"text,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Fill       string  `json:"fill,omitempty"`
	TextAlign  string  `json:"textAlign,omitempty"`
	FontWeight any     `json:"fontWeight,omitempty"`
	FontStyle  string  `json:"fontStyle,omitempty"`
	Underline  bool    `json:"underline,omitempty"`
}

// Encode serializes the persisted part of sc. Transient shapes are dropped.
// The output is deterministic for equal scenes, so byte comparison detects duplicates.
func Encode(sc scene.Scene) ([]byte, error) {
	st := state{
		Version:         Version,
		Width:           sc.Width,
		Height:          sc.Height,
		BackgroundColor: sc.Background.Color,
		Objects:         make([]object, 0, len(sc.Objects)),
	}
	if sc.Background.Image != nil {
		bg, err := encodeObject(sc.Background.Image)
		if err != nil {
			return nil, fmt.Errorf("encode background: %w", err)
		}
		st.BackgroundImage = &bg
	}
	for _, o := range sc.Objects {
		if o == nil || o.Kind == scene.KindShape {
			continue
		}
		w, err := encodeObject(o)
		if err != nil {
			return nil, err
		}
		st.Objects = append(st.Objects, w)
	}
	return json.Marshal(st)
}

func encodeObject(o *scene.Object) (object, error) {
	sx, sy := o.ScaleX, o.ScaleY
	sel, ev := o.Selectable, o.Evented
	w := object{
		Type:       string(o.Kind),
		ID:         o.ID,
		Left:       o.Left,
		Top:        o.Top,
		OriginX:    o.OriginX,
		OriginY:    o.OriginY,
		ScaleX:     &sx,
		ScaleY:     &sy,
		Angle:      o.Angle,
		Selectable: &sel,
		Evented:    &ev,
	}
	switch o.Kind {
	case scene.KindImage:
		if o.Image == nil {
			return object{}, fmt.Errorf("encode image %s: missing payload: %w", o.ID, domain.ErrValidation)
		}
		w.Src = o.Image.Src
		w.Width, w.Height = float64(o.Image.Width), float64(o.Image.Height)
		if c := o.Image.Crop; c != nil {
			w.Crop = &rect{X: c.X, Y: c.Y, W: c.W, H: c.H}
		}
		for _, f := range o.Image.Filters {
			w.Filters = append(w.Filters, filter{Kind: string(f.Kind), Value: f.Value})
		}
	case scene.KindText:
		if o.Text == nil {
			return object{}, fmt.Errorf("encode text %s: missing payload: %w", o.ID, domain.ErrValidation)
		}
		t := o.Text
		content := t.Content
		w.Text = &content
		w.FontFamily = t.FontFamily
		w.FontSize = t.FontSize
		w.Fill = t.Fill
		w.TextAlign = t.TextAlign
		w.FontWeight = "normal"
		if t.Bold {
			w.FontWeight = "bold"
		}
		w.FontStyle = "normal"
		if t.Italic {
			w.FontStyle = "italic"
		}
		w.Underline = t.Underline
	default:
		return object{}, fmt.Errorf("encode object %s: unsupported kind %q: %w", o.ID, o.Kind, domain.ErrValidation)
	}
	return w, nil
}

// Validate checks the structural shape of a canvas state document.
func Validate(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile canvas schema: %w", err)
	}
	res, err := sch.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrReplay, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrReplay, strings.Join(msgs, "; "))
	}
	return nil
}

// Decode parses a canvas state. fallbackW/fallbackH supply the logical resolution when the
// document predates size fields. Malformed documents fail with domain.ErrReplay; unknown
// object types are skipped.
func Decode(data []byte, fallbackW, fallbackH int) (scene.Scene, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return scene.Scene{}, fmt.Errorf("%w: empty document", domain.ErrReplay)
	}
	if err := Validate(data); err != nil {
		return scene.Scene{}, err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return scene.Scene{}, fmt.Errorf("%w: %v", domain.ErrReplay, err)
	}
	sc := scene.Scene{Width: st.Width, Height: st.Height, Background: scene.Background{Color: st.BackgroundColor}}
	if sc.Width <= 0 {
		sc.Width = fallbackW
	}
	if sc.Height <= 0 {
		sc.Height = fallbackH
	}
	if sc.Width <= 0 || sc.Height <= 0 {
		return scene.Scene{}, fmt.Errorf("%w: canvas size unknown", domain.ErrReplay)
	}
	l := log.WithComponent("snapshot")
	if st.BackgroundImage != nil {
		if o, ok := decodeObject(*st.BackgroundImage); ok && o.Kind == scene.KindImage {
			sc.Background = scene.Background{Image: o}
		}
	}
	for i, w := range st.Objects {
		o, ok := decodeObject(w)
		if !ok {
			l.Warn("skipping object", slog.Int("index", i), slog.String("type", w.Type))
			continue
		}
		sc.Objects = append(sc.Objects, o)
	}
	return sc, nil
}

func decodeObject(w object) (*scene.Object, bool) {
	tr := scene.DefaultTransform()
	tr.Left, tr.Top, tr.Angle = w.Left, w.Top, w.Angle
	if w.OriginX != "" {
		tr.OriginX = w.OriginX
	}
	if w.OriginY != "" {
		tr.OriginY = w.OriginY
	}
	if w.ScaleX != nil {
		tr.ScaleX = *w.ScaleX
	}
	if w.ScaleY != nil {
		tr.ScaleY = *w.ScaleY
	}
	if w.Selectable != nil {
		tr.Selectable = *w.Selectable
	}
	if w.Evented != nil {
		tr.Evented = *w.Evented
	}
	id := w.ID
	if id == "" {
		id = scene.NewID()
	}
	o := &scene.Object{ID: id, Transform: tr}
	switch strings.ToLower(w.Type) {
	case "image":
		o.Kind = scene.KindImage
		o.Image = &scene.Image{Src: w.Src, Width: int(w.Width), Height: int(w.Height)}
		if w.Crop != nil {
			o.Image.Crop = &scene.Rect{X: w.Crop.X, Y: w.Crop.Y, W: w.Crop.W, H: w.Crop.H}
		}
		for _, f := range w.Filters {
			k := f.Kind
			if k == "" {
				k = f.Type
			}
			kind, ok := filterKind(k)
			if !ok {
				continue
			}
			o.Image.Filters = append(o.Image.Filters, scene.Filter{Kind: kind, Value: f.Value})
		}
	case "text", "i-text", "textbox":
		o.Kind = scene.KindText
		t := &scene.Text{
			FontFamily: w.FontFamily,
			FontSize:   w.FontSize,
			Fill:       w.Fill,
			TextAlign:  w.TextAlign,
			Italic:     strings.EqualFold(w.FontStyle, "italic"),
			Underline:  w.Underline,
			Bold:       isBold(w.FontWeight),
		}
		if w.Text != nil {
			t.Content = *w.Text
		}
		if t.FontFamily == "" {
			t.FontFamily = "Arial"
		}
		if t.FontSize <= 0 {
			t.FontSize = 20
		}
		if t.Fill == "" {
			t.Fill = "#000000"
		}
		if t.TextAlign == "" {
			t.TextAlign = "left"
		}
		o.Text = t
	default:
		return nil, false
	}
	return o, true
}

func filterKind(s string) (scene.FilterKind, bool) {
	s = strings.ToLower(s)
	switch s {
	case "huerotation":
		return scene.FilterHue, true
	}
	for _, k := range scene.FilterKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

func isBold(v any) bool {
	switch w := v.(type) {
	case string:
		return strings.EqualFold(w, "bold") || w == "700" || w == "800" || w == "900"
	case float64:
		return w >= 600
	}
	return false
}
