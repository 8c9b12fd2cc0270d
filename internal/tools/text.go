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
	"fmt"
	"regexp"
	"slices"
	"sync"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/scene"
)

// FontFamilies are the selectable fonts.
var FontFamilies = []string{
	"Arial", "Arial Black", "Helvetica", "Times New Roman", "Courier New",
	"Georgia", "Verdana", "Comic Sans MS", "Impact",
}

// Alignments are the supported text alignments.
var Alignments = []string{"left", "center", "right", "justify"}

const (
	MinFontSize      = 8
	MaxFontSize      = 120
	DefaultFontSize  = 20
	DefaultTextColor = "#000000"
	DefaultText      = "Edit this Text"
)

// Format is an independent text toggle.
type Format string

const (
	FormatBold      Format = "bold"
	FormatItalic    Format = "italic"
	FormatUnderline Format = "underline"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ValidColor reports whether c is a #rgb, #rrggbb or #rrggbbaa color.
func ValidColor(c string) bool { return hexColor.MatchString(c) }

// TextStyle is the style used for new text and shown for the selected text.
type TextStyle struct {
	FontFamily string
	FontSize   float64
	Fill       string
	Align      string
}

// DefaultTextStyle is the style of a fresh text tool.
func DefaultTextStyle() TextStyle {
	return TextStyle{FontFamily: "Arial", FontSize: DefaultFontSize, Fill: DefaultTextColor, Align: "left"}
}

// Text adds text objects and styles the selected one.
type Text struct {
	base
	smu   sync.Mutex
	style TextStyle
}

// NewText creates the text tool.
func NewText(s *editor.Session) *Text {
	return &Text{base: newBase(s, NameText), style: DefaultTextStyle()}
}

func (t *Text) Name() Name { return NameText }

// Activate mirrors the selected text's style into the controls.
func (t *Text) Activate() error {
	if o, ok := t.Selected(); ok {
		t.smu.Lock()
		t.style = TextStyle{FontFamily: o.Text.FontFamily, FontSize: o.Text.FontSize, Fill: o.Text.Fill, Align: o.Text.TextAlign}
		t.smu.Unlock()
	}
	return nil
}

// Style returns the current control values.
func (t *Text) Style() TextStyle {
	t.smu.Lock()
	defer t.smu.Unlock()
	return t.style
}

// Selected returns the active object when it is text.
func (t *Text) Selected() (*scene.Object, bool) {
	o, ok := t.s.Store().ActiveObject()
	if !ok || o.Kind != scene.KindText || o.Text == nil {
		return nil, false
	}
	return o, true
}

// Add places a new text object at the canvas center and selects it.
func (t *Text) Add() (*scene.Object, error) {
	st := t.Style()
	w, h := t.s.Store().Size()
	o := scene.NewText(scene.Text{
		Content:    DefaultText,
		FontFamily: st.FontFamily,
		FontSize:   st.FontSize,
		Fill:       st.Fill,
		TextAlign:  st.Align,
	})
	o.OriginX, o.OriginY = scene.OriginCenter, scene.OriginCenter
	o.Left, o.Top = float64(w)/2, float64(h)/2
	if err := t.s.Store().AddObject(o); err != nil {
		return nil, err
	}
	_ = t.s.Store().SetActiveObject(o.ID)
	applied(t.s, NameText, map[string]any{"action": "add"})
	return o.Clone(), nil
}

// updateSelected applies fn to the selected text, if any.
func (t *Text) updateSelected(fn func(*scene.Text)) error {
	o, ok := t.Selected()
	if !ok {
		return nil
	}
	return t.s.Store().Update(o.ID, func(obj *scene.Object) {
		if obj.Text != nil {
			fn(obj.Text)
		}
	})
}

func (t *Text) requireSelected() (*scene.Object, error) {
	o, ok := t.Selected()
	if !ok {
		return nil, fmt.Errorf("no text selected: %w", domain.ErrNotFound)
	}
	return o, nil
}

// SetFontFamily changes the font of the selected text and of new text.
func (t *Text) SetFontFamily(f string) error {
	if !slices.Contains(FontFamilies, f) {
		return fmt.Errorf("font %q: %w", f, domain.ErrValidation)
	}
	t.smu.Lock()
	t.style.FontFamily = f
	t.smu.Unlock()
	return t.updateSelected(func(x *scene.Text) { x.FontFamily = f })
}

// SetFontSize changes the size, clamped to [MinFontSize, MaxFontSize].
func (t *Text) SetFontSize(size float64) error {
	size = max(MinFontSize, min(MaxFontSize, size))
	t.smu.Lock()
	t.style.FontSize = size
	t.smu.Unlock()
	return t.updateSelected(func(x *scene.Text) { x.FontSize = size })
}

// SetColor changes the fill color.
func (t *Text) SetColor(c string) error {
	if !ValidColor(c) {
		return fmt.Errorf("color %q: %w", c, domain.ErrValidation)
	}
	t.smu.Lock()
	t.style.Fill = c
	t.smu.Unlock()
	return t.updateSelected(func(x *scene.Text) { x.Fill = c })
}

// SetAlign changes the alignment.
func (t *Text) SetAlign(a string) error {
	if !slices.Contains(Alignments, a) {
		return fmt.Errorf("alignment %q: %w", a, domain.ErrValidation)
	}
	t.smu.Lock()
	t.style.Align = a
	t.smu.Unlock()
	return t.updateSelected(func(x *scene.Text) { x.TextAlign = a })
}

// Toggle flips one format flag on the selected text.
func (t *Text) Toggle(f Format) error {
	if f != FormatBold && f != FormatItalic && f != FormatUnderline {
		return fmt.Errorf("format %q: %w", f, domain.ErrValidation)
	}
	o, err := t.requireSelected()
	if err != nil {
		return err
	}
	return t.s.Store().Update(o.ID, func(obj *scene.Object) {
		switch f {
		case FormatBold:
			obj.Text.Bold = !obj.Text.Bold
		case FormatItalic:
			obj.Text.Italic = !obj.Text.Italic
		case FormatUnderline:
			obj.Text.Underline = !obj.Text.Underline
		}
	})
}

// SetContent replaces the selected text's string.
func (t *Text) SetContent(content string) error {
	o, err := t.requireSelected()
	if err != nil {
		return err
	}
	return t.s.Store().Update(o.ID, func(obj *scene.Object) { obj.Text.Content = content })
}

// Delete removes the selected text and clears the selection.
func (t *Text) Delete() error {
	o, err := t.requireSelected()
	if err != nil {
		return err
	}
	if err := t.s.Store().RemoveObject(o.ID); err != nil {
		return err
	}
	return t.s.Store().SetActiveObject("")
}
