/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package textlayout measures text with the Go fonts and breaks it into aligned lines.
package textlayout

import (
	"math"
	"strings"

	"golang.org/x/image/font"
)

// LineHeight is the line advance as a multiple of the font size.
const LineHeight = 1.16

// Line is one laid out line. X is its offset inside the box for the requested alignment.
type Line struct {
	Text  string
	X     int
	Width int
}

// TextBox is the result of laying out a text block, in whole pixels.
type TextBox struct {
	Lines      []Line
	Width      int
	Height     int
	LineHeight int
	Ascent     int
}

// Baseline returns the y of line i's baseline inside the box.
func (b TextBox) Baseline(i int) int { return i*b.LineHeight + b.Ascent }

// Layout breaks content on newlines, measures each line with face and aligns the lines
// inside the widest one. "justify" lays out like "left".
func Layout(face font.Face, size float64, content, align string) TextBox {
	d := &font.Drawer{Face: face}
	parts := strings.Split(content, "\n")
	box := TextBox{
		Lines:      make([]Line, len(parts)),
		LineHeight: int(math.Ceil(size * LineHeight)),
		Ascent:     face.Metrics().Ascent.Ceil(),
	}
	for i, p := range parts {
		w := d.MeasureString(p).Ceil()
		box.Lines[i] = Line{Text: p, Width: w}
		box.Width = max(box.Width, w)
	}
	box.Height = box.LineHeight * len(parts)
	for i := range box.Lines {
		ln := &box.Lines[i]
		switch align {
		case "center":
			ln.X = (box.Width - ln.Width) / 2
		case "right":
			ln.X = box.Width - ln.Width
		}
	}
	return box
}

// Measure returns the laid out size of content in spec.
func (fl *FontLibrary) Measure(spec FontSpec, content string) (int, int, error) {
	face, err := fl.Face(spec)
	if err != nil {
		return 0, 0, err
	}
	defer face.Close()
	b := Layout(face, spec.Size, content, "left")
	return b.Width, b.Height, nil
}
