/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"pixnoma/internal/scene"
	"pixnoma/internal/textlayout"
)

// drawText rasterizes the text at its font size in object-local space and transforms the
// result onto the canvas with the object's matrix.
func (r *renderer) drawText(o *scene.Object) error {
	t := o.Text
	if t == nil || t.Content == "" || t.FontSize <= 0 {
		return nil
	}
	fill, ok := ParseColor(t.Fill)
	if !ok {
		return nil
	}
	face, err := textlayout.Default.Face(textlayout.FontSpec{Family: t.FontFamily, Size: t.FontSize, Bold: t.Bold, Italic: t.Italic})
	if err != nil {
		return err
	}
	defer face.Close()

	box := textlayout.Layout(face, t.FontSize, t.Content, t.TextAlign)
	mw, mh := box.Width, box.Height
	if mw == 0 || mh == 0 {
		return nil
	}
	mask := image.NewAlpha(image.Rect(0, 0, mw, mh))
	d := &font.Drawer{Dst: mask, Src: image.Opaque, Face: face}
	for i, ln := range box.Lines {
		base := box.Baseline(i)
		d.Dot = fixed.P(ln.X, base)
		d.DrawString(ln.Text)
		if t.Underline {
			y := min(base+max(1, box.LineHeight/12), mh-1)
			for ux := ln.X; ux < ln.X+ln.Width; ux++ {
				mask.Pix[y*mask.Stride+ux] = 0xff
			}
		}
	}
	// Center the measured block on the object's estimated box.
	w, h := o.Size()
	off := image.Pt(int(math.Round((float64(mw)-w)/2)), int(math.Round((float64(mh)-h)/2)))
	glyphs := image.NewNRGBA(mask.Bounds())
	xdraw.DrawMask(glyphs, glyphs.Bounds(), image.NewUniform(fill), image.Point{}, mask, image.Point{}, xdraw.Src)
	xdraw.ApproxBiLinear.Transform(r.dst, r.aff(o, off), glyphs, glyphs.Bounds(), xdraw.Over, nil)
	return nil
}
