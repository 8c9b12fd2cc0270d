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
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"pixnoma/internal/scene"
)

// applyFilters returns a filtered copy of the sr region of img, keeping sr's coordinates.
// Parameters follow the filter descriptors: hue in radians, the rest as fractions.
func applyFilters(img image.Image, sr image.Rectangle, fs []scene.Filter) *image.NRGBA {
	out := image.NewNRGBA(sr)
	xdraw.Draw(out, sr, img, sr.Min, xdraw.Src)
	for _, f := range fs {
		switch f.Kind {
		case scene.FilterBrightness:
			perPixel(out, brightness(f.Value))
		case scene.FilterContrast:
			perPixel(out, contrast(f.Value))
		case scene.FilterSaturation:
			perPixel(out, saturation(f.Value))
		case scene.FilterVibrance:
			perPixel(out, vibrance(f.Value))
		case scene.FilterHue:
			perPixel(out, hueRotate(f.Value))
		case scene.FilterBlur:
			boxBlur(out, int(math.Round(f.Value*float64(min(sr.Dx(), sr.Dy()))*0.05)))
		}
	}
	return out
}

type pixelFunc func(r, g, b float64) (float64, float64, float64)

func perPixel(img *image.NRGBA, fn pixelFunc) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b := fn(float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2]))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = clamp8(r), clamp8(g), clamp8(b)
	}
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func brightness(v float64) pixelFunc {
	d := v * 255
	return func(r, g, b float64) (float64, float64, float64) { return r + d, g + d, b + d }
}

func contrast(v float64) pixelFunc {
	c := v * 255
	k := 259 * (c + 255) / (255 * (259 - c))
	return func(r, g, b float64) (float64, float64, float64) {
		return k*(r-128) + 128, k*(g-128) + 128, k*(b-128) + 128
	}
}

func saturation(v float64) pixelFunc {
	adj := -v
	return func(r, g, b float64) (float64, float64, float64) {
		m := math.Max(r, math.Max(g, b))
		return r + (m-r)*adj, g + (m-g)*adj, b + (m-b)*adj
	}
}

func vibrance(v float64) pixelFunc {
	adj := -v
	return func(r, g, b float64) (float64, float64, float64) {
		m := math.Max(r, math.Max(g, b))
		avg := (r + g + b) / 3
		amt := math.Abs(m-avg) * 2 / 255 * adj
		return r + (m-r)*amt, g + (m-g)*amt, b + (m-b)*amt
	}
}

// hueRotate uses the luminance-preserving rotation matrix.
func hueRotate(rad float64) pixelFunc {
	c, s := math.Cos(rad), math.Sin(rad)
	m := [9]float64{
		0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928,
		0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283,
		0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072,
	}
	return func(r, g, b float64) (float64, float64, float64) {
		return m[0]*r + m[1]*g + m[2]*b, m[3]*r + m[4]*g + m[5]*b, m[6]*r + m[7]*g + m[8]*b
	}
}

// boxBlur runs one horizontal and one vertical box pass of the given radius.
func boxBlur(img *image.NRGBA, radius int) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	tmp := image.NewNRGBA(b)
	blurPass(tmp, img, radius, 1, 0)
	blurPass(img, tmp, radius, 0, 1)
}

func blurPass(dst, src *image.NRGBA, radius, dx, dy int) {
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sr, sg, sb, sa, n int
			for k := -radius; k <= radius; k++ {
				p := image.Pt(x+k*dx, y+k*dy)
				if !p.In(b) {
					continue
				}
				c := src.NRGBAAt(p.X, p.Y)
				sr, sg, sb, sa = sr+int(c.R), sg+int(c.G), sb+int(c.B), sa+int(c.A)
				n++
			}
			dst.SetNRGBA(x, y, color.NRGBA{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n), A: uint8(sa / n)})
		}
	}
}
