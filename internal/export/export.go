/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders a scene to a raster image and encodes it as PNG or JPEG.
// Rendering happens in logical canvas space multiplied by a pixel ratio.
package export

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
	"pixnoma/internal/scene"
)

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat accepts png, jpg and jpeg in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	}
	return "", fmt.Errorf("export format %q: %w", s, domain.ErrValidation)
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return ".png"
}

// Options controls encoding.
type Options struct {
	Format Format
	// Quality is the JPEG quality in (0,1]; zero means 0.9.
	Quality float64
	// Multiplier scales the logical canvas to output pixels; zero means 1.
	Multiplier float64
}

// Source resolves an image object's src to pixels.
type Source interface {
	Fetch(ctx context.Context, src string) (image.Image, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, src string) (image.Image, error)

func (f SourceFunc) Fetch(ctx context.Context, src string) (image.Image, error) { return f(ctx, src) }

// Files resolves sources as paths relative to a directory. URLs are reduced to their base name.
type Files string

func (d Files) Fetch(_ context.Context, src string) (image.Image, error) {
	name := src
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if strings.Contains(name, "://") {
		name = filepath.Base(name)
	}
	f, err := os.Open(filepath.Join(string(d), name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(bufio.NewReader(f))
	return img, err
}

// Render draws sc into a new RGBA image. Fetched sources are decoded once per render.
func Render(ctx context.Context, sc scene.Scene, src Source, multiplier float64) (*image.RGBA, error) {
	if sc.Width <= 0 || sc.Height <= 0 {
		return nil, fmt.Errorf("render %dx%d: %w", sc.Width, sc.Height, domain.ErrValidation)
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	l := log.WithOperation(log.WithComponent("export"), "render")
	w := int(float64(sc.Width)*multiplier + 0.5)
	h := int(float64(sc.Height)*multiplier + 0.5)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if c, ok := ParseColor(sc.Background.Color); ok {
		xdraw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, xdraw.Src)
	}
	r := renderer{dst: dst, src: src, mult: multiplier, cache: map[string]image.Image{}}
	if bg := sc.Background.Image; bg != nil {
		if err := r.drawImage(ctx, bg); err != nil {
			return nil, err
		}
	}
	for _, o := range sc.Objects {
		var err error
		switch o.Kind {
		case scene.KindImage:
			err = r.drawImage(ctx, o)
		case scene.KindText:
			err = r.drawText(o)
		}
		if err != nil {
			return nil, err
		}
	}
	l.Debug("rendered", slog.Int("w", w), slog.Int("h", h), slog.Int("objects", len(sc.Objects)))
	return dst, nil
}

type renderer struct {
	dst   *image.RGBA
	src   Source
	mult  float64
	cache map[string]image.Image
}

func (r *renderer) fetch(ctx context.Context, src string) (image.Image, error) {
	if img, ok := r.cache[src]; ok {
		return img, nil
	}
	if r.src == nil {
		return nil, fmt.Errorf("no image source for %s: %w", src, domain.ErrExternal)
	}
	img, err := r.src.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", src, err, domain.ErrExternal)
	}
	r.cache[src] = img
	return img, nil
}

// aff maps object-local coordinates, offset by origin, to output pixels.
func (r *renderer) aff(o *scene.Object, origin image.Point) f64.Aff3 {
	m := scene.Scale(r.mult, r.mult).Mul(o.Matrix()).Mul(scene.Translate(-float64(origin.X), -float64(origin.Y)))
	return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
}

func (r *renderer) drawImage(ctx context.Context, o *scene.Object) error {
	if o.Image == nil {
		return nil
	}
	img, err := r.fetch(ctx, o.Image.Src)
	if err != nil {
		return err
	}
	sr := img.Bounds()
	if c := o.Image.Crop; c != nil {
		sr = image.Rect(int(c.X), int(c.Y), int(c.X+c.W), int(c.Y+c.H)).Add(sr.Min).Intersect(sr)
	}
	if sr.Empty() {
		return nil
	}
	var pix image.Image = img
	if len(o.Image.Filters) > 0 {
		pix = applyFilters(img, sr, o.Image.Filters)
	}
	// Size() is the crop region in source pixels; scale a source of another size onto it.
	w, h := o.Size()
	s2d := r.aff(o, image.Point{})
	if fx, fy := w/float64(sr.Dx()), h/float64(sr.Dy()); fx != 1 || fy != 1 {
		s2d = mulAff(s2d, f64.Aff3{fx, 0, 0, 0, fy, 0})
	}
	s2d = mulAff(s2d, f64.Aff3{1, 0, -float64(sr.Min.X), 0, 1, -float64(sr.Min.Y)})
	xdraw.CatmullRom.Transform(r.dst, s2d, pix, sr, xdraw.Over, nil)
	return nil
}

func mulAff(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

// Encode writes img to w in the requested format.
func Encode(w io.Writer, img image.Image, opt Options) error {
	switch opt.Format {
	case JPEG:
		q := opt.Quality
		if q <= 0 || q > 1 {
			q = 0.9
		}
		return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: int(q*100 + 0.5)})
	case PNG, "":
		return png.Encode(w, img)
	}
	return fmt.Errorf("export format %q: %w", opt.Format, domain.ErrValidation)
}

// flatten composites img over white; JPEG has no alpha.
func flatten(img image.Image) image.Image {
	out := image.NewRGBA(img.Bounds())
	xdraw.Draw(out, out.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.Draw(out, out.Bounds(), img, img.Bounds().Min, xdraw.Over)
	return out
}

// WriteFile renders sc and writes it to path.
func WriteFile(ctx context.Context, path string, sc scene.Scene, src Source, opt Options) error {
	img, err := Render(ctx, sc, src, opt.Multiplier)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, img, opt); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", opt.Format, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	log.WithComponent("export").Info("exported", slog.String("path", path), slog.String("format", string(opt.Format)))
	return nil
}

// ParseColor reads #rgb, #rrggbb and #rrggbbaa. Empty and "transparent" are not colors.
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) == 6 {
		s += "ff"
	}
	if len(s) != 8 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}
