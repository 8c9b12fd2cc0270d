/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string
	Size   float64 // pixels at 72 DPI
	Bold   bool
	Italic bool
}

// MonoFamilies are rendered with Go Mono; every other family uses Go sans.
var MonoFamilies = []string{"Courier New", "Courier", "Consolas", "Monaco", "monospace"}

type fontKey struct {
	mono   bool
	bold   bool
	italic bool
}

// FontLibrary holds the parsed Go fonts. The zero value is ready to use; fonts are parsed
// on first use.
type FontLibrary struct {
	once  sync.Once
	fonts map[fontKey]*opentype.Font
	err   error
}

// Default is the shared library used by the renderer.
var Default = &FontLibrary{}

func (fl *FontLibrary) load() error {
	fl.once.Do(func() {
		src := []struct {
			key  fontKey
			data []byte
		}{
			{fontKey{}, goregular.TTF},
			{fontKey{bold: true}, gobold.TTF},
			{fontKey{italic: true}, goitalic.TTF},
			{fontKey{bold: true, italic: true}, gobolditalic.TTF},
			{fontKey{mono: true}, gomono.TTF},
			{fontKey{mono: true, bold: true}, gomonobold.TTF},
			{fontKey{mono: true, italic: true}, gomonoitalic.TTF},
			{fontKey{mono: true, bold: true, italic: true}, gomonobolditalic.TTF},
		}
		fl.fonts = make(map[fontKey]*opentype.Font, len(src))
		for _, e := range src {
			f, err := opentype.Parse(e.data)
			if err != nil {
				fl.err = fmt.Errorf("parse go font: %w", err)
				return
			}
			fl.fonts[e.key] = f
		}
	})
	return fl.err
}

func isMono(family string) bool {
	return slices.ContainsFunc(MonoFamilies, func(m string) bool { return strings.EqualFold(m, family) })
}

// Face returns a face for spec. The caller closes it.
func (fl *FontLibrary) Face(spec FontSpec) (font.Face, error) {
	if spec.Size <= 0 {
		return nil, fmt.Errorf("font size %v must be positive", spec.Size)
	}
	if err := fl.load(); err != nil {
		return nil, err
	}
	f := fl.fonts[fontKey{mono: isMono(spec.Family), bold: spec.Bold, italic: spec.Italic}]
	return opentype.NewFace(f, &opentype.FaceOptions{Size: spec.Size, DPI: 72, Hinting: font.HintingNone})
}
