/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package imagekit

// URL transformation directives. The hosting service applies them on the fly when the
// asset URL carries a tr query parameter with comma-joined tokens.

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	BgRemove     = "e-bgremove"
	RemoveDotBg  = "e-removedotbg"
	ChangeBg     = "e-changebg"
	Retouch      = "e-retouch"
	Upscale      = "e-upscale"
	Contrast     = "e-contrast"
	Sharpen      = "e-sharpen"
	GenFill      = "bg-genfill"
	PadResize    = "cm-pad_resize"
	changeBgPfx  = "e-changebg-prompt-"
	trParam      = "tr"
	thumbDirects = "w-800,h-450,q-90,c-at_max"
)

// Base strips the query string from src.
func Base(src string) string {
	if i := strings.IndexByte(src, '?'); i >= 0 {
		return src[:i]
	}
	return src
}

// Chain returns the existing tr chain of src, if any.
func Chain(src string) string {
	i := strings.IndexByte(src, '?')
	if i < 0 {
		return ""
	}
	q, err := url.ParseQuery(src[i+1:])
	if err != nil {
		return ""
	}
	return q.Get(trParam)
}

// With replaces any existing transformation on src with directives.
func With(src string, directives ...string) string {
	return Base(src) + "?" + trParam + "=" + strings.Join(directives, ",")
}

// Append adds directives after the existing tr chain of src.
func Append(src string, directives ...string) string {
	if prev := Chain(src); prev != "" {
		return With(src, append([]string{prev}, directives...)...)
	}
	return With(src, directives...)
}

// ChangeBackground is the prompt-driven background replacement directive.
func ChangeBackground(prompt string) string {
	return changeBgPfx + url.PathEscape(strings.TrimSpace(prompt))
}

// Extend builds the generative-fill padding directives for an output of w x h with a
// focus hint such as "fo-left".
func Extend(w, h int, focus string) []string {
	d := []string{GenFill, "w-" + strconv.Itoa(w), "h-" + strconv.Itoa(h), PadResize}
	if focus != "" {
		d = append(d, focus)
	}
	return d
}

// HasCutout reports whether src already carries a background removal or replacement.
func HasCutout(src string) bool {
	return strings.Contains(src, BgRemove) || strings.Contains(src, RemoveDotBg) || strings.Contains(src, ChangeBg)
}

// Thumbnail returns the landscape thumbnail URL for an uploaded asset.
func Thumbnail(src string) string { return With(src, thumbDirects) }
