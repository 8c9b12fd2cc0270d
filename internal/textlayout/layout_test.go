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

import "testing"

func TestLayoutAlignsLines(t *testing.T) {
	face, err := Default.Face(FontSpec{Family: "Arial", Size: 20})
	if err != nil {
		t.Fatalf("Face: %v", err)
	}
	defer face.Close()
	box := Layout(face, 20, "a much longer line\nshort", "center")
	if len(box.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(box.Lines))
	}
	long, short := box.Lines[0], box.Lines[1]
	if long.X != 0 || long.Width != box.Width {
		t.Fatalf("widest line should fill the box: %+v box %d", long, box.Width)
	}
	if short.Width >= long.Width || short.X != (box.Width-short.Width)/2 {
		t.Fatalf("short line not centered: %+v box %d", short, box.Width)
	}
	if box.LineHeight != 24 || box.Height != 48 {
		t.Fatalf("line height %d height %d want 24 and 48", box.LineHeight, box.Height)
	}
	if box.Baseline(1) != 24+box.Ascent {
		t.Fatalf("baseline got %d", box.Baseline(1))
	}

	right := Layout(face, 20, "a much longer line\nshort", "right")
	if right.Lines[1].X != right.Width-right.Lines[1].Width {
		t.Fatalf("short line not right aligned: %+v", right.Lines[1])
	}
	left := Layout(face, 20, "a much longer line\nshort", "justify")
	if left.Lines[1].X != 0 {
		t.Fatalf("justify should lay out like left: %+v", left.Lines[1])
	}
}

func TestMeasureDeterministic(t *testing.T) {
	w1, h1, err := Default.Measure(FontSpec{Size: 16}, "ABC")
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	w2, h2, _ := Default.Measure(FontSpec{Size: 16}, "ABC")
	if w1 != w2 || h1 != h2 || w1 <= 0 {
		t.Fatalf("expected same positive measure, got %dx%d vs %dx%d", w1, h1, w2, h2)
	}
}

func TestMonoFamilyHasFixedAdvance(t *testing.T) {
	spec := FontSpec{Family: "Courier New", Size: 30}
	wi, _, _ := Default.Measure(spec, "iiii")
	ww, _, _ := Default.Measure(spec, "WWWW")
	if wi != ww {
		t.Fatalf("mono widths differ: %d vs %d", wi, ww)
	}
	sans := FontSpec{Family: "Verdana", Size: 30}
	si, _, _ := Default.Measure(sans, "iiii")
	sw, _, _ := Default.Measure(sans, "WWWW")
	if si >= sw {
		t.Fatalf("sans should be proportional: %d vs %d", si, sw)
	}
}

func TestBoldIsWider(t *testing.T) {
	reg, _, _ := Default.Measure(FontSpec{Size: 40}, "Headline")
	bold, _, _ := Default.Measure(FontSpec{Size: 40, Bold: true}, "Headline")
	if bold <= reg {
		t.Fatalf("bold %d should be wider than regular %d", bold, reg)
	}
}

func TestFaceRejectsNonPositiveSize(t *testing.T) {
	if _, err := Default.Face(FontSpec{Size: 0}); err == nil {
		t.Fatalf("expected error for size 0")
	}
}
