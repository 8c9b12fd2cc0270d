/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"strings"
	"testing"
)

func TestParseStepsAndOptions(t *testing.T) {
	input := `# make a square post
crop 300 200 600 400 aspect=1.5
resize preset "Instagram Post"
adjust brightness=20 hue=-45

text "Summer sale" font="Times New Roman" size=48 color=#ff0000 bold
  Everything must go
; keep the subject
background remove
extend left amount=150
undo 2
save`

	s, errs := Parse(input)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(s.Steps) != 8 {
		t.Fatalf("expected 8 steps, got %d", len(s.Steps))
	}
	crop := s.Steps[0]
	if crop.Command != CmdCrop || strings.Join(crop.Args, ",") != "300,200,600,400" || crop.Opts["aspect"] != "1.5" {
		t.Fatalf("unexpected crop step: %+v", crop)
	}
	if crop.LineNo != 2 {
		t.Fatalf("crop line got %d want 2", crop.LineNo)
	}
	if rs := s.Steps[1]; rs.Args[0] != "preset" || rs.Args[1] != "Instagram Post" {
		t.Fatalf("unexpected resize step: %+v", rs)
	}
	txt := s.Steps[3]
	if txt.Command != CmdText || txt.Args[0] != "Summer sale\nEverything must go" {
		t.Fatalf("unexpected text step: %+v", txt)
	}
	if txt.Opts["font"] != "Times New Roman" || txt.Opts["size"] != "48" {
		t.Fatalf("unexpected text options: %+v", txt.Opts)
	}
	if _, ok := txt.Opt("bold"); !ok {
		t.Fatalf("bold flag missing: %+v", txt.Opts)
	}
	if _, ok := txt.Opt("italic"); ok {
		t.Fatalf("italic should not be set")
	}
	if ext := s.Steps[5]; ext.Args[0] != "left" || ext.Opts["amount"] != "150" {
		t.Fatalf("unexpected extend step: %+v", ext)
	}
	if s.Steps[7].Command != CmdSave || s.Steps[7].LineNo != 12 {
		t.Fatalf("unexpected last step: %+v", s.Steps[7])
	}
}

func TestParseQuotedWordIsNotAFlag(t *testing.T) {
	s, errs := Parse(`text "bold"`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	st := s.Steps[0]
	if st.Args[0] != "bold" || len(st.Opts) != 0 {
		t.Fatalf("quoted content parsed as flag: %+v", st)
	}
}

func TestParseErrorsCarryPosition(t *testing.T) {
	input := `crop 10 20 thirty 40
blur 3
resize 100
background color
adjust sharpness=3
undo 0
extend left amount=lots
save`

	s, errs := Parse(input)
	if len(s.Steps) != 1 || s.Steps[0].Command != CmdSave {
		t.Fatalf("only save should parse, got %+v", s.Steps)
	}
	want := []Error{
		{Line: 1, Column: 12},
		{Line: 2, Column: 1},
		{Line: 3, Column: 8},
		{Line: 4, Column: 12},
		{Line: 5, Column: 8},
		{Line: 6, Column: 6},
		{Line: 7, Column: 13},
	}
	if len(errs) != len(want) {
		t.Fatalf("expected %d errors, got %d: %+v", len(want), len(errs), errs)
	}
	for i, w := range want {
		if errs[i].Line != w.Line || errs[i].Column != w.Column {
			t.Fatalf("error %d at %d:%d want %d:%d (%s)", i, errs[i].Line, errs[i].Column, w.Line, w.Column, errs[i].Message)
		}
		if errs[i].Message == "" {
			t.Fatalf("error %d has no message", i)
		}
	}
	if !strings.Contains(errs[1].Message, `unknown command "blur"`) {
		t.Fatalf("unexpected message: %q", errs[1].Message)
	}
}

func TestParseBackgroundActions(t *testing.T) {
	_, errs := Parse("background clear now\nbackground color #fff index=2\nbackground paint x")
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %+v", errs)
	}
	s, errs := Parse(`background stock "mountain lake" index=2`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if st := s.Steps[0]; st.Args[1] != "mountain lake" || st.Opts["index"] != "2" {
		t.Fatalf("unexpected stock step: %+v", st)
	}
}

func TestParseEmptyAndComments(t *testing.T) {
	s, errs := Parse("\n# only comments\n; here\n\n")
	if len(errs) != 0 || len(s.Steps) != 0 {
		t.Fatalf("expected nothing, got %+v %+v", s.Steps, errs)
	}
}

func TestErrorString(t *testing.T) {
	e := Error{Line: 3, Column: 7, Message: "crop: boom"}
	if got := e.Error(); got != "line 3:7: crop: boom" {
		t.Fatalf("got %q", got)
	}
}
