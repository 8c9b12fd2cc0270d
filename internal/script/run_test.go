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
	"context"
	"errors"
	"testing"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/editor/editortest"
	"pixnoma/internal/scene"
	"pixnoma/internal/tools"
)

const photoURL = "https://ik.imagekit.io/pixnoma/u1/photo.jpg"

type fixture struct {
	s      *editor.Session
	svc    *editortest.Service
	loader *editortest.Loader
	tb     *tools.Toolbox
	r      *Runner
}

func newFixture(t *testing.T, w, h, imgW, imgH int) fixture {
	t.Helper()
	p := domain.Project{ID: "p1", Owner: "u1", Width: w, Height: h, OriginalImageURL: photoURL}
	f := fixture{svc: editortest.NewService(p), loader: editortest.NewLoader(imgW, imgH)}
	s, err := editor.New(context.Background(), f.svc, p, editor.Options{
		Owner: "u1", Loader: f.loader, AutosaveDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("editor.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Dispose(context.Background(), false) })
	f.s = s
	f.tb = tools.NewToolbox(s, tools.Deps{}, 0)
	t.Cleanup(f.tb.Close)
	f.r = NewRunner(s, f.tb)
	return f
}

func mustParse(t *testing.T, src string) Script {
	t.Helper()
	s, errs := Parse(src)
	if len(errs) != 0 {
		t.Fatalf("parse errors: %+v", errs)
	}
	return s
}

func TestRunCropUndoRedo(t *testing.T) {
	f := newFixture(t, 1200, 800, 1200, 800)
	n, err := f.r.Run(context.Background(), mustParse(t, "crop 300 200 600 400\nundo\nredo"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 3 {
		t.Fatalf("applied %d steps want 3", n)
	}
	img, ok := f.s.Store().MainImage()
	if !ok {
		t.Fatalf("no main image")
	}
	want := scene.R(300, 200, 600, 400)
	if img.Image.Crop == nil || *img.Image.Crop != want {
		t.Fatalf("crop got %+v want %+v", img.Image.Crop, want)
	}
}

func TestRunTextAndStyle(t *testing.T) {
	f := newFixture(t, 800, 600, 800, 600)
	src := `text "Hello" font=Georgia size=200 color=#ff0000 bold
  world
style align=center italic`
	if _, err := f.r.Run(context.Background(), mustParse(t, src)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	o, ok := f.tb.Text.Selected()
	if !ok {
		t.Fatalf("no text selected")
	}
	x := o.Text
	if x.Content != "Hello\nworld" || x.FontFamily != "Georgia" || x.FontSize != tools.MaxFontSize || x.Fill != "#ff0000" {
		t.Fatalf("unexpected text %+v", x)
	}
	if !x.Bold || !x.Italic || x.Underline || x.TextAlign != "center" {
		t.Fatalf("unexpected format %+v", x)
	}
	// Repeating a flag keeps it on.
	if _, err := f.r.Run(context.Background(), mustParse(t, "style bold")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o, _ := f.tb.Text.Selected(); !o.Text.Bold {
		t.Fatalf("bold toggled off")
	}
}

func TestRunAdjustAndResizePreset(t *testing.T) {
	f := newFixture(t, 1600, 900, 1600, 900)
	src := "adjust brightness=50 blur=0\nresize preset \"instagram post\""
	if _, err := f.r.Run(context.Background(), mustParse(t, src)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	img, _ := f.s.Store().MainImage()
	if len(img.Image.Filters) != 1 || img.Image.Filters[0].Kind != scene.FilterBrightness || img.Image.Filters[0].Value != 0.5 {
		t.Fatalf("unexpected filters %+v", img.Image.Filters)
	}
	if w, h := f.s.Store().Size(); w != 1200 || h != 1200 {
		t.Fatalf("size got %dx%d want 1200x1200", w, h)
	}
	ups := f.svc.Updates()
	if len(ups) == 0 || ups[len(ups)-1].Width == nil || *ups[len(ups)-1].Width != 1200 {
		t.Fatalf("resize not persisted: %+v", ups)
	}
}

func TestRunStopsAtFailingStep(t *testing.T) {
	f := newFixture(t, 800, 600, 800, 600)
	sc := mustParse(t, "background color #112233\nstyle size=30\nbackground clear")
	n, err := f.r.Run(context.Background(), sc)
	if n != 1 {
		t.Fatalf("applied %d steps want 1", n)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Step.LineNo != 2 {
		t.Fatalf("expected step error on line 2, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if bg := f.s.Store().Background(); bg.Color != "#112233" {
		t.Fatalf("background got %+v", bg)
	}
}

func TestRunUndoPastHistory(t *testing.T) {
	f := newFixture(t, 800, 600, 800, 600)
	_, err := f.r.Run(context.Background(), mustParse(t, "undo 3"))
	if !errors.Is(err, ErrHistoryExhausted) {
		t.Fatalf("expected ErrHistoryExhausted, got %v", err)
	}
}

func TestRunExtendUsesDirectionAndAmount(t *testing.T) {
	f := newFixture(t, 1200, 800, 1200, 800)
	if _, err := f.r.Run(context.Background(), mustParse(t, "extend left amount=200")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := f.loader.Calls()
	want := photoURL + "?tr=bg-genfill,w-1400,h-800,cm-pad_resize,fo-right"
	if calls[len(calls)-1] != want {
		t.Fatalf("extend url got %q want %q", calls[len(calls)-1], want)
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	f := newFixture(t, 800, 600, 800, 600)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := f.r.Run(ctx, mustParse(t, "background color #000"))
	if n != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}
