/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/editor/editortest"
	"pixnoma/internal/scene"
	"pixnoma/internal/snapshot"
)

const imgURL = "https://ik.imagekit.io/pixnoma/u1/photo.jpg"

func newProject(w, h int) domain.Project {
	return domain.Project{ID: "p1", Owner: "u1", Title: "Photo", Width: w, Height: h, OriginalImageURL: imgURL}
}

func open(t *testing.T, svc *editortest.Service, ld *editortest.Loader, rec *editor.Recorder) *editor.Session {
	t.Helper()
	s, err := editor.Open(context.Background(), svc, "p1", editor.Options{
		Owner: "u1", Loader: ld, Notifier: rec, AutosaveDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Dispose(context.Background(), false) })
	return s
}

func TestOpenImportsAndFitsImage(t *testing.T) {
	svc := editortest.NewService(newProject(1080, 1920))
	s := open(t, svc, editortest.NewLoader(1200, 800), &editor.Recorder{})
	objs := s.Store().Objects()
	if len(objs) != 1 || objs[0].Kind != scene.KindImage {
		t.Fatalf("want one image, got %d objects", len(objs))
	}
	img := objs[0]
	if img.ScaleX != 0.9 || img.ScaleY != 0.9 {
		t.Fatalf("fit scale got %v,%v want 0.9", img.ScaleX, img.ScaleY)
	}
	if img.Left != 540 || img.Top != 960 || img.OriginX != scene.OriginCenter {
		t.Fatalf("image not centered: %+v", img.Transform)
	}
	if bg := s.Store().Background(); bg.Color != editor.DefaultBackground {
		t.Fatalf("background got %q", bg.Color)
	}
	if s.History().CanUndo() {
		t.Fatalf("the opening state must not be undoable")
	}
}

func TestFitContainByHeight(t *testing.T) {
	got := editor.FitContain(1600, 900, 800, 1000)
	if math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("FitContain got %v want 0.9", got)
	}
}

func TestOpenRestoresCanvasState(t *testing.T) {
	img := scene.NewImage(imgURL, 400, 300)
	img.Left, img.Top, img.ScaleX, img.ScaleY = 10, 20, 2, 2
	state, err := snapshot.Encode(scene.Scene{Width: 800, Height: 600, Background: scene.Background{Color: "#112233"},
		Objects: []*scene.Object{img}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	p := newProject(800, 600)
	p.CanvasState = json.RawMessage(state)
	svc := editortest.NewService(p)
	ld := editortest.NewLoader(1, 1)
	s := open(t, svc, ld, &editor.Recorder{})
	if len(ld.Calls()) != 0 {
		t.Fatalf("restoring must not import the image again")
	}
	objs := s.Store().Objects()
	if len(objs) != 1 || objs[0].Left != 10 || objs[0].ScaleX != 2 {
		t.Fatalf("restored objects: %+v", objs)
	}
	if s.Store().Background().Color != "#112233" {
		t.Fatalf("background not restored")
	}
	if s.PendingSave() {
		t.Fatalf("restored state must not schedule an autosave")
	}
}

func TestOpenWithCorruptStateStillOpens(t *testing.T) {
	p := newProject(800, 600)
	p.CanvasState = json.RawMessage(`{"objects": "nope"}`)
	rec := &editor.Recorder{}
	s := open(t, editortest.NewService(p), editortest.NewLoader(1, 1), rec)
	if n := len(s.Store().Objects()); n != 0 {
		t.Fatalf("want empty canvas, got %d objects", n)
	}
	m, ok := rec.Last()
	if !ok || m.Level != editor.LevelError {
		t.Fatalf("expected an error notification, got %+v", m)
	}
}

func TestOpenUnknownProject(t *testing.T) {
	_, err := editor.Open(context.Background(), editortest.NewService(), "missing", editor.Options{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAutosaveAfterImportAndEdits(t *testing.T) {
	svc := editortest.NewService(newProject(800, 600))
	s := open(t, svc, editortest.NewLoader(800, 600), &editor.Recorder{})
	waitFor(t, func() bool { return len(svc.Updates()) == 1 })

	for i := 0; i < 5; i++ {
		s.Store().SetBackgroundColor("#00000" + string(rune('0'+i)))
	}
	waitFor(t, func() bool { return len(svc.Updates()) == 2 })
	time.Sleep(60 * time.Millisecond)
	if n := len(svc.Updates()); n != 2 {
		t.Fatalf("burst must coalesce into one persist, got %d updates", n)
	}
	sc, err := snapshot.Decode(svc.Project("p1").CanvasState, 0, 0)
	if err != nil {
		t.Fatalf("persisted state does not decode: %v", err)
	}
	if sc.Background.Color != "#000004" {
		t.Fatalf("persisted background got %q", sc.Background.Color)
	}
}

func TestAutosaveFailureKeepsLocalState(t *testing.T) {
	p := newProject(800, 600)
	p.OriginalImageURL = ""
	svc := editortest.NewService(p)
	svc.SetErr(domain.ErrUnauthorized)
	rec := &editor.Recorder{}
	s := open(t, svc, editortest.NewLoader(1, 1), rec)
	s.Store().SetBackgroundColor("#abcdef")
	waitFor(t, func() bool { _, ok := rec.Last(); return ok })
	if m, _ := rec.Last(); m.Level != editor.LevelError {
		t.Fatalf("want error notification, got %+v", m)
	}
	if s.Store().Background().Color != "#abcdef" {
		t.Fatalf("local state rolled back")
	}
}

func TestProcessingFlag(t *testing.T) {
	s := open(t, editortest.NewService(newProject(800, 600)), editortest.NewLoader(800, 600), &editor.Recorder{})
	done, err := s.BeginProcessing("Removing background")
	if err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if _, err := s.BeginProcessing("Retouching"); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("second BeginProcessing: want ErrBusy, got %v", err)
	}
	if got := s.Processing(); got != "Removing background" {
		t.Fatalf("Processing got %q", got)
	}
	done()
	done()
	if s.Processing() != "" {
		t.Fatalf("flag not cleared")
	}
}

func TestCheckDetectsStaleTargets(t *testing.T) {
	s := open(t, editortest.NewService(newProject(800, 600)), editortest.NewLoader(800, 600), &editor.Recorder{})
	img, _ := s.Store().MainImage()
	if err := s.Check(img.ID); err != nil {
		t.Fatalf("Check live target: %v", err)
	}
	_ = s.Store().RemoveObject(img.ID)
	if err := s.Check(img.ID); !errors.Is(err, domain.ErrStale) {
		t.Fatalf("removed target: want ErrStale, got %v", err)
	}
	_ = s.Dispose(context.Background(), false)
	if err := s.Check(""); !errors.Is(err, domain.ErrStale) {
		t.Fatalf("disposed session: want ErrStale, got %v", err)
	}
}

func TestUpdateProjectMirrorsLocally(t *testing.T) {
	svc := editortest.NewService(newProject(800, 600))
	s := open(t, svc, editortest.NewLoader(800, 600), &editor.Recorder{})
	if err := s.UpdateProject(context.Background(), domain.ProjectUpdate{ActiveTransformation: domain.Ptr("e-retouch")}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if got := s.Project().ActiveTransformation; got != "e-retouch" {
		t.Fatalf("local record got %q", got)
	}
	if got := svc.Project("p1").ActiveTransformation; got != "e-retouch" {
		t.Fatalf("remote record got %q", got)
	}
}

func TestResizeUpdatesViewportOnly(t *testing.T) {
	s := open(t, editortest.NewService(newProject(800, 600)), editortest.NewLoader(800, 600), &editor.Recorder{})
	if _, ok := s.SetContainer(0, 0); ok {
		t.Fatalf("zero container must defer rendering")
	}
	d, ok := s.SetContainer(440, 1000)
	if !ok || d.Zoom != 0.5 {
		t.Fatalf("display got %+v ok=%v", d, ok)
	}
	before, _ := s.Store().MainImage()
	if err := s.Store().Resize(1600, 600); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	d, _ = s.Display()
	if d.Zoom != 0.25 {
		t.Fatalf("zoom after resize got %v want 0.25", d.Zoom)
	}
	after, _ := s.Store().MainImage()
	if after.Left != before.Left || after.Top != before.Top || after.ScaleX != before.ScaleX {
		t.Fatalf("resize moved objects")
	}
	x, y := s.ToLogical(100, 50)
	if x != 400 || y != 200 {
		t.Fatalf("ToLogical got %v,%v", x, y)
	}
}

func TestUndoRedoThroughSession(t *testing.T) {
	s := open(t, editortest.NewService(newProject(800, 600)), editortest.NewLoader(800, 600), &editor.Recorder{})
	s.Store().SetBackgroundColor("#ff0000")
	if ok, err := s.Undo(); !ok || err != nil {
		t.Fatalf("Undo ok=%v err=%v", ok, err)
	}
	if got := s.Store().Background().Color; got != editor.DefaultBackground {
		t.Fatalf("after undo got %q", got)
	}
	if ok, err := s.Redo(); !ok || err != nil {
		t.Fatalf("Redo ok=%v err=%v", ok, err)
	}
	if got := s.Store().Background().Color; got != "#ff0000" {
		t.Fatalf("after redo got %q", got)
	}
}

func TestDisposeFlushesPendingSave(t *testing.T) {
	svc := editortest.NewService(newProject(800, 600))
	s, err := editor.Open(context.Background(), svc, "p1", editor.Options{
		Owner: "u1", Loader: editortest.NewLoader(800, 600), AutosaveDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Store().SetBackgroundColor("#010203")
	if !s.PendingSave() {
		t.Fatalf("expected a pending save")
	}
	if err := s.Dispose(context.Background(), true); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if len(svc.Updates()) != 1 {
		t.Fatalf("flush on dispose: got %d updates", len(svc.Updates()))
	}
	if _, err := s.Undo(); !errors.Is(err, domain.ErrDisposed) {
		t.Fatalf("Undo after dispose: want ErrDisposed, got %v", err)
	}
	s.Store().SetBackgroundColor("#ffffff")
	time.Sleep(20 * time.Millisecond)
	if len(svc.Updates()) != 1 {
		t.Fatalf("disposed session must not persist")
	}
}

func TestDisposeAbandonsPendingSave(t *testing.T) {
	svc := editortest.NewService(newProject(800, 600))
	s, err := editor.Open(context.Background(), svc, "p1", editor.Options{
		Owner: "u1", Loader: editortest.NewLoader(800, 600), AutosaveDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Dispose(context.Background(), false); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if len(svc.Updates()) != 0 {
		t.Fatalf("abandoned save was written")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
