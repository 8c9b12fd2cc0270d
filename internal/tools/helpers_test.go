/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package tools

import (
	"context"
	"testing"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/editor/editortest"
	"pixnoma/internal/scene"
)

const photoURL = "https://ik.imagekit.io/pixnoma/u1/photo.jpg"

type fixture struct {
	s      *editor.Session
	svc    *editortest.Service
	loader *editortest.Loader
	rec    *editor.Recorder
}

// newFixture opens a w x h canvas holding one imported image of imgW x imgH.
func newFixture(t *testing.T, w, h, imgW, imgH int) fixture {
	t.Helper()
	p := domain.Project{ID: "p1", Owner: "u1", Width: w, Height: h, OriginalImageURL: photoURL}
	f := fixture{svc: editortest.NewService(p), loader: editortest.NewLoader(imgW, imgH), rec: &editor.Recorder{}}
	s, err := editor.New(context.Background(), f.svc, p, editor.Options{
		Owner: "u1", Loader: f.loader, Notifier: f.rec, AutosaveDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("editor.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Dispose(context.Background(), false) })
	f.s = s
	return f
}

func (f fixture) main(t *testing.T) *scene.Object {
	t.Helper()
	img, ok := f.s.Store().MainImage()
	if !ok {
		t.Fatalf("no main image")
	}
	return img
}

func countKind(objs []*scene.Object, k scene.Kind) int {
	n := 0
	for _, o := range objs {
		if o.Kind == k {
			n++
		}
	}
	return n
}
