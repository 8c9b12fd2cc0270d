/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package tools implements the editing modes of the canvas: crop, resize, adjust, text,
// background, AI extend and AI retouch. Every tool works on an explicit editor.Session.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/imagekit"
	applog "pixnoma/internal/log"
	"pixnoma/internal/scene"
	"pixnoma/internal/stock"
)

// Name identifies a tool.
type Name string

const (
	NameResize     Name = "resize"
	NameCrop       Name = "crop"
	NameAdjust     Name = "adjust"
	NameText       Name = "text"
	NameBackground Name = "background"
	NameExtend     Name = "ai_extender"
	NameRetouch    Name = "ai_edit"
)

// Names lists every tool in sidebar order.
var Names = []Name{NameResize, NameCrop, NameAdjust, NameText, NameBackground, NameExtend, NameRetouch}

// Tool is one editing mode.
type Tool interface {
	Name() Name
	Activate() error
	Deactivate()
}

// Searcher is the stock photo search the background tool uses. stock.Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]stock.Photo, error)
	TrackDownload(ctx context.Context, photoID string)
}

// Deps are the external collaborators of the tools.
type Deps struct {
	// Hosted reports whether URL transformations apply to src. Nil treats every URL as hosted.
	Hosted func(src string) bool
	Stock  Searcher
}

func (d Deps) hosted(src string) bool {
	if d.Hosted == nil {
		return true
	}
	return d.Hosted(src)
}

func toolLogger(n Name) *slog.Logger { return applog.WithComponent("tools." + string(n)) }

// logContext tags ctx so log records carry the session's project and the tool.
func logContext(ctx context.Context, s *editor.Session, n Name) context.Context {
	return applog.WithTool(applog.WithProject(ctx, s.Project().ID), string(n))
}

// mainImage returns the image tools operate on or ErrNotFound.
func mainImage(s *editor.Session) (*scene.Object, error) {
	img, ok := s.Store().MainImage()
	if !ok {
		return nil, fmt.Errorf("no image on canvas: %w", domain.ErrNotFound)
	}
	return img, nil
}

// firstImage returns the bottom-most image, which AI tools treat as the subject.
func firstImage(s *editor.Session) (*scene.Object, error) {
	for _, o := range s.Store().Objects() {
		if o.Kind == scene.KindImage {
			return o, nil
		}
	}
	return nil, fmt.Errorf("no image on canvas: %w", domain.ErrNotFound)
}

// replacement describes an image swap. With preserve the outgoing placement is kept,
// otherwise configure positions the new object.
type replacement struct {
	src       string
	preserve  bool
	configure func(next *scene.Object, asset imagekit.Asset)
}

// replaceImage loads r.src and swaps it in for targetID once it arrives. The session and
// target are re-validated after the load; a stale result is discarded.
func replaceImage(ctx context.Context, s *editor.Session, targetID string, r replacement) (*scene.Object, error) {
	ld := s.Loader()
	if ld == nil {
		return nil, fmt.Errorf("no image loader configured: %w", domain.ErrExternal)
	}
	asset, err := ld.Load(ctx, r.src)
	if err != nil {
		if !errors.Is(err, domain.ErrExternal) {
			err = fmt.Errorf("%v: %w", err, domain.ErrExternal)
		}
		return nil, err
	}
	if err := s.Check(targetID); err != nil {
		return nil, err
	}
	old, ok := s.Store().Object(targetID)
	if !ok {
		return nil, fmt.Errorf("object %s removed: %w", targetID, domain.ErrStale)
	}
	next := scene.NewImage(asset.URL, asset.Width, asset.Height)
	if old.Image != nil {
		next.Image.Filters = append([]scene.Filter(nil), old.Image.Filters...)
	}
	if r.configure != nil {
		r.configure(next, asset)
	}
	if err := s.Store().ReplaceObject(targetID, next, r.preserve); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("object %s removed: %w", targetID, domain.ErrStale)
		}
		return nil, err
	}
	_ = s.Store().SetActiveObject(next.ID)
	got, _ := s.Store().Object(next.ID)
	return got, nil
}

// report turns a tool failure into a user notification and returns err unchanged.
// Stale results are dropped quietly.
func report(ctx context.Context, s *editor.Session, l *slog.Logger, msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStale) {
		l.InfoContext(ctx, "result discarded", slog.Any("err", err))
		return err
	}
	l.WarnContext(ctx, msg, slog.Any("err", err))
	s.Notify(editor.LevelError, msg)
	return err
}

// applied records a successful tool operation.
func applied(s *editor.Session, tool Name, props map[string]any) {
	p := map[string]any{"tool": string(tool)}
	for k, v := range props {
		p[k] = v
	}
	s.Track("tool_applied", p)
}

// base is embedded by tools without activation state.
type base struct {
	s    *editor.Session
	log  *slog.Logger
	mu   sync.Mutex
	busy bool
}

func newBase(s *editor.Session, n Name) base { return base{s: s, log: toolLogger(n)} }

// begin guards against a second concurrent invocation of the same tool.
func (b *base) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return domain.ErrBusy
	}
	b.busy = true
	return nil
}

func (b *base) end() {
	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()
}

func (b *base) Activate() error { return nil }
func (b *base) Deactivate()     {}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
