/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor holds the canvas editing session: one handle that carries the scene
// store, its history and autosave, the viewport and the external services a tool needs.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixnoma/internal/autosave"
	"pixnoma/internal/domain"
	"pixnoma/internal/history"
	"pixnoma/internal/imagekit"
	applog "pixnoma/internal/log"
	"pixnoma/internal/scene"
	"pixnoma/internal/snapshot"
	"pixnoma/internal/viewport"
)

// DefaultBackground is the fill of a freshly opened canvas.
const DefaultBackground = "#ffffff"

// Loader resolves an image URL (including any transformation directives) to a decoded asset.
// imagekit.Client implements it.
type Loader interface {
	Load(ctx context.Context, src string) (imagekit.Asset, error)
}

// Options configure a Session. Zero values fall back to defaults.
type Options struct {
	Owner           string
	HistoryCapacity int
	AutosaveDelay   time.Duration
	Margin          float64
	Loader          Loader
	Notifier        Notifier
	Tracker         Tracker
}

// Session is the explicit handle passed to every tool. It is safe for concurrent use;
// scene mutations themselves are serialized by the store.
type Session struct {
	svc      domain.ProjectService
	owner    string
	store    *scene.Store
	history  *history.Manager
	autosave *autosave.Coordinator
	loader   Loader
	notifier Notifier
	tracker  Tracker
	log      *slog.Logger

	mu         sync.Mutex
	project    domain.Project
	view       *viewport.Viewport
	processing string
	disposed   bool
	unsubView  func()
}

// Open fetches the project and starts a session on it.
func Open(ctx context.Context, svc domain.ProjectService, projectID string, opts Options) (*Session, error) {
	p, err := svc.GetProject(ctx, opts.Owner, projectID)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", projectID, err)
	}
	return New(ctx, svc, p, opts)
}

// New starts a session on p. The scene is restored from p.CanvasState when present,
// otherwise the project image is imported and fitted into the canvas. A state or image
// that cannot be loaded is reported and the session opens with an empty canvas.
func New(ctx context.Context, svc domain.ProjectService, p domain.Project, opts Options) (*Session, error) {
	if svc == nil {
		return nil, errors.New("editor: project service is required")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("open project %s: size %dx%d: %w", p.ID, p.Width, p.Height, domain.ErrValidation)
	}
	l := applog.WithComponent("editor").With(slog.String("project", p.ID))
	if opts.Margin <= 0 {
		opts.Margin = viewport.DefaultMargin
	}
	s := &Session{
		svc:      svc,
		owner:    opts.Owner,
		store:    scene.NewStore(p.Width, p.Height),
		loader:   opts.Loader,
		notifier: opts.Notifier,
		tracker:  opts.Tracker,
		log:      l,
		project:  p,
		view:     viewport.New(p.Width, p.Height, opts.Margin),
	}
	if s.notifier == nil {
		s.notifier = logNotifier{log: l}
	}
	if s.tracker == nil {
		s.tracker = nopTracker{}
	}
	s.store.SetBackgroundColor(DefaultBackground)

	restored, imported := false, false
	if len(p.CanvasState) > 0 {
		sc, err := snapshot.Decode(p.CanvasState, p.Width, p.Height)
		if err == nil {
			sc.Width, sc.Height = p.Width, p.Height
			err = s.store.Restore(sc)
		}
		if err != nil {
			l.Warn("canvas state not loaded", slog.Any("err", err))
			s.notifier.Notify(LevelError, "Could not load the saved canvas")
		} else {
			restored = true
		}
	} else if src := p.ImportURL(); src != "" {
		if err := s.importImage(ctx, src); err != nil {
			l.Warn("image import failed", slog.String("src", imagekit.Base(src)), slog.Any("err", err))
			s.notifier.Notify(LevelError, "Could not load the project image")
		} else {
			imported = true
		}
	}

	s.history = history.New(s.store, history.Config{Capacity: opts.HistoryCapacity})
	if err := s.history.Attach(); err != nil {
		return nil, fmt.Errorf("open project %s: %w", p.ID, err)
	}
	s.autosave = autosave.New(s.store, autosave.PersistFunc(s.persistState), autosave.Options{
		Delay: opts.AutosaveDelay,
		OnError: func(err error) {
			s.notifier.Notify(LevelError, "Autosave failed, your edits are kept locally")
		},
	})
	if restored {
		if blob, err := snapshot.Encode(s.store.State()); err == nil {
			s.autosave.MarkSaved(blob)
		}
	}
	s.autosave.Attach()
	if imported {
		s.autosave.Notify()
	}
	s.unsubView = s.store.Subscribe(func(c scene.Change) {
		if c.Kind == scene.ChangeResized || c.Kind == scene.ChangeRestored {
			w, h := s.store.Size()
			s.mu.Lock()
			s.view.SetLogical(w, h)
			s.mu.Unlock()
		}
	})
	l.Info("session opened", slog.Bool("restored", restored), slog.Bool("imported", imported),
		slog.Int("objects", len(s.store.Objects())))
	return s, nil
}

// importImage loads src and places it fit-contained and centered at the back of the canvas.
func (s *Session) importImage(ctx context.Context, src string) error {
	if s.loader == nil {
		return errors.New("no image loader configured")
	}
	a, err := s.loader.Load(ctx, src)
	if err != nil {
		return err
	}
	if a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("image %s has no size: %w", imagekit.Base(src), domain.ErrExternal)
	}
	w, h := s.store.Size()
	img := scene.NewImage(a.URL, a.Width, a.Height)
	img.ScaleX = FitContain(float64(w), float64(h), float64(a.Width), float64(a.Height))
	img.ScaleY = img.ScaleX
	img.OriginX, img.OriginY = scene.OriginCenter, scene.OriginCenter
	img.Left, img.Top = float64(w)/2, float64(h)/2
	if err := s.store.AddObject(img); err != nil {
		return err
	}
	return s.store.SendToBack(img.ID)
}

// FitContain returns the uniform scale that fits an image of iw x ih inside cw x ch.
func FitContain(cw, ch, iw, ih float64) float64 {
	if iw <= 0 || ih <= 0 {
		return 1
	}
	if iw/ih > cw/ch {
		return cw / iw
	}
	return ch / ih
}

// Store returns the scene store.
func (s *Session) Store() *scene.Store { return s.store }

// History returns the undo/redo manager.
func (s *Session) History() *history.Manager { return s.history }

// Loader returns the image loader, or nil when none is configured.
func (s *Session) Loader() Loader { return s.loader }

// Owner is the user the session persists as.
func (s *Session) Owner() string { return s.owner }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.log }

// Project returns a copy of the project record as last persisted.
func (s *Session) Project() domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Notify forwards a user-facing message.
func (s *Session) Notify(level Level, msg string) { s.notifier.Notify(level, msg) }

// Track records an anonymous usage event.
func (s *Session) Track(name string, props map[string]any) { s.tracker.Event(name, props) }

// SetContainer records the on-screen container size and returns the display transform.
// ok is false while the container has no usable size; rendering must wait.
func (s *Session) SetContainer(w, h float64) (viewport.Display, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.SetContainer(w, h)
}

// Display returns the current display transform.
func (s *Session) Display() (viewport.Display, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Display()
}

// ToLogical maps a display point to logical canvas coordinates.
func (s *Session) ToLogical(x, y float64) (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.ToLogical(x, y)
}

// Processing returns the message of the long-running operation in flight, if any.
func (s *Session) Processing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// BeginProcessing marks a long-running operation. It fails with ErrBusy while another one
// is in flight. The returned function clears the flag.
func (s *Session) BeginProcessing(msg string) (done func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, domain.ErrDisposed
	}
	if s.processing != "" {
		return nil, fmt.Errorf("%s in progress: %w", s.processing, domain.ErrBusy)
	}
	s.processing = msg
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.processing = ""
			s.mu.Unlock()
		})
	}, nil
}

// Disposed reports whether the session has been closed.
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Check verifies that an async result may still be committed: the session is open and,
// when targetID is set, the target object still exists.
func (s *Session) Check(targetID string) error {
	if s.Disposed() {
		return fmt.Errorf("session closed: %w", domain.ErrStale)
	}
	if targetID != "" && !s.store.Has(targetID) {
		return fmt.Errorf("object %s removed: %w", targetID, domain.ErrStale)
	}
	return nil
}

// CanvasState serializes the current scene.
func (s *Session) CanvasState() ([]byte, error) {
	return snapshot.Encode(s.store.State())
}

func (s *Session) persistState(ctx context.Context, state []byte) error {
	return s.update(ctx, domain.ProjectUpdate{CanvasState: state})
}

// UpdateProject writes a partial update for this session's project and mirrors it into
// the local record. A canvas state written this way also counts as autosaved.
func (s *Session) UpdateProject(ctx context.Context, u domain.ProjectUpdate) error {
	if s.Disposed() {
		return domain.ErrDisposed
	}
	if err := s.update(ctx, u); err != nil {
		return err
	}
	if len(u.CanvasState) > 0 {
		s.autosave.MarkSaved(u.CanvasState)
	}
	return nil
}

func (s *Session) update(ctx context.Context, u domain.ProjectUpdate) error {
	s.mu.Lock()
	u.ProjectID = s.project.ID
	s.mu.Unlock()
	if u.Empty() {
		return nil
	}
	if _, err := s.svc.UpdateProject(ctx, s.owner, u); err != nil {
		return fmt.Errorf("update project %s: %w", u.ProjectID, err)
	}
	s.mu.Lock()
	u.Apply(&s.project, time.Now().UTC())
	s.mu.Unlock()
	return nil
}

// Undo reverts the last structural change. A replay failure is reported and leaves the
// session in its last good state.
func (s *Session) Undo() (bool, error) {
	if s.Disposed() {
		return false, domain.ErrDisposed
	}
	ok, err := s.history.Undo()
	if err != nil {
		s.Notify(LevelError, "Undo failed")
	}
	return ok, err
}

// Redo re-applies the last undone change.
func (s *Session) Redo() (bool, error) {
	if s.Disposed() {
		return false, domain.ErrDisposed
	}
	ok, err := s.history.Redo()
	if err != nil {
		s.Notify(LevelError, "Redo failed")
	}
	return ok, err
}

// Flush persists a pending autosave now.
func (s *Session) Flush(ctx context.Context) error {
	return s.autosave.Flush(ctx)
}

// PendingSave reports whether a debounced autosave is scheduled.
func (s *Session) PendingSave() bool { return s.autosave.Pending() }

// Dispose closes the session. With flush a pending autosave is written first, otherwise
// it is abandoned. All store subscriptions are detached. Safe to call more than once.
func (s *Session) Dispose(ctx context.Context, flush bool) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	unsub := s.unsubView
	s.unsubView = nil
	s.mu.Unlock()

	err := s.autosave.Dispose(ctx, flush)
	s.history.Detach()
	if unsub != nil {
		unsub()
	}
	s.store.UnsubscribeAll()
	s.log.Info("session closed", slog.Bool("flushed", flush))
	return err
}
