/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
)

// ChangeKind classifies a store mutation.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeRemoved
	ChangeReplaced
	ChangeModified
	ChangeReordered
	ChangeBackground
	ChangeResized
	// ChangeRestored follows a whole-scene Restore (history replay, session load).
	ChangeRestored
	// ChangeOverlay covers add/remove of transient shapes. It is not structural.
	ChangeOverlay
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeReplaced:
		return "replaced"
	case ChangeModified:
		return "modified"
	case ChangeReordered:
		return "reordered"
	case ChangeBackground:
		return "background"
	case ChangeResized:
		return "resized"
	case ChangeRestored:
		return "restored"
	case ChangeOverlay:
		return "overlay"
	}
	return fmt.Sprintf("change(%d)", int(k))
}

// Structural reports whether the change alters persisted scene content.
func (k ChangeKind) Structural() bool { return k != ChangeOverlay }

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind     ChangeKind
	ObjectID string
}

// Listener receives change notifications synchronously, outside the store lock.
type Listener func(Change)

// Background is the canvas-level fill. Color and Image are mutually exclusive.
type Background struct {
	Color string
	Image *Object
}

// Scene is a detached copy of the persisted part of the store.
type Scene struct {
	Width      int
	Height     int
	Background Background
	Objects    []*Object
}

// Store owns the ordered object collection and the canvas background.
// It is the single source of truth for what is on the canvas.
type Store struct {
	mu      sync.Mutex
	width   int
	height  int
	bg      Background
	objects []*Object
	active  string

	// own holds the flags of objects whose interactivity is overridden by SetInteractive.
	own map[string]interaction

	subs    map[int]Listener
	nextSub int
	log     *slog.Logger
}

type interaction struct{ selectable, evented bool }

// NewStore creates an empty store with the given logical resolution (minimum 1x1).
func NewStore(width, height int) *Store {
	return &Store{
		width:  max(width, 1),
		height: max(height, 1),
		subs:   map[int]Listener{},
		own:    map[string]interaction{},
		log:    log.WithComponent("scene"),
	}
}

// Subscribe registers l and returns a function that detaches it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = l
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// UnsubscribeAll detaches every listener.
func (s *Store) UnsubscribeAll() {
	s.mu.Lock()
	s.subs = map[int]Listener{}
	s.mu.Unlock()
}

func (s *Store) emit(c Change) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.subs[id])
	}
	s.mu.Unlock()
	s.log.Debug("change", slog.String("kind", c.Kind.String()), slog.String("object", c.ObjectID))
	for _, l := range ls {
		l(c)
	}
}

func kindChange(o *Object, structural ChangeKind) ChangeKind {
	if o.Kind == KindShape {
		return ChangeOverlay
	}
	return structural
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.objects, func(o *Object) bool { return o.ID == id })
}

// Size returns the logical resolution.
func (s *Store) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Resize changes the logical resolution. Objects keep their absolute coordinates.
func (s *Store) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resize %dx%d: %w", width, height, domain.ErrValidation)
	}
	s.mu.Lock()
	if s.width == width && s.height == height {
		s.mu.Unlock()
		return nil
	}
	s.width, s.height = width, height
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeResized})
	return nil
}

// AddObject appends o as the front-most object. The store takes ownership of o.
func (s *Store) AddObject(o *Object) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("add object: missing identity: %w", domain.ErrValidation)
	}
	s.mu.Lock()
	if s.indexOf(o.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("add object %s: duplicate id: %w", o.ID, domain.ErrValidation)
	}
	s.objects = append(s.objects, o)
	s.mu.Unlock()
	s.emit(Change{Kind: kindChange(o, ChangeAdded), ObjectID: o.ID})
	return nil
}

// RemoveObject removes the object with id. Removing the active object clears the selection.
func (s *Store) RemoveObject(id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("remove object %s: %w", id, domain.ErrNotFound)
	}
	o := s.objects[i]
	s.objects = slices.Delete(s.objects, i, i+1)
	delete(s.own, id)
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()
	s.emit(Change{Kind: kindChange(o, ChangeRemoved), ObjectID: id})
	return nil
}

// ReplaceObject swaps the object oldID for next at the same z-position. With preserveTransform
// the outgoing placement and interactivity flags are copied onto next first.
func (s *Store) ReplaceObject(oldID string, next *Object, preserveTransform bool) error {
	if next == nil || next.ID == "" {
		return fmt.Errorf("replace object: missing identity: %w", domain.ErrValidation)
	}
	s.mu.Lock()
	i := s.indexOf(oldID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("replace object %s: %w", oldID, domain.ErrNotFound)
	}
	own, overridden := s.own[oldID]
	delete(s.own, oldID)
	if preserveTransform {
		next.CopyTransform(s.objects[i])
		if overridden {
			s.own[next.ID] = own
		}
	}
	s.objects[i] = next
	if s.active == oldID {
		s.active = next.ID
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeReplaced, ObjectID: next.ID})
	return nil
}

// Update mutates the object with id in place and emits a modification.
func (s *Store) Update(id string, fn func(o *Object)) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update object %s: %w", id, domain.ErrNotFound)
	}
	o := s.objects[i]
	before := interaction{o.Selectable, o.Evented}
	fn(o)
	if (interaction{o.Selectable, o.Evented}) != before {
		delete(s.own, id)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: kindChange(o, ChangeModified), ObjectID: id})
	return nil
}

// SetInteractive overrides the selectable/evented flags without notifying subscribers.
// Tools use it for temporary interaction locks: State keeps reporting the object's own
// flags, so a lock never enters history or autosave. Setting the flags back to the
// object's own values, or writing them through Update, ends the override.
func (s *Store) SetInteractive(id string, selectable, evented bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("set interactive %s: %w", id, domain.ErrNotFound)
	}
	o := s.objects[i]
	own, overridden := s.own[id]
	if !overridden {
		own = interaction{o.Selectable, o.Evented}
	}
	o.Selectable, o.Evented = selectable, evented
	if own == (interaction{selectable, evented}) {
		delete(s.own, id)
	} else {
		s.own[id] = own
	}
	return nil
}

// Objects returns detached copies of all objects in z-order (back to front).
func (s *Store) Objects() []*Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Object, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.Clone())
	}
	return out
}

// Object returns a detached copy of the object with id.
func (s *Store) Object(id string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.objects[i].Clone(), true
	}
	return nil, false
}

// Has reports whether an object with id is present.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// ActiveObject returns a copy of the selected object, if any.
func (s *Store) ActiveObject() (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return nil, false
	}
	if i := s.indexOf(s.active); i >= 0 {
		return s.objects[i].Clone(), true
	}
	return nil, false
}

// SetActiveObject selects id; an empty id clears the selection. Selection is not structural.
func (s *Store) SetActiveObject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.indexOf(id) < 0 {
		return fmt.Errorf("select %s: %w", id, domain.ErrNotFound)
	}
	s.active = id
	return nil
}

// MainImage returns the image tools operate on: the active object when it is an image,
// otherwise the first image in z-order.
func (s *Store) MainImage() (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(s.active); i >= 0 && s.objects[i].Kind == KindImage {
		return s.objects[i].Clone(), true
	}
	for _, o := range s.objects {
		if o.Kind == KindImage {
			return o.Clone(), true
		}
	}
	return nil, false
}

func (s *Store) move(id string, front bool) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("reorder %s: %w", id, domain.ErrNotFound)
	}
	o := s.objects[i]
	s.objects = slices.Delete(s.objects, i, i+1)
	if front {
		s.objects = append(s.objects, o)
	} else {
		s.objects = slices.Insert(s.objects, 0, o)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: kindChange(o, ChangeReordered), ObjectID: id})
	return nil
}

// BringToFront moves id to the top of the z-order.
func (s *Store) BringToFront(id string) error { return s.move(id, true) }

// SendToBack moves id to the bottom of the z-order.
func (s *Store) SendToBack(id string) error { return s.move(id, false) }

// Background returns a copy of the canvas background.
func (s *Store) Background() Background {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Background{Color: s.bg.Color, Image: s.bg.Image.Clone()}
}

// SetBackgroundColor sets a solid fill and drops any background image.
func (s *Store) SetBackgroundColor(color string) {
	s.mu.Lock()
	s.bg = Background{Color: color}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeBackground})
}

// SetBackgroundImage sets an image fill and drops any solid color.
func (s *Store) SetBackgroundImage(img *Object) error {
	if img == nil || img.Kind != KindImage || img.Image == nil {
		return fmt.Errorf("background image: %w", domain.ErrValidation)
	}
	s.mu.Lock()
	s.bg = Background{Image: img}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeBackground})
	return nil
}

// ClearBackground makes the canvas transparent.
func (s *Store) ClearBackground() {
	s.mu.Lock()
	s.bg = Background{}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeBackground})
}

// State returns a detached copy of the persisted scene. Transient shapes are excluded.
func (s *Store) State() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := Scene{
		Width:      s.width,
		Height:     s.height,
		Background: Background{Color: s.bg.Color, Image: s.bg.Image.Clone()},
		Objects:    make([]*Object, 0, len(s.objects)),
	}
	for _, o := range s.objects {
		if o.Kind == KindShape {
			continue
		}
		c := o.Clone()
		if own, ok := s.own[o.ID]; ok {
			c.Selectable, c.Evented = own.selectable, own.evented
		}
		sc.Objects = append(sc.Objects, c)
	}
	return sc
}

// Restore replaces the whole scene with sc and clears the selection.
func (s *Store) Restore(sc Scene) error {
	if sc.Width <= 0 || sc.Height <= 0 {
		return fmt.Errorf("restore %dx%d: %w", sc.Width, sc.Height, domain.ErrValidation)
	}
	objs := make([]*Object, 0, len(sc.Objects))
	for _, o := range sc.Objects {
		if o == nil {
			continue
		}
		objs = append(objs, o.Clone())
	}
	s.mu.Lock()
	s.width, s.height = sc.Width, sc.Height
	s.bg = Background{Color: sc.Background.Color, Image: sc.Background.Image.Clone()}
	s.objects = objs
	s.active = ""
	clear(s.own)
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeRestored})
	return nil
}
