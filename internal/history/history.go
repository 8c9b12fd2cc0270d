/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history records serialized scene snapshots and replays them for undo/redo.
package history

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
	"pixnoma/internal/scene"
	"pixnoma/internal/snapshot"
)

// DefaultCapacity bounds both stacks.
const DefaultCapacity = 20

// Snapshot is one serialized scene state. TS is when it was captured.
type Snapshot struct {
	Blob []byte
	TS   time.Time
}

// Config controls stack depth.
type Config struct {
	// Capacity limits each stack; the oldest entries are evicted beyond it.
	Capacity int
}

// State is the manager's recording mode.
type State int

const (
	Recording State = iota
	Replaying
)

func (s State) String() string {
	if s == Replaying {
		return "replaying"
	}
	return "recording"
}

// Manager keeps bounded undo/redo stacks of snapshots for one scene store.
// The top of the undo stack is always the currently applied state.
// It is safe for concurrent use.
type Manager struct {
	cfg   Config
	store *scene.Store
	log   *slog.Logger
	now   func() time.Time

	mu         sync.Mutex
	undo       []Snapshot
	redo       []Snapshot
	state      State
	totalBytes int
	unsub      func()
}

// New creates a manager for store. Call Attach to start recording.
func New(store *scene.Store, cfg Config) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Manager{cfg: cfg, store: store, log: log.WithComponent("history"), now: time.Now}
}

// Attach captures the current scene as the baseline entry and subscribes to changes.
func (m *Manager) Attach() error {
	if _, err := m.Capture(); err != nil {
		return err
	}
	unsub := m.store.Subscribe(m.onChange)
	m.mu.Lock()
	if m.unsub != nil {
		m.unsub()
	}
	m.unsub = unsub
	m.mu.Unlock()
	return nil
}

// Detach stops listening to the store. Stacks are kept.
func (m *Manager) Detach() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (m *Manager) onChange(c scene.Change) {
	if !c.Kind.Structural() {
		return
	}
	if _, err := m.Capture(); err != nil {
		m.log.Warn("capture failed", slog.String("change", c.Kind.String()), slog.Any("err", err))
	}
}

// Capture serializes the store and pushes the result unless it equals the current top
// or a replay is in progress. It reports whether an entry was pushed.
func (m *Manager) Capture() (bool, error) {
	m.mu.Lock()
	if m.state == Replaying {
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	blob, err := snapshot.Encode(m.store.State())
	if err != nil {
		return false, fmt.Errorf("capture: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Replaying {
		return false, nil
	}
	if n := len(m.undo); n > 0 && bytes.Equal(m.undo[n-1].Blob, blob) {
		return false, nil
	}
	m.undo = m.pushLocked(m.undo, Snapshot{Blob: blob, TS: m.now()})
	// Any new change invalidates redo
	for _, s := range m.redo {
		m.totalBytes -= len(s.Blob)
	}
	m.redo = nil
	return true, nil
}

// pushLocked appends s and drops the oldest extras beyond capacity.
func (m *Manager) pushLocked(stack []Snapshot, s Snapshot) []Snapshot {
	stack = append(stack, s)
	m.totalBytes += len(s.Blob)
	if over := len(stack) - m.cfg.Capacity; over > 0 {
		for i := 0; i < over; i++ {
			m.totalBytes -= len(stack[i].Blob)
		}
		stack = append([]Snapshot{}, stack[over:]...)
	}
	return stack
}

// Undo reverts to the previous entry. It is a no-op returning false when only the
// baseline entry is left. A snapshot that cannot be replayed leaves both stacks and
// the scene untouched and returns domain.ErrReplay.
func (m *Manager) Undo() (bool, error) {
	return m.step(true)
}

// Redo re-applies the most recently undone entry.
func (m *Manager) Redo() (bool, error) {
	return m.step(false)
}

func (m *Manager) step(undo bool) (bool, error) {
	m.mu.Lock()
	if m.state == Replaying {
		m.mu.Unlock()
		return false, nil
	}
	if (undo && len(m.undo) < 2) || (!undo && len(m.redo) == 0) {
		m.mu.Unlock()
		return false, nil
	}
	prevUndo, prevRedo, prevBytes := slices.Clone(m.undo), slices.Clone(m.redo), m.totalBytes
	var target Snapshot
	if undo {
		cur := m.undo[len(m.undo)-1]
		m.undo = m.undo[:len(m.undo)-1]
		m.totalBytes -= len(cur.Blob)
		m.redo = m.pushLocked(m.redo, cur)
		target = m.undo[len(m.undo)-1]
	} else {
		target = m.redo[len(m.redo)-1]
		m.redo = m.redo[:len(m.redo)-1]
		m.totalBytes -= len(target.Blob)
		m.undo = m.pushLocked(m.undo, target)
	}
	m.state = Replaying
	m.mu.Unlock()

	err := m.apply(target)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Recording
	if err != nil {
		m.undo, m.redo, m.totalBytes = prevUndo, prevRedo, prevBytes
		op := "redo"
		if undo {
			op = "undo"
		}
		m.log.Error("replay failed", slog.String("op", op), slog.Any("err", err))
		return false, err
	}
	return true, nil
}

func (m *Manager) apply(s Snapshot) error {
	w, h := m.store.Size()
	sc, err := snapshot.Decode(s.Blob, w, h)
	if err != nil {
		return err
	}
	if err := m.store.Restore(sc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrReplay, err)
	}
	return nil
}

// Reset drops both stacks and records the current scene as the new baseline.
func (m *Manager) Reset() error {
	m.mu.Lock()
	m.undo, m.redo, m.totalBytes = nil, nil, 0
	m.mu.Unlock()
	_, err := m.Capture()
	return err
}

// CanUndo reports whether Undo would change the scene.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) >= 2
}

// CanRedo reports whether Redo would change the scene.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Len returns the stack depths.
func (m *Manager) Len() (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo), len(m.redo)
}

// Current returns the applied snapshot (top of the undo stack).
func (m *Manager) Current() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return Snapshot{}, false
	}
	return m.undo[len(m.undo)-1], true
}

// State returns the current mode.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, undo int, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes, len(m.undo), len(m.redo)
}
