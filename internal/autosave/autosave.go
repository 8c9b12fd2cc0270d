/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package autosave debounces scene changes and pushes snapshots to the project store.
package autosave

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
	"pixnoma/internal/scene"
	"pixnoma/internal/snapshot"
)

// DefaultDelay is the quiescence window before a persist.
const DefaultDelay = 2000 * time.Millisecond

// Persister writes a serialized canvas state.
type Persister interface {
	Persist(ctx context.Context, state []byte) error
}

// PersistFunc adapts a function to Persister.
type PersistFunc func(ctx context.Context, state []byte) error

func (f PersistFunc) Persist(ctx context.Context, state []byte) error { return f(ctx, state) }

// Options tune a Coordinator.
type Options struct {
	Delay time.Duration
	// OnError receives persist failures. Local state is never rolled back.
	OnError func(error)
	// OnSaved is called after every successful persist.
	OnSaved func(state []byte)
}

// Coordinator coalesces bursts of structural changes into a single persist call.
type Coordinator struct {
	store *scene.Store
	p     Persister
	opts  Options
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	timer     *time.Timer
	pending   bool
	disposed  bool
	lastSaved []byte
	unsub     func()

	// saveMu serializes persist calls so they reach the backend in order.
	saveMu sync.Mutex
}

// New creates a coordinator for store. Call Attach to start listening.
func New(store *scene.Store, p Persister, opts Options) *Coordinator {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{store: store, p: p, opts: opts, log: log.WithComponent("autosave"), ctx: ctx, cancel: cancel}
}

// Attach subscribes to structural store changes.
func (c *Coordinator) Attach() {
	unsub := c.store.Subscribe(func(ch scene.Change) {
		if ch.Kind.Structural() {
			c.Notify()
		}
	})
	c.mu.Lock()
	if c.unsub != nil {
		c.unsub()
	}
	c.unsub = unsub
	c.mu.Unlock()
}

// MarkSaved records state as already persisted so an identical snapshot is not pushed again.
func (c *Coordinator) MarkSaved(state []byte) {
	c.mu.Lock()
	c.lastSaved = append([]byte(nil), state...)
	c.mu.Unlock()
}

// Notify (re)starts the debounce timer.
func (c *Coordinator) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.pending = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.Delay, c.fire)
}

// Pending reports whether changes are waiting to be persisted, either scheduled or
// left over from a failed save.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Coordinator) fire() {
	c.mu.Lock()
	if c.disposed || !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.timer = nil
	c.mu.Unlock()
	if err := c.save(c.ctx); err != nil {
		c.report(err)
	}
}

// Flush persists immediately if a save is pending and cancels the timer.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return domain.ErrDisposed
	}
	pending := c.pending
	c.stopLocked()
	c.mu.Unlock()
	if !pending {
		return nil
	}
	return c.save(ctx)
}

// Dispose detaches from the store and cancels the pending timer. With flush a pending
// save is written synchronously first. Safe to call more than once.
func (c *Coordinator) Dispose(ctx context.Context, flush bool) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	pending := c.pending
	c.stopLocked()
	c.disposed = true
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	var err error
	if flush && pending {
		err = c.save(ctx)
	} else if pending {
		c.log.Info("pending autosave abandoned")
	}
	c.cancel()
	return err
}

func (c *Coordinator) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
}

func (c *Coordinator) save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	blob, err := snapshot.Encode(c.store.State())
	if err != nil {
		c.markDirty()
		return fmt.Errorf("autosave encode: %w", err)
	}
	c.mu.Lock()
	same := c.lastSaved != nil && bytes.Equal(c.lastSaved, blob)
	c.mu.Unlock()
	if same {
		return nil
	}
	start := time.Now()
	if err := c.p.Persist(ctx, blob); err != nil {
		c.markDirty()
		return fmt.Errorf("autosave: %w", err)
	}
	c.mu.Lock()
	c.lastSaved = blob
	c.mu.Unlock()
	c.log.Debug("saved", slog.Int("bytes", len(blob)), slog.Duration("took", time.Since(start)))
	if c.opts.OnSaved != nil {
		c.opts.OnSaved(blob)
	}
	return nil
}

// markDirty keeps a failed save pending so the next Flush or Dispose retries it.
func (c *Coordinator) markDirty() {
	c.mu.Lock()
	if !c.disposed {
		c.pending = true
	}
	c.mu.Unlock()
}

func (c *Coordinator) report(err error) {
	c.log.Warn("autosave failed", slog.Any("err", err))
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}
