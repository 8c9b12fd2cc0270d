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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/scene"
)

// Toolbox owns one instance of every tool for a session and tracks the active one.
type Toolbox struct {
	Crop       *Crop
	Resize     *Resize
	Adjust     *Adjust
	Text       *Text
	Background *Background
	Extend     *Extend
	Retouch    *Retouch

	s     *editor.Session
	log   *slog.Logger
	tools map[Name]Tool

	mu     sync.Mutex
	active Name
}

// NewToolbox creates all tools for s. No tool is active.
func NewToolbox(s *editor.Session, deps Deps, searchDelay time.Duration) *Toolbox {
	tb := &Toolbox{
		Crop:       NewCrop(s),
		Resize:     NewResize(s),
		Adjust:     NewAdjust(s),
		Text:       NewText(s),
		Background: NewBackground(s, deps, searchDelay),
		Extend:     NewExtend(s),
		Retouch:    NewRetouch(s),
		s:          s,
		log:        toolLogger("toolbox"),
	}
	tb.tools = map[Name]Tool{}
	for _, t := range []Tool{tb.Crop, tb.Resize, tb.Adjust, tb.Text, tb.Background, tb.Extend, tb.Retouch} {
		tb.tools[t.Name()] = t
	}
	return tb
}

// Get returns the tool called n.
func (tb *Toolbox) Get(n Name) (Tool, bool) {
	t, ok := tb.tools[n]
	return t, ok
}

// Active returns the active tool name, empty when none is active.
func (tb *Toolbox) Active() Name {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.active
}

// Switch deactivates the current tool and activates n. It is refused with ErrBusy while
// the session is processing a long-running operation.
func (tb *Toolbox) Switch(n Name) error {
	next, ok := tb.tools[n]
	if !ok {
		return fmt.Errorf("tool %q: %w", n, domain.ErrValidation)
	}
	if msg := tb.s.Processing(); msg != "" {
		return fmt.Errorf("%s in progress: %w", msg, domain.ErrBusy)
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.active == n {
		return nil
	}
	if cur, ok := tb.tools[tb.active]; ok {
		cur.Deactivate()
	}
	tb.active = ""
	if err := next.Activate(); err != nil {
		return err
	}
	tb.active = n
	tb.log.Debug("tool switched", slog.String("tool", string(n)))
	return nil
}

// Select makes id the active object; selecting text activates the text tool.
func (tb *Toolbox) Select(id string) error {
	if err := tb.s.Store().SetActiveObject(id); err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	o, ok := tb.s.Store().Object(id)
	if !ok || o.Kind != scene.KindText {
		return nil
	}
	if tb.Active() == NameText {
		return tb.Text.Activate()
	}
	return tb.Switch(NameText)
}

// Close deactivates the active tool.
func (tb *Toolbox) Close() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if cur, ok := tb.tools[tb.active]; ok {
		cur.Deactivate()
	}
	tb.active = ""
}
