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
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	applog "pixnoma/internal/log"
	"pixnoma/internal/scene"
	"pixnoma/internal/tools"
)

// StepError reports the step a run stopped at.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Step.LineNo, e.Step.Command, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner applies scripts to a session through its toolbox.
type Runner struct {
	s   *editor.Session
	tb  *tools.Toolbox
	log *slog.Logger
}

// NewRunner creates a runner for s driving tb.
func NewRunner(s *editor.Session, tb *tools.Toolbox) *Runner {
	return &Runner{s: s, tb: tb, log: applog.WithComponent("script")}
}

// Run executes the steps in order and stops at the first failure. It returns the number of
// steps applied.
func (r *Runner) Run(ctx context.Context, sc Script) (int, error) {
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		l := r.log.With(slog.Int("line", st.LineNo), slog.String("cmd", string(st.Command)))
		if err := r.step(ctx, st); err != nil {
			l.Warn("step failed", slog.Any("err", err))
			return i, &StepError{Step: st, Err: err}
		}
		l.Debug("step applied")
	}
	return len(sc.Steps), nil
}

func (r *Runner) step(ctx context.Context, st Step) error {
	switch st.Command {
	case CmdTool:
		return r.tb.Switch(tools.Name(st.Args[0]))
	case CmdCrop:
		return r.crop(st)
	case CmdResize:
		return r.resize(ctx, st)
	case CmdAdjust:
		return r.adjust(st)
	case CmdText:
		if err := r.tb.Switch(tools.NameText); err != nil {
			return err
		}
		if _, err := r.tb.Text.Add(); err != nil {
			return err
		}
		if err := r.tb.Text.SetContent(st.Args[0]); err != nil {
			return err
		}
		return r.style(st)
	case CmdStyle:
		if _, ok := r.tb.Text.Selected(); !ok {
			return fmt.Errorf("no text selected: %w", domain.ErrNotFound)
		}
		if err := r.tb.Switch(tools.NameText); err != nil {
			return err
		}
		return r.style(st)
	case CmdBackground:
		return r.background(ctx, st)
	case CmdExtend:
		return r.extend(ctx, st)
	case CmdRetouch:
		if err := r.tb.Switch(tools.NameRetouch); err != nil {
			return err
		}
		if err := r.tb.Retouch.Select(st.Args[0]); err != nil {
			return err
		}
		_, err := r.tb.Retouch.Apply(ctx)
		return err
	case CmdSelect:
		return r.selectObject(st.Args[0])
	case CmdDelete:
		return r.tb.Text.Delete()
	case CmdUndo, CmdRedo:
		return r.replay(st)
	case CmdSave:
		return r.s.Flush(ctx)
	}
	return fmt.Errorf("unknown command %q: %w", st.Command, domain.ErrValidation)
}

func number(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func integer(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func (r *Runner) crop(st Step) error {
	if err := r.tb.Switch(tools.NameCrop); err != nil {
		return err
	}
	c := r.tb.Crop
	if v, ok := st.Opt("aspect"); ok {
		if err := c.SetAspect(number(v)); err != nil {
			return err
		}
	}
	if err := c.Start(); err != nil {
		return err
	}
	sel := scene.R(number(st.Args[0]), number(st.Args[1]), number(st.Args[2]), number(st.Args[3]))
	if err := c.SetSelection(sel); err != nil {
		c.Cancel()
		return err
	}
	_, err := c.Apply()
	return err
}

func (r *Runner) resize(ctx context.Context, st Step) error {
	if err := r.tb.Switch(tools.NameResize); err != nil {
		return err
	}
	rs := r.tb.Resize
	if strings.EqualFold(st.Args[0], "preset") {
		i := presetIndex(tools.ResizePresets, st.Args[1])
		if i < 0 {
			return fmt.Errorf("resize preset %q: %w", st.Args[1], domain.ErrValidation)
		}
		rs.ApplyPreset(tools.ResizePresets[i])
	} else {
		rs.SetLockAspect(false)
		rs.SetWidth(integer(st.Args[0]))
		rs.SetHeight(integer(st.Args[1]))
	}
	return rs.Apply(ctx)
}

func presetIndex(ps []tools.ResizePreset, name string) int {
	for i, p := range ps {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

func (r *Runner) adjust(st Step) error {
	if err := r.tb.Switch(tools.NameAdjust); err != nil {
		return err
	}
	a := r.tb.Adjust
	if len(st.Args) == 1 {
		if err := a.Reset(); err != nil {
			return err
		}
	}
	// Slider order keeps the result independent of option order.
	for _, sl := range tools.Sliders {
		if v, ok := st.Opt(string(sl.Kind)); ok {
			if err := a.Set(sl.Kind, number(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) style(st Step) error {
	t := r.tb.Text
	if v, ok := st.Opt("font"); ok {
		if err := t.SetFontFamily(v); err != nil {
			return err
		}
	}
	if v, ok := st.Opt("size"); ok {
		if err := t.SetFontSize(number(v)); err != nil {
			return err
		}
	}
	if v, ok := st.Opt("color"); ok {
		if err := t.SetColor(v); err != nil {
			return err
		}
	}
	if v, ok := st.Opt("align"); ok {
		if err := t.SetAlign(v); err != nil {
			return err
		}
	}
	o, ok := t.Selected()
	if !ok {
		return nil
	}
	on := map[tools.Format]bool{
		tools.FormatBold:      o.Text.Bold,
		tools.FormatItalic:    o.Text.Italic,
		tools.FormatUnderline: o.Text.Underline,
	}
	for _, f := range []tools.Format{tools.FormatBold, tools.FormatItalic, tools.FormatUnderline} {
		if _, want := st.Opt(string(f)); want && !on[f] {
			if err := t.Toggle(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) background(ctx context.Context, st Step) error {
	if err := r.tb.Switch(tools.NameBackground); err != nil {
		return err
	}
	b := r.tb.Background
	switch strings.ToLower(st.Args[0]) {
	case "color":
		return b.SetColor(st.Args[1])
	case "clear":
		b.Clear()
		return nil
	case "remove":
		_, err := b.RemoveSubjectBackground(ctx)
		return err
	case "change":
		_, err := b.ChangeBackground(ctx, st.Args[1])
		return err
	case "stock":
		photos, err := b.Search(ctx, st.Args[1])
		if err != nil {
			return err
		}
		idx := 0
		if v, ok := st.Opt("index"); ok {
			idx = integer(v)
		}
		if idx < 0 || idx >= len(photos) {
			return fmt.Errorf("stock result %d of %d for %q: %w", idx, len(photos), st.Args[1], domain.ErrNotFound)
		}
		_, err = b.UseStockPhoto(ctx, photos[idx])
		return err
	}
	return fmt.Errorf("background %q: %w", st.Args[0], domain.ErrValidation)
}

func (r *Runner) extend(ctx context.Context, st Step) error {
	if err := r.tb.Switch(tools.NameExtend); err != nil {
		return err
	}
	e := r.tb.Extend
	if v, ok := st.Opt("amount"); ok {
		e.SetAmount(integer(v))
	}
	d := tools.Direction(strings.ToLower(st.Args[0]))
	if e.Direction() != d {
		if err := e.SetDirection(d); err != nil {
			return err
		}
	}
	_, err := e.Apply(ctx)
	return err
}

func (r *Runner) selectObject(target string) error {
	st := r.s.Store()
	switch strings.ToLower(target) {
	case "none":
		return r.tb.Select("")
	case "image":
		img, ok := st.MainImage()
		if !ok {
			return fmt.Errorf("no image on the canvas: %w", domain.ErrNotFound)
		}
		return r.tb.Select(img.ID)
	case "text":
		objs := st.Objects()
		for i := len(objs) - 1; i >= 0; i-- {
			if objs[i].Kind == scene.KindText {
				return r.tb.Select(objs[i].ID)
			}
		}
		return fmt.Errorf("no text on the canvas: %w", domain.ErrNotFound)
	}
	return r.tb.Select(target)
}

func (r *Runner) replay(st Step) error {
	n := 1
	if len(st.Args) == 1 {
		n = integer(st.Args[0])
	}
	op, name := r.s.Undo, "undo"
	if st.Command == CmdRedo {
		op, name = r.s.Redo, "redo"
	}
	for range n {
		ok, err := op()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("nothing to %s: %w", name, ErrHistoryExhausted)
		}
	}
	return nil
}

// ErrHistoryExhausted is returned when undo or redo has nothing left to replay.
var ErrHistoryExhausted = errors.New("history exhausted")
