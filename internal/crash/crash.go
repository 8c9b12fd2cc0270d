/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a logged error, a crash report and a last-chance
// save of the open editing session.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"pixnoma/internal/domain"
	applog "pixnoma/internal/log"
	"pixnoma/internal/telemetry"
	"pixnoma/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// flushTimeout bounds the final autosave.
var flushTimeout = 5 * time.Second

// Session is the open editing session, if any. *editor.Session implements it.
type Session interface {
	Project() domain.Project
	Flush(ctx context.Context) error
	CanvasState() ([]byte, error)
}

// Dir is where crash reports and canvas backups go. Empty means <tmp>/pixnoma.
var Dir = ""

func reportDir() string {
	if Dir != "" {
		return Dir
	}
	return filepath.Join(os.TempDir(), "pixnoma")
}

// Recover captures a panic, logs it with its stack, writes a crash report, flushes the
// session's pending autosave and keeps a local copy of the canvas state.
//
// Usage: defer crash.Recover(sess)
func Recover(s Session) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(s, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if s != nil {
		saveSession(l, s)
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

// saveSession writes the canvas to a local backup and then tries the regular autosave.
// A failing flush leaves the backup as the only copy of the latest edits.
func saveSession(l *slog.Logger, s Session) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("session save panicked", slog.Any("panic", r))
		}
	}()
	if state, err := s.CanvasState(); err != nil {
		l.Error("encode canvas failed", slog.Any("err", err))
	} else if path, err := writeBackup(s.Project().ID, state); err != nil {
		l.Error("canvas backup failed", slog.Any("err", err))
	} else {
		l.Info("canvas backup written", slog.String("path", path))
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		l.Error("final autosave failed", slog.Any("err", err))
		return
	}
	l.Info("final autosave written", slog.String("project", s.Project().ID))
}

func stamp() string { return time.Now().Format("20060102-150405") }

func writeBackup(projectID string, state []byte) (string, error) {
	dir := reportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if projectID == "" {
		projectID = "unsaved"
	}
	path := filepath.Join(dir, fmt.Sprintf("canvas-%s-%s.json", projectID, stamp()))
	return path, os.WriteFile(path, state, 0o644)
}

func writeReport(s Session, panicVal any, stack []byte) (string, error) {
	dir := reportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp()))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Pixnoma Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if s != nil {
		p := s.Project()
		_, _ = fmt.Fprintf(&buf, "Project: %s (%dx%d)\n", p.ID, p.Width, p.Height)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
