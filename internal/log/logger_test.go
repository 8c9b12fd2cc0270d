/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestInitAndStructuredLoggingToFile verifies that Init with a file handler writes JSON logs
// and that static, component and context attributes are present.
func TestInitAndStructuredLoggingToFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "pxn_log.json")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, Writer: &console})
	t.Cleanup(func() { Init(Options{Level: "error", Writer: &bytes.Buffer{}}) })

	l := WithOperation(WithComponent("history"), "undo")
	ctx := WithTool(WithProject(context.Background(), "proj-42"), "crop")
	l.InfoContext(ctx, "snapshot restored", slog.Int("depth", 3))

	time.Sleep(20 * time.Millisecond)
	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	checks := map[string]any{
		"app":       "pixnoma",
		"component": "history",
		"op":        "undo",
		"project":   "proj-42",
		"tool":      "crop",
		"msg":       "snapshot restored",
	}
	for k, want := range checks {
		if m[k] != want {
			t.Fatalf("%s = %v, want %v", k, m[k], want)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if !strings.Contains(console.String(), "snapshot restored") {
		t.Fatalf("console sink did not receive the record: %q", console.String())
	}
}

func TestFromEnvAndGetenv(t *testing.T) {
	t.Setenv("PXN_LOG_LEVEL", "warn")
	t.Setenv("PXN_LOG_FORMAT", "json")
	t.Setenv("PXN_LOG_SOURCE", "true")
	t.Setenv("PXN_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("PXN_SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleHandlerLine(t *testing.T) {
	var buf bytes.Buffer
	h := newConsoleHandler(&buf, slog.LevelWarn, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("app", "pixnoma"), slog.String("component", "autosave"), slog.String("k", "v")})
	h2 = h2.WithGroup("grp")

	ctx := WithTool(WithProject(context.Background(), "p-42"), "crop")
	r := slog.NewRecord(time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local), slog.LevelError, "autosave failed", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.Bool("ok", true), slog.String("msg", "two words"),
		slog.Group("size", slog.Int("w", 3)))
	if err := h2.Handle(ctx, r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "03:04:05.000 ERR autosave [p-42/crop] autosave failed k=v") {
		t.Fatalf("line prefix = %q", out)
	}
	for _, want := range []string{"grp.n=42", "grp.pi=3.14", "grp.ok=true", `grp.msg="two words"`, "grp.size.w=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "app=") || strings.Contains(out, "component=") {
		t.Fatalf("static attrs leaked into console line: %q", out)
	}
}

func TestConsoleHandlerProjectOnlyScope(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, slog.LevelInfo, false))
	l.InfoContext(WithProject(context.Background(), "p-1"), "opened")
	l.Info("plain")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], " [p-1] opened") {
		t.Fatalf("scoped line = %q", lines[0])
	}
	if strings.Contains(lines[1], "[") {
		t.Fatalf("unscoped line has a tag: %q", lines[1])
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := multiHandler(
		newConsoleHandler(&a, slog.LevelDebug, false),
		newConsoleHandler(&b, slog.LevelError, false),
	)
	l := slog.New(h)
	l.Info("only first")
	l.Error("both")
	if !strings.Contains(a.String(), "only first") || !strings.Contains(a.String(), "both") {
		t.Fatalf("first sink missing records: %q", a.String())
	}
	if strings.Contains(b.String(), "only first") || !strings.Contains(b.String(), "both") {
		t.Fatalf("second sink level filter broken: %q", b.String())
	}
}
