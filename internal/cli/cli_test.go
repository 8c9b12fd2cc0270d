/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pixnoma", cmd.Use)
	assert.Contains(t, cmd.Long, "undo history")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"version", "create", "list", "show", "delete", "edit", "history", "restore", "export", "bundle", "serve"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "dsn", "owner"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	outputFlag := exportCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	multFlag := exportCmd.Flags().Lookup("multiplier")
	require.NotNil(t, multFlag)
	assert.Equal(t, "1", multFlag.DefValue)
}

func TestInvalidFormatIsCommandError(t *testing.T) {
	_, err := execute(t, nil, "--format", "yaml", "version")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, nil, "--format", "json", "version")
	require.NoError(t, err)
	var resp struct {
		Status string            `json:"status"`
		Data   map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Data["version"])
}

// workspace is a temp config, store and image shared by the commands of one test.
type workspace struct {
	dir   string
	image string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	path := filepath.Join(dir, "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return workspace{dir: dir, image: path}
}

func (w workspace) args(args ...string) []string {
	return append([]string{
		"--config", filepath.Join(w.dir, "config.yaml"),
		"--dsn", filepath.Join(w.dir, "projects.sqlite"),
		"--owner", "tester",
	}, args...)
}

func execute(t *testing.T, stdin *strings.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func createProject(t *testing.T, w workspace) string {
	t.Helper()
	out, err := execute(t, nil, w.args("--format", "json", "create", w.image, "--title", "Beach")...)
	require.NoError(t, err)
	var v ProjectView
	decodeData(t, out, &v)
	assert.Equal(t, 400, v.Width)
	assert.Equal(t, 300, v.Height)
	assert.Equal(t, "Beach", v.Title)
	return v.ID
}

func TestCreateListAndShow(t *testing.T) {
	w := newWorkspace(t)
	id := createProject(t, w)

	out, err := execute(t, nil, w.args("list")...)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "400x300")

	out, err = execute(t, nil, w.args("show", id)...)
	require.NoError(t, err)
	assert.Contains(t, out, "not saved yet")

	_, err = execute(t, nil, w.args("show", "missing")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEditHistoryRestoreAndExport(t *testing.T) {
	w := newWorkspace(t)
	id := createProject(t, w)

	scriptPath := filepath.Join(w.dir, "edit.pxs")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`# square crop and a caption
crop 100 50 200 150
text "Hello" color=#ffffff size=32
save
`), 0o644))
	out, err := execute(t, nil, w.args("--format", "json", "edit", id, scriptPath)...)
	require.NoError(t, err)
	var res EditResult
	decodeData(t, out, &res)
	assert.Equal(t, 3, res.Applied)
	assert.True(t, res.Saved)

	out, err = execute(t, nil, w.args("--format", "json", "show", id)...)
	require.NoError(t, err)
	var v ProjectView
	decodeData(t, out, &v)
	require.NotNil(t, v.Scene)
	assert.Equal(t, 1, v.Scene.Objects["image"])
	assert.Equal(t, 1, v.Scene.Objects["text"])

	// Remove the text from stdin so there is a second saved state to go back to.
	_, err = execute(t, strings.NewReader("select text\ndelete\n"), w.args("edit", id, "-")...)
	require.NoError(t, err)

	out, err = execute(t, nil, w.args("--format", "json", "history", id)...)
	require.NoError(t, err)
	var hist []SnapshotView
	decodeData(t, out, &hist)
	require.GreaterOrEqual(t, len(hist), 2)
	assert.Equal(t, 0, hist[0].Scene.Objects["text"])

	_, err = execute(t, nil, w.args("restore", id, "--at", "1")...)
	require.NoError(t, err)
	out, err = execute(t, nil, w.args("--format", "json", "show", id)...)
	require.NoError(t, err)
	decodeData(t, out, &v)
	assert.Equal(t, 1, v.Scene.Objects["text"])

	outPath := filepath.Join(w.dir, "out", "beach.png")
	_, err = execute(t, nil, w.args("export", id, "-o", outPath, "-m", "0.5")...)
	require.NoError(t, err)
	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestEditReportsScriptErrors(t *testing.T) {
	w := newWorkspace(t)
	id := createProject(t, w)

	_, err := execute(t, strings.NewReader("crop 1 2 three 4\n"), w.args("edit", id, "-")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "line 1:10")

	out, err := execute(t, strings.NewReader("crop 1 2 3 4\nundo\n"), w.args("edit", "--check", id, "-")...)
	require.NoError(t, err)
	assert.Contains(t, out, "2 step(s) ok")
}

func TestEditStopsAtFailingStep(t *testing.T) {
	w := newWorkspace(t)
	id := createProject(t, w)

	_, err := execute(t, strings.NewReader("background color #000000\nstyle size=20\n"), w.args("edit", id, "-")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "applied 1/2")

	// The step before the failure was saved.
	out, err := execute(t, nil, w.args("--format", "json", "show", id)...)
	require.NoError(t, err)
	var v ProjectView
	decodeData(t, out, &v)
	require.NotNil(t, v.Scene)
	assert.Equal(t, "#000000", v.Scene.Background)
}

func TestDeleteProject(t *testing.T) {
	w := newWorkspace(t)
	id := createProject(t, w)

	_, err := execute(t, nil, w.args("delete", id)...)
	require.NoError(t, err)
	out, err := execute(t, nil, w.args("list")...)
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestBundlePackAndUnpack(t *testing.T) {
	w := newWorkspace(t)
	id := createProject(t, w)
	_, err := execute(t, strings.NewReader("background color #336699\n"), w.args("edit", id, "-")...)
	require.NoError(t, err)

	zipPath := filepath.Join(w.dir, "beach.zip")
	out, err := execute(t, nil, w.args("bundle", "pack", id, "-o", zipPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "1 snapshot(s)")

	other := newWorkspace(t)
	out, err = execute(t, nil, other.args("--format", "json", "bundle", "unpack", zipPath)...)
	require.NoError(t, err)
	var v ProjectView
	decodeData(t, out, &v)
	assert.Equal(t, id, v.ID)
	assert.Equal(t, "tester", v.Owner)

	out, err = execute(t, nil, other.args("--format", "json", "show", id)...)
	require.NoError(t, err)
	decodeData(t, out, &v)
	require.NotNil(t, v.Scene)
	assert.Equal(t, "#336699", v.Scene.Background)
}
