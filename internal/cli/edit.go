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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pixnoma/internal/crash"
	"pixnoma/internal/script"
	"pixnoma/internal/tools"
)

// EditResult reports an edit run.
type EditResult struct {
	ProjectID string `json:"projectId"`
	Applied   int    `json:"applied"`
	Steps     int    `json:"steps"`
	Saved     bool   `json:"saved"`
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "edit <project-id> <script|->",
		Short: "Apply an edit script to a project",
		Long: `Open an editing session on the project, run the edit script (one command per line,
"-" reads standard input) and save the canvas.

Example script:

  crop 300 200 600 400
  adjust brightness=20 saturation=-10
  text "Summer sale" size=64 color=#ffffff bold
  background remove
  save`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, rootOpts, args[0], args[1], check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only parse the script")
	return cmd
}

func readScript(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func runEdit(cmd *cobra.Command, opts *RootOptions, id, path string, check bool) error {
	src, err := readScript(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read script", err)
	}
	sc, errs := script.Parse(src)
	if len(errs) > 0 {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: true}
		_ = f.Error(fmt.Sprintf("%s: %d error(s)", path, len(errs)), errs)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %v", path, errs[0]))
	}
	if check {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(EditResult{ProjectID: id, Steps: len(sc.Steps)}, func(w io.Writer) {
			fmt.Fprintf(w, "%s: %d step(s) ok\n", path, len(sc.Steps))
		})
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	res, err := e.edit(ctx, id, sc)
	if err != nil {
		return err
	}
	return e.out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s: applied %d/%d step(s)\n", res.ProjectID, res.Applied, res.Steps)
	})
}

// edit runs sc in a session on project id and flushes the canvas, also after a failing
// step so the edits before it are kept.
func (e *env) edit(ctx context.Context, id string, sc script.Script) (EditResult, error) {
	sess, err := e.openSession(ctx, id)
	if err != nil {
		return EditResult{}, wrap("open session", err)
	}
	defer crash.Recover(sess)
	tb := tools.NewToolbox(sess, tools.Deps{Hosted: e.src.Hosted, Stock: e.stock()}, ms(e.cfg.Stock.DebounceMs))

	n, runErr := script.NewRunner(sess, tb).Run(ctx, sc)
	tb.Close()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	saveErr := sess.Dispose(dctx, true)
	res := EditResult{ProjectID: id, Applied: n, Steps: len(sc.Steps), Saved: saveErr == nil}
	if runErr != nil {
		var se *script.StepError
		if errors.As(runErr, &se) {
			e.out.VerboseLog("stopped at line %d", se.Step.LineNo)
		}
		return res, wrap(fmt.Sprintf("edit %s: applied %d/%d step(s)", id, n, len(sc.Steps)), runErr)
	}
	if saveErr != nil {
		return res, wrap("save canvas", saveErr)
	}
	return res, nil
}
