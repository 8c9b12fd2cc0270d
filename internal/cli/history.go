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
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pixnoma/internal/domain"
	"pixnoma/internal/snapshot"
)

// SnapshotView is one entry of the saved canvas log.
type SnapshotView struct {
	Index int           `json:"index"`
	TS    time.Time     `json:"ts"`
	Bytes int           `json:"bytes"`
	Scene *SceneSummary `json:"scene,omitempty"`
	Error string        `json:"error,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:          "history <project-id>",
		Short:        "List saved canvas states, newest first",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			p, err := e.store.GetProject(ctx, e.owner, args[0])
			if err != nil {
				return wrap("get project", err)
			}
			snaps, err := e.store.ListSnapshots(ctx, p.ID, limit)
			if err != nil {
				return wrap("list snapshots", err)
			}
			views := make([]SnapshotView, 0, len(snaps))
			for i, s := range snaps {
				v := SnapshotView{Index: i, TS: s.TS, Bytes: len(s.State)}
				if sc, err := snapshot.Decode(s.State, p.Width, p.Height); err != nil {
					v.Error = err.Error()
				} else {
					v.Scene = summarize(sc)
				}
				views = append(views, v)
			}
			return e.out.Success(views, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tSAVED\tBYTES\tCANVAS")
				for _, v := range views {
					desc := v.Error
					if v.Scene != nil {
						desc = v.Scene.String()
					}
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", v.Index, v.TS.Local().Format(time.DateTime), v.Bytes, desc)
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (default: all kept)")
	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var at int
	cmd := &cobra.Command{
		Use:   "restore <project-id>",
		Short: "Make a saved canvas state current again",
		Long: `Restore the canvas saved --at entries ago (see "history"). The restored state is
saved as the newest entry, so a restore can itself be undone by restoring again.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			p, err := e.store.GetProject(ctx, e.owner, args[0])
			if err != nil {
				return wrap("get project", err)
			}
			if at < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("--at %d: must not be negative", at))
			}
			snaps, err := e.store.ListSnapshots(ctx, p.ID, at+1)
			if err != nil {
				return wrap("list snapshots", err)
			}
			if at >= len(snaps) {
				return wrap("restore", fmt.Errorf("entry %d of %d: %w", at, len(snaps), domain.ErrNotFound))
			}
			state := snaps[at].State
			sc, err := snapshot.Decode(state, p.Width, p.Height)
			if err != nil {
				return wrap("decode snapshot", err)
			}
			u := domain.ProjectUpdate{ProjectID: p.ID, CanvasState: state}
			if sc.Width > 0 && sc.Height > 0 {
				u.Width, u.Height = &sc.Width, &sc.Height
			}
			if _, err := e.service().UpdateProject(ctx, e.owner, u); err != nil {
				return wrap("restore", err)
			}
			sum := summarize(sc)
			return e.out.Success(sum, func(w io.Writer) { fmt.Fprintf(w, "%s restored: %s\n", p.ID, sum) })
		},
	}
	cmd.Flags().IntVar(&at, "at", 1, "entry index from history (0 is the newest)")
	return cmd
}
