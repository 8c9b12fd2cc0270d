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

	"github.com/spf13/cobra"

	"pixnoma/internal/bundle"
)

// NewBundleCommand creates the bundle command with its pack and unpack subcommands.
func NewBundleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Move projects between stores as zip archives",
	}

	var output string
	pack := &cobra.Command{
		Use:          "pack <project-id>",
		Short:        "Write a project and its saved canvas history to a zip archive",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if output == "" {
				output = args[0] + ".zip"
			}
			n, err := bundle.Export(ctx, e.store, e.owner, args[0], output)
			if err != nil {
				return wrap("pack", err)
			}
			return e.out.Success(map[string]any{"path": output, "snapshots": n}, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%d snapshot(s))\n", output, n)
			})
		},
	}
	pack.Flags().StringVarP(&output, "output", "o", "", "archive path (default: <project-id>.zip)")

	unpack := &cobra.Command{
		Use:          "unpack <archive>",
		Short:        "Create a project from a zip archive",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			p, n, err := bundle.Import(ctx, e.store, e.owner, args[0])
			if err != nil {
				return wrap("unpack", err)
			}
			return e.out.Success(viewOf(p), func(w io.Writer) {
				fmt.Fprintf(w, "%s (%d snapshot(s))\n", p.ID, n)
			})
		},
	}

	cmd.AddCommand(pack, unpack)
	return cmd
}
