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
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pixnoma/internal/domain"
	"pixnoma/internal/scene"
	"pixnoma/internal/snapshot"
	"pixnoma/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			v := version.String()
			return f.Success(map[string]string{"version": v}, func(w io.Writer) { fmt.Fprintln(w, v) })
		},
	}
}

// ProjectView is the listing form of a project.
type ProjectView struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Owner             string        `json:"owner"`
	Width             int           `json:"width"`
	Height            int           `json:"height"`
	Image             string        `json:"image"`
	BackgroundRemoved bool          `json:"backgroundRemoved"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	Scene             *SceneSummary `json:"scene,omitempty"`
}

// SceneSummary describes a saved canvas state.
type SceneSummary struct {
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	Background      string         `json:"background,omitempty"`
	BackgroundImage bool           `json:"backgroundImage"`
	Objects         map[string]int `json:"objects"`
}

func viewOf(p domain.Project) ProjectView {
	return ProjectView{
		ID: p.ID, Title: p.Title, Owner: p.Owner, Width: p.Width, Height: p.Height,
		Image: p.ImportURL(), BackgroundRemoved: p.BackgroundRemoved, UpdatedAt: p.UpdatedAt,
	}
}

func summarize(sc scene.Scene) *SceneSummary {
	s := &SceneSummary{
		Width: sc.Width, Height: sc.Height,
		Background:      sc.Background.Color,
		BackgroundImage: sc.Background.Image != nil,
		Objects:         map[string]int{},
	}
	for _, o := range sc.Objects {
		s.Objects[string(o.Kind)]++
	}
	return s
}

func (s *SceneSummary) String() string {
	return fmt.Sprintf("%dx%d, %d image(s), %d text(s), background %q", s.Width, s.Height,
		s.Objects[string(scene.KindImage)], s.Objects[string(scene.KindText)], s.Background)
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var title string
	var width, height int
	cmd := &cobra.Command{
		Use:   "create <image>",
		Short: "Create a project from an image URL or file",
		Long: `Create a project whose canvas takes the image size, unless --width and --height are
given. The image is fitted into the canvas the first time the project is edited.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, rootOpts, args[0], title, width, height)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "project title")
	cmd.Flags().IntVar(&width, "width", 0, "canvas width (default: image width)")
	cmd.Flags().IntVar(&height, "height", 0, "canvas height (default: image height)")
	return cmd
}

func runCreate(cmd *cobra.Command, opts *RootOptions, src, title string, width, height int) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if width <= 0 || height <= 0 {
		a, err := e.src.Load(ctx, src)
		if err != nil {
			return wrap("probe image", err)
		}
		if width <= 0 {
			width = a.Width
		}
		if height <= 0 {
			height = a.Height
		}
		e.out.VerboseLog("probed %s: %dx%d %s", src, a.Width, a.Height, a.Format)
	}
	p, err := e.service().CreateProject(ctx, domain.Project{
		Owner: e.owner, Title: title, Width: width, Height: height, OriginalImageURL: src,
	})
	if err != nil {
		return wrap("create project", err)
	}
	e.log.Info("project created", "project", p.ID)
	return e.out.Success(viewOf(p), func(w io.Writer) { fmt.Fprintln(w, p.ID) })
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Aliases:      []string{"ls"},
		Short:        "List projects, most recently updated first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			ps, err := e.store.ListProjects(ctx, e.owner)
			if err != nil {
				return wrap("list projects", err)
			}
			views := make([]ProjectView, 0, len(ps))
			for _, p := range ps {
				views = append(views, viewOf(p))
			}
			return e.out.Success(views, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tSIZE\tUPDATED")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\n", v.ID, v.Title, v.Width, v.Height, v.UpdatedAt.Local().Format(time.DateTime))
				}
				_ = tw.Flush()
			})
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "show <project-id>",
		Short:        "Show a project and its saved canvas",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			v, err := e.show(ctx, args[0])
			if err != nil {
				return err
			}
			return e.out.Success(v, func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s\n", v.ID, v.Title)
				fmt.Fprintf(w, "  size:    %dx%d\n", v.Width, v.Height)
				fmt.Fprintf(w, "  image:   %s\n", v.Image)
				fmt.Fprintf(w, "  updated: %s\n", v.UpdatedAt.Local().Format(time.DateTime))
				if v.Scene != nil {
					fmt.Fprintf(w, "  canvas:  %s\n", v.Scene)
				} else {
					fmt.Fprintln(w, "  canvas:  not saved yet")
				}
			})
		},
	}
}

func (e *env) show(ctx context.Context, id string) (ProjectView, error) {
	p, err := e.store.GetProject(ctx, e.owner, id)
	if err != nil {
		return ProjectView{}, wrap("get project", err)
	}
	v := viewOf(p)
	if len(p.CanvasState) > 0 {
		sc, err := snapshot.Decode(p.CanvasState, p.Width, p.Height)
		if err != nil {
			return ProjectView{}, wrap("decode canvas", err)
		}
		v.Scene = summarize(sc)
	}
	return v, nil
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "delete <project-id>",
		Aliases:      []string{"rm"},
		Short:        "Delete a project and its saved canvas history",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.store.DeleteProject(ctx, e.owner, args[0]); err != nil {
				return wrap("delete project", err)
			}
			return e.out.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", args[0])
			})
		},
	}
}
