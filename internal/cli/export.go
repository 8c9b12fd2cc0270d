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
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pixnoma/internal/export"
)

// ExportResult reports a written file.
type ExportResult struct {
	ProjectID string `json:"projectId"`
	Path      string `json:"path"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type exportFlags struct {
	output     string
	format     string
	quality    float64
	multiplier float64
	images     string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var fl exportFlags
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Render a project to PNG or JPEG",
		Long: `Render the saved canvas of a project at --multiplier times its logical size.
Image objects are fetched from their URL, or looked up by file name in --images.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, args[0], fl)
		},
	}
	cmd.Flags().StringVarP(&fl.output, "output", "o", "", "output file (default: <project-id>.<format>)")
	cmd.Flags().StringVar(&fl.format, "image-format", "", "png or jpeg (default: from the output extension, else png)")
	cmd.Flags().Float64VarP(&fl.quality, "quality", "q", 0.9, "JPEG quality in (0,1]")
	cmd.Flags().Float64VarP(&fl.multiplier, "multiplier", "m", 1, "output scale")
	cmd.Flags().StringVar(&fl.images, "images", "", "directory holding the project's images")
	return cmd
}

func exportFormat(fl exportFlags) (export.Format, error) {
	if fl.format != "" {
		return export.ParseFormat(fl.format)
	}
	switch strings.ToLower(filepath.Ext(fl.output)) {
	case ".jpg", ".jpeg":
		return export.JPEG, nil
	}
	return export.PNG, nil
}

func runExport(cmd *cobra.Command, opts *RootOptions, id string, fl exportFlags) error {
	f, err := exportFormat(fl)
	if err != nil {
		return wrap("export", err)
	}
	if fl.multiplier <= 0 || fl.quality <= 0 || fl.quality > 1 {
		return NewExitError(ExitCommandError, "export: --multiplier must be positive and --quality in (0,1]")
	}
	if fl.output == "" {
		fl.output = id + f.Ext()
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	var src export.Source = e.src
	if fl.images != "" {
		src = export.Files(fl.images)
	}
	res, err := e.export(ctx, id, fl.output, src, export.Options{Format: f, Quality: fl.quality, Multiplier: fl.multiplier})
	if err != nil {
		return err
	}
	return e.out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s (%dx%d %s)\n", res.Path, res.Width, res.Height, res.Format)
	})
}

// export renders the project through a session so a project without a saved canvas gets
// its image imported the same way the editor shows it.
func (e *env) export(ctx context.Context, id, path string, src export.Source, opt export.Options) (ExportResult, error) {
	sess, err := e.openSession(ctx, id)
	if err != nil {
		return ExportResult{}, wrap("open session", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = sess.Dispose(dctx, false)
	}()
	sc := sess.Store().State()
	if err := export.WriteFile(ctx, path, sc, src, opt); err != nil {
		return ExportResult{}, wrap("export", err)
	}
	sess.Track("export", map[string]any{"format": string(opt.Format), "multiplier": opt.Multiplier})
	return ExportResult{
		ProjectID: id, Path: path, Format: string(opt.Format),
		Width:  int(float64(sc.Width)*opt.Multiplier + 0.5),
		Height: int(float64(sc.Height)*opt.Multiplier + 0.5),
	}, nil
}
