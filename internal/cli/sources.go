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
	"image"
	"os"
	"strings"

	"pixnoma/internal/domain"
	"pixnoma/internal/imagekit"
)

// sources resolves image references for sessions and export. http(s) URLs go through the
// ImageKit client; anything else is read from the local filesystem.
type sources struct {
	ik *imagekit.Client
}

func remote(src string) bool {
	l := strings.ToLower(src)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Load implements editor.Loader.
func (s *sources) Load(ctx context.Context, src string) (imagekit.Asset, error) {
	if remote(src) {
		return s.ik.Load(ctx, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return imagekit.Asset{}, fmt.Errorf("load %s: %w", src, notFound(err))
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return imagekit.Asset{}, fmt.Errorf("decode %s: %v: %w", src, err, domain.ErrExternal)
	}
	return imagekit.Asset{URL: src, Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Fetch implements export.Source.
func (s *sources) Fetch(ctx context.Context, src string) (image.Image, error) {
	if remote(src) {
		return s.ik.Fetch(ctx, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, notFound(err))
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", src, err, domain.ErrExternal)
	}
	return img, nil
}

// Hosted reports whether URL transformations apply to src.
func (s *sources) Hosted(src string) bool { return remote(src) && s.ik.IsHosted(src) }

func notFound(err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrExternal)
}
