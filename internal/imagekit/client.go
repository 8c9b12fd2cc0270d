/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package imagekit talks to the image hosting and URL transformation service.
package imagekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxFailures = 5
	defaultOpenTimeout = 30 * time.Second
	uploadFolder       = "/projects"
)

// Config configures a Client.
type Config struct {
	URLEndpoint string
	PublicKey   string
	PrivateKey  string
	UploadURL   string
	Timeout     time.Duration
	// MaxFailures consecutive fetch failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
	HTTPClient  *http.Client
}

// Asset describes a fetched image.
type Asset struct {
	URL    string
	Width  int
	Height int
	Format string
}

// UploadResult is returned by Upload.
type UploadResult struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	FileID       string `json:"fileId"`
	Name         string `json:"name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int64  `json:"size"`
}

// Client fetches transformed assets and uploads originals.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Asset]
	log     *slog.Logger
	now     func() time.Time
}

// New creates a client. Zero config values fall back to defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	cfg.URLEndpoint = strings.TrimRight(cfg.URLEndpoint, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	l := log.WithComponent("imagekit")
	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[Asset](gobreaker.Settings{
		Name:        "imagekit",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool { return err == nil || domain.IsCallerFault(err) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{cfg: cfg, http: hc, breaker: cb, log: l, now: time.Now}
}

// IsHosted reports whether src is served by the configured endpoint host, i.e. whether
// URL transformations apply to it.
func (c *Client) IsHosted(src string) bool {
	if c.cfg.URLEndpoint == "" {
		return false
	}
	eu, err := url.Parse(c.cfg.URLEndpoint)
	if err != nil {
		return false
	}
	su, err := url.Parse(src)
	if err != nil {
		return false
	}
	return strings.EqualFold(eu.Host, su.Host)
}

// Load fetches src and decodes its dimensions. Transformations run server side, so this
// is also the point where a transformation request is executed.
func (c *Client) Load(ctx context.Context, src string) (Asset, error) {
	a, err := c.breaker.Execute(func() (Asset, error) { return c.fetch(ctx, src) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Asset{}, fmt.Errorf("load %s: circuit open: %w", Base(src), domain.ErrExternal)
		}
		return Asset{}, err
	}
	return a, nil
}

func (c *Client) fetch(ctx context.Context, src string) (Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("load %s: %v: %w", Base(src), err, domain.ErrExternal)
	}
	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Asset{}, fmt.Errorf("load %s: %w", Base(src), ctxErr)
		}
		return Asset{}, fmt.Errorf("load %s: %v: %w", Base(src), err, domain.ErrExternal)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Asset{}, fmt.Errorf("load %s: %w: %w", Base(src), &domain.StatusError{Code: resp.StatusCode, Status: resp.Status}, domain.ErrExternal)
	}
	cfg, format, err := image.DecodeConfig(resp.Body)
	if err != nil {
		return Asset{}, fmt.Errorf("decode %s: %v: %w", Base(src), err, domain.ErrExternal)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	c.log.Debug("loaded", slog.String("url", Base(src)), slog.Int("w", cfg.Width), slog.Int("h", cfg.Height),
		slog.Duration("took", c.now().Sub(start)))
	return Asset{URL: src, Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Fetch downloads and decodes src in full. Export uses it to rasterize the canvas.
func (c *Client) Fetch(ctx context.Context, src string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", Base(src), err, domain.ErrExternal)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", Base(src), ctxErr)
		}
		return nil, fmt.Errorf("fetch %s: %v: %w", Base(src), err, domain.ErrExternal)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: %w: %w", Base(src), &domain.StatusError{Code: resp.StatusCode, Status: resp.Status}, domain.ErrExternal)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", Base(src), err, domain.ErrExternal)
	}
	return img, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9.-] with an underscore.
func SanitizeFileName(name string) string {
	if name == "" {
		return "upload"
	}
	return unsafeName.ReplaceAllString(name, "_")
}

// Upload stores data as <owner>/<unix-ms>_<sanitized name> in the projects folder.
func (c *Client) Upload(ctx context.Context, owner, fileName string, data io.Reader) (UploadResult, error) {
	if c.cfg.UploadURL == "" {
		return UploadResult{}, fmt.Errorf("upload: no upload url configured: %w", domain.ErrValidation)
	}
	name := fmt.Sprintf("%s/%d_%s", owner, c.now().UnixMilli(), SanitizeFileName(fileName))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", SanitizeFileName(fileName))
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(fw, data); err != nil {
		return UploadResult{}, fmt.Errorf("upload: read file: %w", err)
	}
	_ = mw.WriteField("fileName", name)
	_ = mw.WriteField("folder", uploadFolder)
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, &body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.PrivateKey != "" {
		req.SetBasicAuth(c.cfg.PrivateKey, "")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload: %v: %w", err, domain.ErrExternal)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return UploadResult{}, fmt.Errorf("upload: %s: %w", resp.Status, domain.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return UploadResult{}, fmt.Errorf("upload: %s: %w", resp.Status, domain.ErrExternal)
	}
	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResult{}, fmt.Errorf("upload: decode response: %v: %w", err, domain.ErrExternal)
	}
	if out.URL == "" {
		return UploadResult{}, fmt.Errorf("upload: empty url in response: %w", domain.ErrExternal)
	}
	out.ThumbnailURL = Thumbnail(out.URL)
	c.log.Info("uploaded", slog.String("name", name), slog.String("url", out.URL), slog.String("size", strconv.FormatInt(out.Size, 10)))
	return out, nil
}
