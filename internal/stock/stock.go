/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package stock searches the third-party stock photo service used for canvas backgrounds.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"pixnoma/internal/domain"
	"pixnoma/internal/log"
)

// ErrEmptyQuery is returned for blank search terms; no request is made.
var ErrEmptyQuery = errors.New("empty search query")

// Photo is one search hit.
type Photo struct {
	ID          string
	PreviewURL  string
	FullURL     string
	Description string
	Author      string
	Width       int
	Height      int
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	AccessKey      string
	PerPage        int
	RequestsPerMin int
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Client is a rate-gated search client.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]Photo]
	log     *slog.Logger
}

// New creates a client. RequestsPerMin gates outgoing searches with a burst of one.
func New(cfg Config) *Client {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 12
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	l := log.WithComponent("stock")
	cb := gobreaker.NewCircuitBreaker[[]Photo](gobreaker.Settings{
		Name:        "stock",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyQuery) || domain.IsCallerFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMin)/60.0), 1),
		breaker: cb,
		log:     l,
	}
}

type searchResponse struct {
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Small   string `json:"small"`
			Regular string `json:"regular"`
		} `json:"urls"`
		AltDescription *string `json:"alt_description"`
		User           struct {
			Name string `json:"name"`
		} `json:"user"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"results"`
}

// Search returns matching photos. An empty result is a nil error with zero photos;
// transport and service failures wrap domain.ErrExternal.
func (c *Client) Search(ctx context.Context, query string) ([]Photo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if c.cfg.AccessKey == "" {
		return nil, fmt.Errorf("stock search: no access key: %w", domain.ErrUnauthorized)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("stock search: %w", err)
	}
	photos, err := c.breaker.Execute(func() ([]Photo, error) { return c.search(ctx, query) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("stock search: circuit open: %w", domain.ErrExternal)
		}
		return nil, err
	}
	return photos, nil
}

func (c *Client) search(ctx context.Context, query string) ([]Photo, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search/photos?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Client-ID "+c.cfg.AccessKey)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("stock search: %w", ctxErr)
		}
		return nil, fmt.Errorf("stock search: %v: %w", err, domain.ErrExternal)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stock search: %w: %w", &domain.StatusError{Code: resp.StatusCode, Status: resp.Status}, domain.ErrExternal)
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("stock search: decode: %v: %w", err, domain.ErrExternal)
	}
	out := make([]Photo, 0, len(sr.Results))
	for _, r := range sr.Results {
		p := Photo{ID: r.ID, PreviewURL: r.URLs.Small, FullURL: r.URLs.Regular, Author: r.User.Name, Width: r.Width, Height: r.Height}
		if r.AltDescription != nil {
			p.Description = *r.AltDescription
		}
		out = append(out, p)
	}
	c.log.Debug("search", slog.String("query", query), slog.Int("results", len(out)))
	return out, nil
}

// TrackDownload notifies the service that a photo was used. Best effort: failures are
// logged and otherwise ignored.
func (c *Client) TrackDownload(ctx context.Context, photoID string) {
	if photoID == "" || c.cfg.AccessKey == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/photos/"+url.PathEscape(photoID)+"/download", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Client-ID "+c.cfg.AccessKey)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("download ping failed", slog.String("photo", photoID), slog.Any("err", err))
		return
	}
	_ = resp.Body.Close()
}

// Searcher runs one search. Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Photo, error)
}

// Debounced delivers results only for the latest query submitted within the delay window.
type Debounced struct {
	c     Searcher
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	cancel context.CancelFunc
}

// NewDebounced wraps c.
func NewDebounced(c Searcher, delay time.Duration) *Debounced {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &Debounced{c: c, delay: delay}
}

// Search schedules a search for query. fn is called from another goroutine unless the
// query is superseded first.
func (d *Debounced) Search(query string, fn func([]Photo, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.timer = time.AfterFunc(d.delay, func() {
		photos, err := d.c.Search(ctx, query)
		d.mu.Lock()
		current := seq == d.seq
		d.mu.Unlock()
		if current {
			fn(photos, err)
		}
	})
}

// Stop cancels any scheduled or in-flight search.
func (d *Debounced) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
