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
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pixnoma/internal/backend"
	"pixnoma/internal/config"
	"pixnoma/internal/domain"
	"pixnoma/internal/editor"
	"pixnoma/internal/imagekit"
	applog "pixnoma/internal/log"
	"pixnoma/internal/stock"
	"pixnoma/internal/storage"
	"pixnoma/internal/telemetry"
	"pixnoma/internal/tools"
)

// env is the per-invocation wiring shared by commands: configuration, the local store and
// the external clients.
type env struct {
	cfg   config.AppConfig
	sec   config.Secrets
	owner string
	store *storage.Store
	src   *sources
	out   *OutputFormatter
	log   *slog.Logger
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// loadConfig reads the config file named by opts (or the user config) and applies the
// flag overrides.
func loadConfig(opts *RootOptions) (config.AppConfig, config.Secrets, error) {
	var (
		cfg config.AppConfig
		sec config.Secrets
		err error
	)
	if opts.Config != "" {
		cfg, sec, err = config.LoadFrom(opts.Config)
	} else {
		cfg, sec, err = config.Load()
	}
	if err != nil {
		return cfg, sec, err
	}
	if opts.DSN != "" {
		cfg.Storage.DSN = opts.DSN
	}
	if opts.Owner != "" {
		cfg.General.Owner = opts.Owner
	}
	return cfg, sec, nil
}

func initLogging(cfg config.AppConfig, verbose bool, w io.Writer) {
	lo := applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, AddSource: cfg.Logging.Source, File: cfg.Logging.File, Writer: w}
	if verbose {
		lo.Level = "debug"
	}
	applog.Init(lo)
}

func initTelemetry(cfg config.AppConfig) {
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tc)
}

// openEnv loads configuration, initializes logging and telemetry and opens the store.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, sec, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	initLogging(cfg, opts.Verbose, cmd.ErrOrStderr())
	initTelemetry(cfg)
	store, err := storage.Open(ctx, cfg.Storage.DSN, storage.Options{KeepSnapshots: cfg.Storage.KeepSnapshots})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open project store", err)
	}
	ik := imagekit.New(imagekit.Config{
		URLEndpoint: cfg.ImageKit.URLEndpoint,
		PublicKey:   cfg.ImageKit.PublicKey,
		PrivateKey:  sec.ImageKitPrivateKey,
		UploadURL:   cfg.ImageKit.UploadURL,
		Timeout:     ms(cfg.ImageKit.TimeoutMs),
		MaxFailures: cfg.Editor.BreakerMaxFailures,
		OpenTimeout: ms(cfg.Editor.BreakerTimeoutMs),
	})
	return &env{
		cfg:   cfg,
		sec:   sec,
		owner: cfg.General.Owner,
		store: store,
		src:   &sources{ik: ik},
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		log: applog.WithComponent("cli"),
	}, nil
}

func (e *env) Close() {
	telemetry.Default().Flush(context.Background())
	_ = e.store.Close()
}

// service is the project service sessions write through: the remote backend when one is
// configured, the local store otherwise.
func (e *env) service() domain.ProjectService {
	if strings.TrimSpace(e.cfg.Backend.BaseURL) != "" {
		return backend.NewClient(e.cfg.Backend.BaseURL, e.sec.BackendToken, ms(e.cfg.Backend.TimeoutMs), e.cfg.Backend.TLSInsecure)
	}
	return e.store
}

// stock returns the stock photo client, nil without an access key.
func (e *env) stock() tools.Searcher {
	if e.sec.StockAccessKey == "" {
		return nil
	}
	return stock.New(stock.Config{
		BaseURL:        e.cfg.Stock.APIURL,
		AccessKey:      e.sec.StockAccessKey,
		PerPage:        e.cfg.Stock.PerPage,
		RequestsPerMin: e.cfg.Stock.RequestsPerMin,
	})
}

// openSession starts an editing session on project id. Notifications go to the
// formatter's diagnostic output.
func (e *env) openSession(ctx context.Context, id string) (*editor.Session, error) {
	return editor.Open(ctx, e.service(), id, editor.Options{
		Owner:           e.owner,
		HistoryCapacity: e.cfg.Editor.HistoryCapacity,
		AutosaveDelay:   ms(e.cfg.Editor.AutosaveDelayMs),
		Margin:          float64(e.cfg.Editor.ViewportMargin),
		Loader:          e.src,
		Notifier: editor.NotifierFunc(func(level editor.Level, msg string) {
			e.out.VerboseLog("[%s] %s", level, msg)
		}),
		Tracker: telemetry.Default(),
	})
}
