/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides at runtime. Secrets never live in the
// file; they are kept in the OS keychain and returned separately as Secrets.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Backend       BackendConfig  `yaml:"backend"`
	Storage       StorageConfig  `yaml:"storage"`
	ImageKit      ImageKitConfig `yaml:"imagekit"`
	Stock         StockConfig    `yaml:"stock"`
	Editor        EditorConfig   `yaml:"editor"`
	Logging       LoggingConfig  `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
	// Owner identifies the local user for ownership checks and upload folders.
	Owner string `yaml:"owner"`
}

type BackendConfig struct {
	// BaseURL of the remote project service. Empty means the local SQL store is used.
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

type StorageConfig struct {
	// DSN is a SQLite file path or a postgres:// URL.
	DSN           string `yaml:"dsn"`
	KeepSnapshots int    `yaml:"keep_snapshots"`
}

type ImageKitConfig struct {
	URLEndpoint string `yaml:"url_endpoint"`
	PublicKey   string `yaml:"public_key"`
	UploadURL   string `yaml:"upload_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

type StockConfig struct {
	APIURL         string `yaml:"api_url"`
	PerPage        int    `yaml:"per_page"`
	RequestsPerMin int    `yaml:"requests_per_min"`
	DebounceMs     int    `yaml:"debounce_ms"`
}

type EditorConfig struct {
	HistoryCapacity    int    `yaml:"history_capacity"`
	AutosaveDelayMs    int    `yaml:"autosave_delay_ms"`
	ViewportMargin     int    `yaml:"viewport_margin"`
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`
	BreakerTimeoutMs   int    `yaml:"breaker_timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Secrets are credentials loaded from the OS keychain (or env overrides).
type Secrets struct {
	BackendToken       string
	ImageKitPrivateKey string
	StockAccessKey     string
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Owner: "local"},
		Backend:       BackendConfig{BaseURL: "", TimeoutMs: 15000},
		Storage:       StorageConfig{DSN: "", KeepSnapshots: 50},
		ImageKit: ImageKitConfig{
			URLEndpoint: "https://ik.imagekit.io/pixnoma",
			UploadURL:   "https://upload.imagekit.io/api/v1/files/upload",
			TimeoutMs:   60000,
		},
		Stock:  StockConfig{APIURL: "https://api.unsplash.com", PerPage: 12, RequestsPerMin: 50, DebounceMs: 300},
		Editor: EditorConfig{HistoryCapacity: 20, AutosaveDelayMs: 2000, ViewportMargin: 40, BreakerMaxFailures: 5, BreakerTimeoutMs: 30000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvBackendURL       = "PXN_BACKEND_URL"
	EnvBackendTimeoutMs = "PXN_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "PXN_TLS_INSECURE"
	EnvTelemetryOptIn   = "PXN_TELEMETRY_OPT_IN"
	EnvOwner            = "PXN_OWNER"
	EnvStorageDSN       = "PXN_STORAGE_DSN"
	EnvImageKitEndpoint = "PXN_IMAGEKIT_URL_ENDPOINT"
	EnvImageKitPublic   = "PXN_IMAGEKIT_PUBLIC_KEY"
	EnvStockAPIURL      = "PXN_STOCK_API_URL"
	EnvAutosaveDelayMs  = "PXN_AUTOSAVE_DELAY_MS"
	EnvHistoryCapacity  = "PXN_HISTORY_CAPACITY"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "PXN_LOG_LEVEL"
	EnvLogFormat = "PXN_LOG_FORMAT"
	EnvLogSource = "PXN_LOG_SOURCE"
	EnvLogFile   = "PXN_LOG_FILE"
	// Secret envs take precedence over the keychain (CI, containers).
	EnvBackendToken     = "PXN_BACKEND_TOKEN"
	EnvImageKitPrivate  = "PXN_IMAGEKIT_PRIVATE_KEY"
	EnvStockAccessKey   = "PXN_STOCK_ACCESS_KEY"
)

// Service/keys for OS keyring.
const (
	keyringService     = "Pixnoma"
	keyringToken       = "backend_token"
	keyringImageKitKey = "imagekit_private_key"
	keyringStockKey    = "stock_access_key"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error {
	if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Pixnoma")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Pixnoma")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "pixnoma")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "pixnoma")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DefaultDSN places the local project database next to the config file.
func DefaultDSN() string {
	p, err := ConfigPath()
	if err != nil {
		return filepath.Join(os.TempDir(), "pixnoma.sqlite")
	}
	return filepath.Join(filepath.Dir(p), "projects.sqlite")
}

// Load reads the user config file (if present), applies defaults, merges environment
// overrides and loads secrets.
func Load() (AppConfig, Secrets, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, loadSecrets(), err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file is not an error.
func LoadFrom(path string) (AppConfig, Secrets, error) {
	cfg := Defaults()
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		cfg.Storage.DSN = DefaultDSN()
	}
	return cfg, loadSecrets(), nil
}

func loadSecrets() Secrets {
	get := func(env, key string) string {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
		v, _ := tokenStore.Get(keyringService, key)
		return v
	}
	return Secrets{
		BackendToken:       get(EnvBackendToken, keyringToken),
		ImageKitPrivateKey: get(EnvImageKitPrivate, keyringImageKitKey),
		StockAccessKey:     get(EnvStockAccessKey, keyringStockKey),
	}
}

// Save writes the user config YAML and persists non-empty secrets into the OS keyring.
func Save(cfg AppConfig, sec Secrets) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg, sec)
}

// SaveTo is Save with an explicit file path.
func SaveTo(path string, cfg AppConfig, sec Secrets) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	for key, v := range map[string]string{
		keyringToken:       sec.BackendToken,
		keyringImageKitKey: sec.ImageKitPrivateKey,
		keyringStockKey:    sec.StockAccessKey,
	} {
		if v == "" {
			continue
		}
		if err := tokenStore.Set(keyringService, key, v); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if s := strings.TrimSpace(src.General.Owner); s != "" {
		dst.General.Owner = s
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if s := strings.TrimSpace(src.Storage.DSN); s != "" {
		dst.Storage.DSN = s
	}
	if src.Storage.KeepSnapshots > 0 {
		dst.Storage.KeepSnapshots = src.Storage.KeepSnapshots
	}
	if src.ImageKit.URLEndpoint != "" {
		dst.ImageKit.URLEndpoint = strings.TrimRight(src.ImageKit.URLEndpoint, "/")
	}
	if src.ImageKit.PublicKey != "" {
		dst.ImageKit.PublicKey = src.ImageKit.PublicKey
	}
	if src.ImageKit.UploadURL != "" {
		dst.ImageKit.UploadURL = src.ImageKit.UploadURL
	}
	if src.ImageKit.TimeoutMs > 0 {
		dst.ImageKit.TimeoutMs = src.ImageKit.TimeoutMs
	}
	if src.Stock.APIURL != "" {
		dst.Stock.APIURL = strings.TrimRight(src.Stock.APIURL, "/")
	}
	if src.Stock.PerPage > 0 {
		dst.Stock.PerPage = src.Stock.PerPage
	}
	if src.Stock.RequestsPerMin > 0 {
		dst.Stock.RequestsPerMin = src.Stock.RequestsPerMin
	}
	if src.Stock.DebounceMs > 0 {
		dst.Stock.DebounceMs = src.Stock.DebounceMs
	}
	if src.Editor.HistoryCapacity > 0 {
		dst.Editor.HistoryCapacity = src.Editor.HistoryCapacity
	}
	if src.Editor.AutosaveDelayMs > 0 {
		dst.Editor.AutosaveDelayMs = src.Editor.AutosaveDelayMs
	}
	if src.Editor.ViewportMargin > 0 {
		dst.Editor.ViewportMargin = src.Editor.ViewportMargin
	}
	if src.Editor.BreakerMaxFailures > 0 {
		dst.Editor.BreakerMaxFailures = src.Editor.BreakerMaxFailures
	}
	if src.Editor.BreakerTimeoutMs > 0 {
		dst.Editor.BreakerTimeoutMs = src.Editor.BreakerTimeoutMs
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	str := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	num := func(env string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	flag := func(env string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = parseBool(v)
		}
	}
	str(EnvBackendURL, &cfg.Backend.BaseURL)
	num(EnvBackendTimeoutMs, &cfg.Backend.TimeoutMs)
	flag(EnvBackendTLSInsec, &cfg.Backend.TLSInsecure)
	flag(EnvTelemetryOptIn, &cfg.General.TelemetryOptIn)
	str(EnvOwner, &cfg.General.Owner)
	str(EnvStorageDSN, &cfg.Storage.DSN)
	str(EnvImageKitEndpoint, &cfg.ImageKit.URLEndpoint)
	str(EnvImageKitPublic, &cfg.ImageKit.PublicKey)
	str(EnvStockAPIURL, &cfg.Stock.APIURL)
	num(EnvAutosaveDelayMs, &cfg.Editor.AutosaveDelayMs)
	num(EnvHistoryCapacity, &cfg.Editor.HistoryCapacity)
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	flag(EnvLogSource, &cfg.Logging.Source)
	str(EnvLogFile, &cfg.Logging.File)
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := map[string]string{
		"backend.base_url":          EnvBackendURL,
		"backend.timeout_ms":        EnvBackendTimeoutMs,
		"backend.tls_insecure":      EnvBackendTLSInsec,
		"general.telemetry_opt_in":  EnvTelemetryOptIn,
		"general.owner":             EnvOwner,
		"storage.dsn":               EnvStorageDSN,
		"imagekit.url_endpoint":     EnvImageKitEndpoint,
		"imagekit.public_key":       EnvImageKitPublic,
		"stock.api_url":             EnvStockAPIURL,
		"editor.autosave_delay_ms":  EnvAutosaveDelayMs,
		"editor.history_capacity":   EnvHistoryCapacity,
		"logging.level":             EnvLogLevel,
		"logging.format":            EnvLogFormat,
		"logging.source":            EnvLogSource,
		"logging.file":              EnvLogFile,
	}[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

func ms(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration { return ms(b.TimeoutMs, 15000) }

// Timeout returns the transform-service request timeout.
func (c ImageKitConfig) Timeout() time.Duration { return ms(c.TimeoutMs, 60000) }

// Debounce returns the stock search debounce window.
func (c StockConfig) Debounce() time.Duration { return ms(c.DebounceMs, 300) }

// AutosaveDelay returns the quiescence delay before an autosave is pushed.
func (c EditorConfig) AutosaveDelay() time.Duration { return ms(c.AutosaveDelayMs, 2000) }

// BreakerTimeout returns how long an open breaker waits before probing again.
func (c EditorConfig) BreakerTimeout() time.Duration { return ms(c.BreakerTimeoutMs, 30000) }
