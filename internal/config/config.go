// Package config loads the card server configuration from a TOML file.
//
// A missing file is not an error: every field has a default, and a handful
// of environment variables override the file for container deployments.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/youruser/musiccard/internal/fetch"
	"github.com/youruser/musiccard/internal/logger"
)

// DefaultPath is read when no -config flag is given.
const DefaultPath = "config.toml"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
	Cache   CacheConfig   `toml:"cache"`
	Retry   RetryConfig   `toml:"retry"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Image   ImageConfig   `toml:"image"`
	Netease NeteaseConfig `toml:"netease"`
	Spotify SpotifyConfig `toml:"spotify"`
	Render  RenderConfig  `toml:"render"`
}

type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `toml:"addr"`
	// AssetsDir serves local image refs such as "/templates/phone.png".
	AssetsDir string `toml:"assets_dir"`
	// DataDir holds themes.csv.
	DataDir string `toml:"data_dir"`
	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `toml:"level"`
	// File enables a rotating log file instead of stderr.
	File string `toml:"file"`
	// MaxSizeMB is the rotation threshold.
	MaxSizeMB int `toml:"max_size_mb"`
}

type CacheConfig struct {
	// MetadataTTLMinutes bounds how long track metadata is served from memory.
	MetadataTTLMinutes int `toml:"metadata_ttl_minutes"`
	// ColorTTLMinutes bounds the extracted-palette cache. 0 keeps entries
	// for the process lifetime.
	ColorTTLMinutes int `toml:"color_ttl_minutes"`
}

// PolicyConfig is the file form of fetch.Policy.
type PolicyConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`
	InitialDelayMs int     `toml:"initial_delay_ms"`
	MaxDelayMs     int     `toml:"max_delay_ms"`
	BackoffFactor  float64 `toml:"backoff_factor"`
}

// Policy converts p to a fetch.Policy.
func (p PolicyConfig) Policy() fetch.Policy {
	return fetch.Policy{
		MaxAttempts:   p.MaxAttempts,
		InitialDelay:  time.Duration(p.InitialDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(p.MaxDelayMs) * time.Millisecond,
		BackoffFactor: p.BackoffFactor,
	}
}

type RetryConfig struct {
	Metadata PolicyConfig `toml:"metadata"`
	Image    PolicyConfig `toml:"image"`
	Resolve  PolicyConfig `toml:"resolve"`
}

type ProxyConfig struct {
	TimeoutMs int    `toml:"timeout_ms"`
	UserAgent string `toml:"user_agent"`
	Referer   string `toml:"referer"`
	// AllowedHosts are doublestar globs matched against the upstream host.
	AllowedHosts  []string `toml:"allowed_hosts"`
	MaxAgeSeconds int      `toml:"max_age_seconds"`
}

type ImageConfig struct {
	LoadTimeoutMs int `toml:"load_timeout_ms"`
	// ProxyBase, when set, routes remote image loads through an external
	// image-proxy endpoint instead of fetching directly.
	ProxyBase string `toml:"proxy_base"`
}

type NeteaseConfig struct {
	BaseURL          string `toml:"base_url"`
	RequestTimeoutMs int    `toml:"request_timeout_ms"`
	// DeadlineMs is shared by the parallel detail and lyric requests.
	DeadlineMs int `toml:"deadline_ms"`
}

type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Enabled reports whether both credentials are present.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

type RenderConfig struct {
	// FontRegular and FontBold are TTF/OTF/WOFF/WOFF2 paths. Empty selects
	// the bundled Go fonts.
	FontRegular string `toml:"font_regular"`
	FontBold    string `toml:"font_bold"`
	// PlayDurationRatio derives the play position when a card does not set
	// one explicitly.
	PlayDurationRatio float64 `toml:"play_duration_ratio"`
	// LyricLines is the excerpt length used for fetched lyrics.
	LyricLines int `toml:"lyric_lines"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			AssetsDir:              "public",
			DataDir:                "data",
			ShutdownTimeoutSeconds: 10,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Cache: CacheConfig{
			MetadataTTLMinutes: 24 * 60,
			ColorTTLMinutes:    0,
		},
		Retry: RetryConfig{
			Metadata: PolicyConfig{MaxAttempts: 2, InitialDelayMs: 500, MaxDelayMs: 2000, BackoffFactor: 2},
			Image:    PolicyConfig{MaxAttempts: 2, InitialDelayMs: 500, MaxDelayMs: 2000, BackoffFactor: 2},
			Resolve:  PolicyConfig{MaxAttempts: 3, InitialDelayMs: 1000, MaxDelayMs: 5000, BackoffFactor: 2},
		},
		Proxy: ProxyConfig{
			TimeoutMs:     5000,
			Referer:       "http://music.163.com",
			AllowedHosts:  []string{"**"},
			MaxAgeSeconds: 31536000,
		},
		Image: ImageConfig{
			LoadTimeoutMs: 10000,
		},
		Netease: NeteaseConfig{
			BaseURL:          "http://music.163.com",
			RequestTimeoutMs: 5000,
			DeadlineMs:       8000,
		},
		Render: RenderConfig{
			PlayDurationRatio: 1.0 / 3.0,
			LyricLines:        5,
		},
	}
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets PORT, LOG_LEVEL, SPOTIFY_ID and SPOTIFY_SECRET win over
// the file.
func (c *Config) applyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if lvl := getenv("LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
	if id := getenv("SPOTIFY_ID"); id != "" {
		c.Spotify.ClientID = id
	}
	if secret := getenv("SPOTIFY_SECRET"); secret != "" {
		c.Spotify.ClientSecret = secret
	}
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.Cache.MetadataTTLMinutes < 0 || c.Cache.ColorTTLMinutes < 0 {
		return errors.New("cache ttl must not be negative")
	}

	for name, p := range map[string]PolicyConfig{
		"metadata": c.Retry.Metadata,
		"image":    c.Retry.Image,
		"resolve":  c.Retry.Resolve,
	} {
		if err := p.Policy().Validate(); err != nil {
			return fmt.Errorf("retry.%s: %w", name, err)
		}
	}

	if c.Proxy.TimeoutMs <= 0 {
		return fmt.Errorf("proxy.timeout_ms must be > 0, got %d", c.Proxy.TimeoutMs)
	}
	if len(c.Proxy.AllowedHosts) == 0 {
		return errors.New("proxy.allowed_hosts must list at least one pattern")
	}
	if c.Image.LoadTimeoutMs <= 0 {
		return fmt.Errorf("image.load_timeout_ms must be > 0, got %d", c.Image.LoadTimeoutMs)
	}
	if c.Netease.RequestTimeoutMs <= 0 || c.Netease.DeadlineMs <= 0 {
		return errors.New("netease timeouts must be > 0")
	}
	if c.Render.PlayDurationRatio <= 0 || c.Render.PlayDurationRatio > 1 {
		return fmt.Errorf("render.play_duration_ratio must be in (0,1], got %g", c.Render.PlayDurationRatio)
	}
	if c.Render.LyricLines < 1 {
		return fmt.Errorf("render.lyric_lines must be >= 1, got %d", c.Render.LyricLines)
	}
	return nil
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

func (c *Config) MetadataTTL() time.Duration {
	return time.Duration(c.Cache.MetadataTTLMinutes) * time.Minute
}

func (c *Config) ColorTTL() time.Duration {
	return time.Duration(c.Cache.ColorTTLMinutes) * time.Minute
}

func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.Proxy.TimeoutMs) * time.Millisecond
}

func (c *Config) ImageLoadTimeout() time.Duration {
	return time.Duration(c.Image.LoadTimeoutMs) * time.Millisecond
}

func (c *Config) NeteaseRequestTimeout() time.Duration {
	return time.Duration(c.Netease.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) NeteaseDeadline() time.Duration {
	return time.Duration(c.Netease.DeadlineMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
