// Package config loads rpctl settings from ~/.rpctl/config.yaml with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/hostconfig"
)

// Environment overrides.
const (
	EnvChiakiConfig = "RPCTL_CHIAKI_CONFIG"
	EnvLogLevel     = "RPCTL_LOG_LEVEL"
	EnvAccountID    = "RPCTL_PSN_ACCOUNT_ID"
	EnvEngine       = "RPCTL_ENGINE"
)

// Config is the full settings document.
type Config struct {
	Chiaki     ChiakiConfig  `yaml:"chiaki"`
	Engine     string        `yaml:"engine"`
	Session    SessionConfig `yaml:"session"`
	Stream     StreamConfig  `yaml:"stream"`
	Tools      ToolsConfig   `yaml:"tools"`
	History    HistoryConfig `yaml:"history"`
	Recordings string        `yaml:"recordings"`
	Relay      RelayConfig   `yaml:"relay"`
	Log        LogConfig     `yaml:"log"`
}

// ChiakiConfig points at the chiaki credential store and CLI.
type ChiakiConfig struct {
	ConfigPath string `yaml:"config_path"`
	CLI        string `yaml:"cli"`
}

// SessionConfig holds connection defaults.
type SessionConfig struct {
	Resolution        string        `yaml:"resolution"`
	FPS               int           `yaml:"fps"`
	RegistKeyEncoding string        `yaml:"regist_key_encoding"`
	PSNAccountID      string        `yaml:"psn_account_id"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
}

// StreamConfig tunes the frame pump.
type StreamConfig struct {
	IFrameTimeout time.Duration `yaml:"iframe_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// ToolsConfig names external binaries.
type ToolsConfig struct {
	FFplay string `yaml:"ffplay"`
	FFmpeg string `yaml:"ffmpeg"`
}

// HistoryConfig controls the run log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RelayConfig configures rpctld.
type RelayConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig selects level and output format ("console" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	paths := GetPaths()
	return &Config{
		Chiaki: ChiakiConfig{
			ConfigPath: hostconfig.DefaultPath(),
			CLI:        "chiaki-cli",
		},
		Engine: "chiaki",
		Session: SessionConfig{
			Resolution:        "720p",
			FPS:               60,
			RegistKeyEncoding: "hex",
			ConnectTimeout:    constants.ConnectTimeout,
			StopTimeout:       constants.StopJoinTimeout,
		},
		Stream: StreamConfig{
			IFrameTimeout: constants.IFrameTimeout,
			PollInterval:  constants.FramePollInterval,
		},
		Tools:      ToolsConfig{FFplay: "ffplay", FFmpeg: "ffmpeg"},
		History:    HistoryConfig{Enabled: true, Path: paths.HistoryDB},
		Recordings: paths.Recordings,
		Relay:      RelayConfig{Listen: "127.0.0.1:8765"},
		Log:        LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = GetPaths().Config
	}
	data, err := os.ReadFile(ExpandPath(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvChiakiConfig); v != "" {
		c.Chiaki.ConfigPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvAccountID); v != "" {
		c.Session.PSNAccountID = v
	}
	if v := os.Getenv(EnvEngine); v != "" {
		c.Engine = v
	}
}

// normalize fills zero values left by a partial file with the defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Chiaki.ConfigPath == "" {
		c.Chiaki.ConfigPath = def.Chiaki.ConfigPath
	}
	c.Chiaki.ConfigPath = ExpandPath(c.Chiaki.ConfigPath)
	if c.Chiaki.CLI == "" {
		c.Chiaki.CLI = def.Chiaki.CLI
	}
	if c.Engine == "" {
		c.Engine = def.Engine
	}
	if c.Session.Resolution == "" {
		c.Session.Resolution = def.Session.Resolution
	}
	if c.Session.FPS == 0 {
		c.Session.FPS = def.Session.FPS
	}
	if c.Session.RegistKeyEncoding == "" {
		c.Session.RegistKeyEncoding = def.Session.RegistKeyEncoding
	}
	c.Session.RegistKeyEncoding = strings.ToLower(c.Session.RegistKeyEncoding)
	if c.Session.ConnectTimeout <= 0 {
		c.Session.ConnectTimeout = def.Session.ConnectTimeout
	}
	if c.Session.StopTimeout <= 0 {
		c.Session.StopTimeout = def.Session.StopTimeout
	}
	if c.Stream.IFrameTimeout <= 0 {
		c.Stream.IFrameTimeout = def.Stream.IFrameTimeout
	}
	if c.Stream.PollInterval <= 0 {
		c.Stream.PollInterval = def.Stream.PollInterval
	}
	if c.Tools.FFplay == "" {
		c.Tools.FFplay = def.Tools.FFplay
	}
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = def.Tools.FFmpeg
	}
	if c.History.Path == "" {
		c.History.Path = def.History.Path
	}
	c.History.Path = ExpandPath(c.History.Path)
	if c.Recordings == "" {
		c.Recordings = def.Recordings
	}
	c.Recordings = ExpandPath(c.Recordings)
	if c.Relay.Listen == "" {
		c.Relay.Listen = def.Relay.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate rejects values that would only fail later.
func (c *Config) Validate() error {
	switch c.Session.RegistKeyEncoding {
	case "hex", "ascii":
	default:
		return fmt.Errorf("config: session.regist_key_encoding must be hex or ascii, got %q", c.Session.RegistKeyEncoding)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Stream.PollInterval > time.Second {
		return fmt.Errorf("config: stream.poll_interval %s is too slow", c.Stream.PollInterval)
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
