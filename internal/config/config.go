package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL        = "http://localhost:12345"
	DefaultSocketURL      = "ws://localhost:12345/ws/chat"
	DefaultRequestTimeout = 20
	DefaultPageSize       = 100
)

// Config represents the global ~/.tutu/config.toml.
type Config struct {
	DefaultProfile string       `toml:"default_profile"`
	Server         ServerConfig `toml:"server"`
	Sync           SyncConfig   `toml:"sync"`
}

// ServerConfig locates the chat server.
type ServerConfig struct {
	BaseURL               string `toml:"base_url"`
	SocketURL             string `toml:"socket_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// SyncConfig tunes history ingestion.
type SyncConfig struct {
	PageSize int `toml:"page_size"`
}

// Default returns a config with every field populated.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// RequestTimeout returns the REST timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.Server.SocketURL == "" {
		c.Server.SocketURL = DefaultSocketURL
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = DefaultRequestTimeout
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = DefaultPageSize
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
}

// Load reads config from the given path. Returns error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load that treats a missing file as an empty one.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides server endpoints from TUTU_BASE_URL and TUTU_SOCKET_URL.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win over the file.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()
	if v := os.Getenv("TUTU_BASE_URL"); v != "" {
		c.Server.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("TUTU_SOCKET_URL"); v != "" {
		c.Server.SocketURL = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
