package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const (
	DefaultServerURL = "http://localhost:8080"
	DefaultPageSize  = 15
)

// Client represents chatctl's config.toml.
type Client struct {
	ServerURL string `toml:"server_url"`
	CachePath string `toml:"cache_path"`
	PageSize  int    `toml:"page_size"`
}

// DefaultClientPath returns $XDG_CONFIG_HOME/chatctl/config.toml.
func DefaultClientPath() string {
	return filepath.Join(xdg.ConfigHome, "chatctl", "config.toml")
}

// DefaultCachePath returns $XDG_DATA_HOME/chatctl/cache.db.
func DefaultCachePath() string {
	return filepath.Join(xdg.DataHome, "chatctl", "cache.db")
}

// LoadClient reads the client config. A missing file yields defaults.
func LoadClient(path string) (*Client, error) {
	cfg := &Client{}
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// SaveClient writes the config, creating parent dirs as needed.
func SaveClient(path string, cfg *Client) error {
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

func (c *Client) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath()
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
}
