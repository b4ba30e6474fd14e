package fakebroker

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config configures a standalone fake broker.
type Config struct {
	Addr    string // Listen address
	DataDir string // Fixture directory read by LoadDir (empty = no fixtures)
	Token   string // Required bearer token (empty = no authorization)
}

// DefaultConfig returns the configuration used when no environment is set.
//
// Defaults:
//   - Addr: 127.0.0.1:8080, the broker endpoint galeview uses by default
//   - DataDir: "" (start empty)
//   - Token: "" (no authorization)
func DefaultConfig() *Config {
	return &Config{
		Addr: "127.0.0.1:8080",
	}
}

// LoadConfig loads configuration from environment variables.
//
// Environment variables:
//   - GALEVIEW_FAKEBROKER_ADDR: Override listen address
//   - GALEVIEW_FAKEBROKER_DATA_DIR: Fixture directory
//   - GALEVIEW_FAKEBROKER_TOKEN: Required bearer token
func LoadConfig() *Config {
	config := DefaultConfig()

	if addr := os.Getenv("GALEVIEW_FAKEBROKER_ADDR"); addr != "" {
		config.Addr = addr
	}
	if dir := os.Getenv("GALEVIEW_FAKEBROKER_DATA_DIR"); dir != "" {
		config.DataDir = dir
	}
	if token := os.Getenv("GALEVIEW_FAKEBROKER_TOKEN"); token != "" {
		config.Token = token
	}

	return config
}

// Validate checks if the configuration is valid.
//
// Returns error if:
//   - Addr is empty
//   - DataDir is set but does not exist or is not a directory
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.DataDir == "" {
		return nil
	}

	info, err := os.Stat(filepath.Clean(c.DataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("data directory does not exist: %s", c.DataDir)
		}
		return fmt.Errorf("cannot access data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory is not a directory: %s", c.DataDir)
	}
	return nil
}
