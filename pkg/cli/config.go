package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/galeview/pkg/layout"
)

const (
	// ConfigFile is the name of the configuration file in the config directory
	ConfigFile = "config.yaml"
	// ConfigVersion is written to new configuration files
	ConfigVersion = "1.0"

	// BrokerEndpointEnvVar overrides broker.endpoint
	BrokerEndpointEnvVar = "GALEVIEW_BROKER_ENDPOINT"
	// PlaygroundEndpointEnvVar overrides playground.endpoint
	PlaygroundEndpointEnvVar = "GALEVIEW_PLAYGROUND_ENDPOINT"

	defaultBrokerEndpoint = "http://localhost:8080"
	defaultServerAddr     = ":8090"
)

// Duration is a time.Duration written as "30s" in YAML
type Duration time.Duration

// MarshalYAML encodes d in time.Duration string form
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes strings such as "1m30s"
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// BrokerConfig configures the broker connection
type BrokerConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// PlaygroundConfig configures where playground experiments are kept. An
// empty endpoint keeps them in the local database.
type PlaygroundConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// ServerConfig configures `galeview serve`
type ServerConfig struct {
	Addr       string   `yaml:"addr"`
	CacheTTL   Duration `yaml:"cache_ttl"`
	CORSOrigin string   `yaml:"cors_origin"`
}

// AppConfig is the content of config.yaml
type AppConfig struct {
	Version    string           `yaml:"version"`
	Broker     BrokerConfig     `yaml:"broker"`
	Playground PlaygroundConfig `yaml:"playground"`
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Layout     layout.Sizes     `yaml:"layout"`
}

// DefaultAppConfig returns the configuration used when config.yaml omits a value
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Version: ConfigVersion,
		Broker: BrokerConfig{
			Endpoint: defaultBrokerEndpoint,
			Timeout:  Duration(30 * time.Second),
		},
		LogLevel: "info",
		Server: ServerConfig{
			Addr:       defaultServerAddr,
			CacheTTL:   Duration(30 * time.Second),
			CORSOrigin: "*",
		},
		Layout: layout.DefaultSizes(),
	}
}

// LoadConfig reads config.yaml from dir and merges it over the defaults.
// A missing file yields the defaults. GALEVIEW_BROKER_ENDPOINT and
// GALEVIEW_PLAYGROUND_ENDPOINT take priority over the file.
func LoadConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ConfigFile, err)
		}
	}

	if endpoint := os.Getenv(BrokerEndpointEnvVar); endpoint != "" {
		cfg.Broker.Endpoint = endpoint
	}
	if endpoint := os.Getenv(PlaygroundEndpointEnvVar); endpoint != "" {
		cfg.Playground.Endpoint = endpoint
	}

	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout section in %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// WriteDefaultConfig writes the default configuration to path unless a file
// already exists there.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat config: %w", err)
	}

	data, err := yaml.Marshal(DefaultAppConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}
