package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/interpreter/gateway"
)

const (
	defaultAddr     = "127.0.0.1:49999"
	defaultLanguage = "python"
)

// Config holds initialization parameters for the façade and its gateway
// client.
type Config struct {
	// Addr is the listen address of the HTTP façade.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// DefaultLanguage is used by execute requests that name neither a
	// context nor a language.
	DefaultLanguage string `json:"default_language,omitempty" yaml:"default_language,omitempty"`
	// DefaultCWD is the working directory of lazily created default
	// contexts.
	DefaultCWD string `json:"default_cwd,omitempty" yaml:"default_cwd,omitempty"`

	Gateway gateway.Config `json:"gateway" yaml:"gateway"`
}

// DefaultConfig returns a Config with sensible defaults for all sections.
func DefaultConfig() Config {
	return Config{
		Addr:            defaultAddr,
		DefaultLanguage: defaultLanguage,
		Gateway:         gateway.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// section's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.DefaultLanguage != "" {
		c.DefaultLanguage = source.DefaultLanguage
	}
	if source.DefaultCWD != "" {
		c.DefaultCWD = source.DefaultCWD
	}
	c.Gateway.Merge(&source.Gateway)
}

// LoadConfig reads a JSON or YAML config file (by extension), merges it with
// defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
