// Package config stores dualseq settings as YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/james-see/dualseq/pkg/sequencer"
)

// Config is the main configuration structure
type Config struct {
	// Backend is the active backend kind, "legacy" or "modern"
	Backend string `yaml:"backend"`
	// Shadow also loads every source into the other backend
	Shadow bool `yaml:"shadow,omitempty"`

	MIDIDir    string `yaml:"midiDir"`
	SoundFont  string `yaml:"soundFont,omitempty"`
	OutputPort string `yaml:"outputPort,omitempty"`
	SampleRate int    `yaml:"sampleRate,omitempty"`

	LogLevel   string `yaml:"logLevel"`
	ServerPort int    `yaml:"serverPort"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:    string(sequencer.KindLegacy),
		MIDIDir:    ".",
		SampleRate: 44100,
		LogLevel:   "info",
		ServerPort: 8080,
	}
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dualseq"), nil
}

// Path returns the full path to config.yaml
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from the default path, or returns defaults if it
// does not exist
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Missing files yield defaults; fields
// absent from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field values
func (c *Config) Validate() error {
	if _, err := sequencer.ParseKind(c.Backend); err != nil {
		return err
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server port %d out of range", c.ServerPort)
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("negative sample rate %d", c.SampleRate)
	}
	return nil
}

// Kind returns the configured backend kind
func (c *Config) Kind() sequencer.Kind {
	k, err := sequencer.ParseKind(c.Backend)
	if err != nil {
		return sequencer.KindLegacy
	}
	return k
}
