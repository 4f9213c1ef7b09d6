package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/benchrun/benchrun/internal/constants"
	"github.com/benchrun/benchrun/internal/safe"
)

// Layer is one configuration source.
type Layer string

const (
	LayerDefaults Layer = "defaults"
	LayerFile     Layer = "file"
	LayerEnv      Layer = "env"
	// LayerFlags is applied by the CLI after Load returns.
	LayerFlags Layer = "flags"
)

// Loader builds a Config from its layers. Later layers override earlier
// ones: defaults, then the YAML file, then the environment.
type Loader struct {
	enabled map[Layer]bool
}

// NewLoader enables the defaults, file and env layers.
func NewLoader() *Loader {
	return &Loader{enabled: map[Layer]bool{
		LayerDefaults: true,
		LayerFile:     true,
		LayerEnv:      true,
	}}
}

// DisableLayer turns a layer off.
func (l *Loader) DisableLayer(layer Layer) {
	l.enabled[layer] = false
}

// Load reads path, or constants.ConfigFile from the working directory when
// path is empty. An explicit path must exist; the implicit one may not.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := &Config{}
	if l.enabled[LayerDefaults] {
		cfg = Default()
	}

	if l.enabled[LayerFile] {
		explicit := path != ""
		if !explicit {
			path = constants.ConfigFile
		}
		if err := mergeFromFile(cfg, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if l.enabled[LayerEnv] {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	return cfg, nil
}

func mergeFromFile(cfg *Config, path string) error {
	data, err := safe.ReadFile(path, safe.Options{MaxSize: 1 << 20, AllowSymlinks: true})
	if err != nil {
		return err
	}
	return decodeYAML(data, cfg)
}

// decodeYAML merges data into cfg, rejecting unknown keys.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
