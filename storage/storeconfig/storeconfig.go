// Package storeconfig selects and opens a storage backend from a config file.
package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/backend"
)

// Config describes which backend to open and with which settings.
//
// Callers still need to link desired backend plugins via blank imports.
// Config values are backend-specific and mirror the backend's flag names.
//
// Example (JSON):
//
//	{"backend": "sqlite", "config": {"sqlite-path": "/var/lib/tokenreg/accounts.db"}}
//
// Example (YAML):
//
//	backend: localfs
//	config:
//	  localfs-dir: /var/lib/tokenreg/accounts
type Config struct {
	Backend string            `json:"backend" yaml:"backend"`
	Config  map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// LoadFile reads a JSON or YAML (by .yaml/.yml extension) config file.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("storeconfig: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("storeconfig: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Backend) == "" {
		return errors.New("storeconfig: backend name is required")
	}
	for k := range c.Config {
		if k == "" || strings.HasPrefix(k, "-") {
			return fmt.Errorf("storeconfig: invalid config key %q", k)
		}
	}
	return nil
}

// Open opens the configured backend.
func (c Config) Open(usage backend.Usage) (storage.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return backend.OpenWithConfig(c.Backend, usage, c.Config)
}

// Select opens the store a binary was pointed at: the config file at path
// when set, otherwise the named backend using flag values already parsed
// into bindings.
func Select(path, name string, bindings backend.Bindings, usage backend.Usage) (storage.Store, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return cfg.Open(usage)
	}
	if name == "" {
		return nil, errors.New("storeconfig: no backend selected")
	}
	return bindings.Open(name)
}
