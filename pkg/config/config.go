package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/tracenotes/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// Configer loads and saves config.toml in a resolved .tracenotes/ directory.
type Configer struct {
	targetPath string
}

// NewConfiger resolves the configuration directory, preferring override.
// When no directory resolves, loads return defaults and saves fail.
func NewConfiger(override string) (*Configer, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	c := &Configer{}
	if dir == "" {
		return c, nil
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	c.targetPath = path
	return c, nil
}

// ValidConfigKeys returns every supported key in TOML section order.
func ValidConfigKeys() []string {
	return append([]string(nil), configKeyOrder...)
}

// IsValidConfigKey reports whether key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// GetTarget returns the config.toml path, or "" when no directory resolved.
func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig reads config.toml. A missing file yields NewDefaultConfig(); a
// present one has its empty fields filled from the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewDefaultConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults copies every default value into the keys cfg leaves empty.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()
	for _, key := range configKeyOrder {
		info := configKeys[key]
		if info.get(cfg) != "" {
			continue
		}
		if v := info.get(defaults); v != "" {
			// Defaults always pass validation.
			_ = info.set(cfg, v)
		}
	}
}

// SaveConfig writes cfg to config.toml in the target .tracenotes/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}
	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue validates and stores value under key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, err := lookupKey(key)
	if err != nil {
		return err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := info.set(cfg, value); err != nil {
		return err
	}
	return c.SaveConfig(cfg)
}

// GetConfigValue returns the effective value of key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, err := lookupKey(key)
	if err != nil {
		return "", err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return info.get(cfg), nil
}

func lookupKey(key string) (configKeyInfo, error) {
	info, ok := configKeys[key]
	if !ok {
		return configKeyInfo{}, fmt.Errorf("unknown config key: %q", key)
	}
	return info, nil
}

// ParseConfigTOML decodes raw TOML into a Config without applying defaults.
// A version other than CurrentV is rejected.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	return cfg, nil
}
