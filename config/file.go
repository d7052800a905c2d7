package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// FromFile loads a TOML configuration file, applies defaults and validates
// the result.
func FromFile(path string) (*Config, error) {
	c := &Config{}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("config file decode: %w", err)
	}

	c.SetDefault()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return c, nil
}
