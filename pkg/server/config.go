package server

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is read from a TOML file. Device table keys are canonical
// lower-case MAC addresses:
//
//	bind_address = "0.0.0.0:33333"
//	secret = "secret"
//	program = "default.bin"
//
//	[api]
//	enabled = true
//	bind_address = "127.0.0.1:33334"
//
//	[devices."aa:bb:cc:dd:ee:ff"]
//	secret = "other"
//	program = "special.bin"
type Config struct {
	BindAddress string                  `toml:"bind_address"`
	Secret      string                  `toml:"secret"`
	Program     string                  `toml:"program"`
	API         APIConfig               `toml:"api"`
	Devices     map[string]DeviceConfig `toml:"devices"`
}

type APIConfig struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
}

type DeviceConfig struct {
	Secret  string `toml:"secret"`
	Program string `toml:"program"`
}

// LoadConfig parses a config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0:33333"
	}
	if c.Secret == "" {
		c.Secret = "secret"
	}
	if c.API.BindAddress == "" {
		c.API.BindAddress = "127.0.0.1:33334"
	}
}
