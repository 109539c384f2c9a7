// Package config loads memtrack configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NavarchProject/memtrack/pkg/device"
)

// Config is the root configuration for memtrack.
type Config struct {
	// Device selects the accelerator to monitor, e.g. "cuda:0" or
	// "amdgpu". Default: "cuda".
	Device string `yaml:"device,omitempty"`

	// PollRate is the sampling frequency in samples per second. Zero
	// or negative keeps monitoring baseline-only. Default: 8.
	PollRate float64 `yaml:"poll_rate,omitempty"`

	// Listen is the address for the Prometheus /metrics endpoint.
	// Empty disables the endpoint.
	Listen string `yaml:"listen,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device:   "cuda",
		PollRate: 8,
	}
}

// Load reads and validates a YAML config file. Fields absent from the
// file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if _, err := device.Parse(c.Device); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	return nil
}
