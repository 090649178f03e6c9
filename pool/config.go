// Package pool is the worker-process side of capsule distribution: the
// capsule.toml configuration, the serializer selection consulted by pool
// coordinators, the framed job protocol, and the executor that applies
// reconstructed functions inside a worker.
package pool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Serializer names selectable through configuration.
const (
	// SerializerCapsule is the full engine: dynamic functions, classes,
	// and enums travel by value.
	SerializerCapsule = "capsule"
	// SerializerWire is the bare backend: reference-importable objects
	// and plain data only.
	SerializerWire = "wire"
)

// EnvSerializer overrides the configured serializer when set.
const EnvSerializer = "CAPSULE_SERIALIZER"

// Config represents a capsule.toml worker configuration.
type Config struct {
	Pool PoolConfig `toml:"pool"`
	Log  LogConfig  `toml:"log"`

	// Dir is the directory containing the capsule.toml file (set at
	// load time).
	Dir string `toml:"-"`
}

// PoolConfig configures the worker pool side.
type PoolConfig struct {
	Serializer string `toml:"serializer"`
	Workers    int    `toml:"workers"`
	Database   string `toml:"database"` // capsule cache path, empty disables
	MaxFrame   int    `toml:"max-frame"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Load parses a capsule.toml file from the given directory and applies
// defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "capsule.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pool: cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("pool: parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("pool: cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()

	if c.Pool.Serializer != SerializerCapsule && c.Pool.Serializer != SerializerWire {
		return nil, fmt.Errorf("pool: unknown serializer %q in %s", c.Pool.Serializer, path)
	}
	return &c, nil
}

// Default returns the configuration used when no capsule.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Pool.Serializer == "" {
		c.Pool.Serializer = SerializerCapsule
	}
	if c.Pool.Workers <= 0 {
		c.Pool.Workers = 1
	}
	if c.Pool.MaxFrame <= 0 {
		c.Pool.MaxFrame = 64 << 20
	}
}

// EffectiveSerializer resolves the serializer to use: the environment
// variable wins over the file, the file over the default.
func (c *Config) EffectiveSerializer() string {
	if env := os.Getenv(EnvSerializer); env == SerializerCapsule || env == SerializerWire {
		return env
	}
	return c.Pool.Serializer
}
