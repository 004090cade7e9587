// Package config loads pool definitions from TOML files and key/value property sources.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/guileen/pglitepool/pool"
	"github.com/pelletier/go-toml/v2"
)

// Default configuration values
const (
	DefaultAdminListen         = "127.0.0.1:8085"
	DefaultTestIntervalSeconds = 60
	DefaultValidationTimeoutMS = 5000
)

// File is the on-disk configuration of a pool daemon.
type File struct {
	Admin AdminConfig `toml:"admin"`
	Pools []PoolSpec  `toml:"pool"`
}

// AdminConfig controls the admin HTTP listener and the health-check schedule.
type AdminConfig struct {
	// Listen is the address the admin API binds to
	Listen string `toml:"listen"`
	// TestIntervalSeconds is how often every pool is health-checked; 0 disables it
	TestIntervalSeconds int `toml:"test_interval_seconds"`
}

// PoolSpec describes one pool and the key it is registered under.
type PoolSpec struct {
	Key                 string `toml:"key"`
	Address             string `toml:"address"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	InitialCapacity     int    `toml:"initial_capacity"`
	MinimumCapacity     int    `toml:"minimum_capacity"`
	MaximumCapacity     int    `toml:"maximum_capacity"`
	ValidationTimeoutMS int    `toml:"validation_timeout_ms"`
	ValidationQuery     string `toml:"validation_query,omitempty"`
}

// Default returns a File with no pools and default admin settings
func Default() *File {
	return &File{
		Admin: AdminConfig{
			Listen:              DefaultAdminListen,
			TestIntervalSeconds: DefaultTestIntervalSeconds,
		},
	}
}

// LoadFile reads configuration from a TOML file. A missing file yields the defaults.
func LoadFile(path string) (*File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Marshal encodes the configuration as TOML
func (f *File) Marshal() ([]byte, error) {
	data, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// Validate checks the configuration for errors.
func (f *File) Validate() error {
	if f.Admin.TestIntervalSeconds < 0 {
		return errors.New("admin.test_interval_seconds cannot be negative")
	}

	seen := make(map[string]bool, len(f.Pools))
	for i, spec := range f.Pools {
		if spec.Key == "" {
			return fmt.Errorf("pool[%d].key is required", i)
		}
		if seen[spec.Key] {
			return fmt.Errorf("pool[%d]: duplicate key %q", i, spec.Key)
		}
		seen[spec.Key] = true

		if err := spec.Validate(); err != nil {
			return fmt.Errorf("pool %q: %w", spec.Key, err)
		}
	}
	return nil
}

// ApplyProperties overrides every pool spec from src
func (f *File) ApplyProperties(src Source) error {
	for i := range f.Pools {
		if err := f.Pools[i].ApplyProperties(src); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single pool spec
func (s PoolSpec) Validate() error {
	if s.Address == "" {
		return errors.New("address is required")
	}
	if s.ValidationTimeoutMS < 0 {
		return errors.New("validation_timeout_ms cannot be negative")
	}
	return s.PoolConfig().Validate()
}

// Target returns the pool identity described by the spec
func (s PoolSpec) Target() pool.Target {
	return pool.Target{Address: s.Address, User: s.User, Password: s.Password}
}

// PoolConfig returns the capacity settings described by the spec
func (s PoolSpec) PoolConfig() pool.PoolConfig {
	timeout := pool.DefaultValidationTimeout
	if s.ValidationTimeoutMS > 0 {
		timeout = time.Duration(s.ValidationTimeoutMS) * time.Millisecond
	}
	return pool.PoolConfig{
		InitialCapacity:   s.InitialCapacity,
		MinimumCapacity:   s.MinimumCapacity,
		MaximumCapacity:   s.MaximumCapacity,
		ValidationTimeout: timeout,
	}
}
