package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TestConnectionTimeoutKey is the global default for the probe timeout, in milliseconds.
// LegacyTestConnectionTimeoutKey is still read when it is absent.
const (
	TestConnectionTimeoutKey       = "pool.test.connection.timeout"
	LegacyTestConnectionTimeoutKey = "jdbc.test.connection.timeout"
)

// Source is a flat key/value property store.
type Source interface {
	// Lookup returns the value stored under key and whether it exists.
	Lookup(key string) (string, bool, error)
}

// MapSource is an in-memory Source
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// EnvSource reads properties from environment variables. The key "pool.default.address"
// with prefix "PGLITEPOOL" is read from PGLITEPOOL_POOL_DEFAULT_ADDRESS.
type EnvSource struct {
	Prefix string
}

func (e EnvSource) Lookup(key string) (string, bool, error) {
	v, ok := os.LookupEnv(e.VarName(key))
	return v, ok, nil
}

// VarName returns the environment variable name for key
func (e EnvSource) VarName(key string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if e.Prefix == "" {
		return name
	}
	return strings.ToUpper(e.Prefix) + "_" + name
}

// Chain consults each source in order; the first hit wins.
type Chain []Source

func (c Chain) Lookup(key string) (string, bool, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		v, ok, err := src.Lookup(key)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return "", false, nil
}

// IntProperty looks up an integer property, returning def when it is absent
func IntProperty(src Source, key string, def int) (int, error) {
	v, ok, err := src.Lookup(key)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", key, err)
	}
	return n, nil
}

// StringProperty looks up a string property, returning def when it is absent
func StringProperty(src Source, key, def string) (string, error) {
	v, ok, err := src.Lookup(key)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// PropertyKey returns the property key for a field of the pool registered under poolKey
func PropertyKey(poolKey, field string) string {
	return "pool." + poolKey + "." + field
}

// ApplyProperties overrides the spec's fields from pool.<key>.<field> properties. A spec
// without its own validation timeout takes pool.test.connection.timeout, then
// jdbc.test.connection.timeout, default 5000ms.
func (s *PoolSpec) ApplyProperties(src Source) error {
	var err error

	textFields := []struct {
		field string
		dst   *string
	}{
		{"address", &s.Address},
		{"user", &s.User},
		{"password", &s.Password},
		{"validation_query", &s.ValidationQuery},
	}
	for _, f := range textFields {
		if *f.dst, err = StringProperty(src, PropertyKey(s.Key, f.field), *f.dst); err != nil {
			return err
		}
	}

	intFields := []struct {
		field string
		dst   *int
	}{
		{"initial_capacity", &s.InitialCapacity},
		{"minimum_capacity", &s.MinimumCapacity},
		{"maximum_capacity", &s.MaximumCapacity},
		{"validation_timeout_ms", &s.ValidationTimeoutMS},
	}
	for _, f := range intFields {
		if *f.dst, err = IntProperty(src, PropertyKey(s.Key, f.field), *f.dst); err != nil {
			return err
		}
	}

	if s.ValidationTimeoutMS == 0 {
		legacy, err := IntProperty(src, LegacyTestConnectionTimeoutKey, DefaultValidationTimeoutMS)
		if err != nil {
			return err
		}
		if s.ValidationTimeoutMS, err = IntProperty(src, TestConnectionTimeoutKey, legacy); err != nil {
			return err
		}
	}
	return nil
}
