package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guileen/pglitepool/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[admin]
listen = "127.0.0.1:9999"
test_interval_seconds = 30

[[pool]]
key = "default"
address = "postgres://db1:5432/app"
user = "app"
password = "secret"
initial_capacity = 3
minimum_capacity = 1
maximum_capacity = 5

[[pool]]
key = "2"
address = "postgres://db2:5432/reports"
user = "reporter"
initial_capacity = 1
minimum_capacity = 1
maximum_capacity = 2
validation_timeout_ms = 250
validation_query = "SELECT 1"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pglitepool.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9999", cfg.Admin.Listen)
	assert.Equal(t, 30, cfg.Admin.TestIntervalSeconds)
	require.Len(t, cfg.Pools, 2)

	def := cfg.Pools[0]
	assert.Equal(t, "default", def.Key)
	assert.Equal(t, pool.Target{Address: "postgres://db1:5432/app", User: "app", Password: "secret"}, def.Target())
	assert.Equal(t, pool.PoolConfig{
		InitialCapacity:   3,
		MinimumCapacity:   1,
		MaximumCapacity:   5,
		ValidationTimeout: pool.DefaultValidationTimeout,
	}, def.PoolConfig())

	reports := cfg.Pools[1]
	assert.Equal(t, 250*time.Millisecond, reports.PoolConfig().ValidationTimeout)
	assert.Equal(t, "SELECT 1", reports.ValidationQuery)
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nonexistent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileInvalidTOML(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "this is not [valid toml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	again, err := LoadFile(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestValidate(t *testing.T) {
	valid := PoolSpec{Key: "a", Address: "postgres://db/app", InitialCapacity: 1, MinimumCapacity: 0, MaximumCapacity: 1}

	cases := map[string]func(f *File){
		"missing key":       func(f *File) { f.Pools[0].Key = "" },
		"duplicate key":     func(f *File) { f.Pools = append(f.Pools, f.Pools[0]) },
		"missing address":   func(f *File) { f.Pools[0].Address = "" },
		"negative timeout":  func(f *File) { f.Pools[0].ValidationTimeoutMS = -1 },
		"bad capacities":    func(f *File) { f.Pools[0].MaximumCapacity = 0 },
		"negative interval": func(f *File) { f.Admin.TestIntervalSeconds = -5 },
		"initial below min": func(f *File) { f.Pools[0].MinimumCapacity = 2 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := Default()
			f.Pools = []PoolSpec{valid}
			require.NoError(t, f.Validate())

			mutate(f)
			assert.Error(t, f.Validate())
		})
	}

	f := Default()
	f.Pools = []PoolSpec{valid}
	f.Pools[0].MaximumCapacity = 0
	assert.True(t, pool.IsConfigurationError(f.Validate()))
}
