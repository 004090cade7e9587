package config

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntProperty(t *testing.T) {
	src := MapSource{"a": "42", "b": " 7 ", "c": "seven"}

	n, err := IntProperty(src, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = IntProperty(src, "b", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = IntProperty(src, "missing", DefaultValidationTimeoutMS)
	require.NoError(t, err)
	assert.Equal(t, 5000, n)

	_, err = IntProperty(src, "c", 1)
	assert.Error(t, err)
}

func TestEnvSource(t *testing.T) {
	src := EnvSource{Prefix: "pglitepool"}
	assert.Equal(t, "PGLITEPOOL_POOL_TEST_CONNECTION_TIMEOUT", src.VarName(TestConnectionTimeoutKey))
	assert.Equal(t, "POOL_DEFAULT_ADDRESS", EnvSource{}.VarName("pool.default.address"))

	t.Setenv("PGLITEPOOL_POOL_TEST_CONNECTION_TIMEOUT", "1500")
	n, err := IntProperty(src, TestConnectionTimeoutKey, DefaultValidationTimeoutMS)
	require.NoError(t, err)
	assert.Equal(t, 1500, n)
}

func TestChain(t *testing.T) {
	chain := Chain{nil, MapSource{"x": "first"}, MapSource{"x": "second", "y": "only"}}

	v, ok, err := chain.Lookup("x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	v, _, _ = chain.Lookup("y")
	assert.Equal(t, "only", v)

	_, ok, _ = chain.Lookup("z")
	assert.False(t, ok)
}

func TestApplyProperties(t *testing.T) {
	spec := PoolSpec{Key: "default", Address: "postgres://db1/app", User: "app", MaximumCapacity: 5}
	src := MapSource{
		"pool.default.address":          "postgres://db9/app",
		"pool.default.password":         "hunter2",
		"pool.default.initial_capacity": "2",
		"pool.default.maximum_capacity": "8",
		"pool.other.maximum_capacity":   "99",
		TestConnectionTimeoutKey:        "750",
	}

	require.NoError(t, spec.ApplyProperties(src))
	assert.Equal(t, "postgres://db9/app", spec.Address)
	assert.Equal(t, "app", spec.User)
	assert.Equal(t, "hunter2", spec.Password)
	assert.Equal(t, 2, spec.InitialCapacity)
	assert.Equal(t, 8, spec.MaximumCapacity)
	assert.Equal(t, 750, spec.ValidationTimeoutMS)
}

func TestApplyPropertiesDefaultsTimeout(t *testing.T) {
	spec := PoolSpec{Key: "default"}
	require.NoError(t, spec.ApplyProperties(MapSource{}))
	assert.Equal(t, DefaultValidationTimeoutMS, spec.ValidationTimeoutMS)

	explicit := PoolSpec{Key: "default", ValidationTimeoutMS: 100}
	require.NoError(t, explicit.ApplyProperties(MapSource{TestConnectionTimeoutKey: "900"}))
	assert.Equal(t, 100, explicit.ValidationTimeoutMS)
}

func TestApplyPropertiesLegacyTimeoutKey(t *testing.T) {
	legacy := PoolSpec{Key: "default"}
	require.NoError(t, legacy.ApplyProperties(MapSource{LegacyTestConnectionTimeoutKey: "1500"}))
	assert.Equal(t, 1500, legacy.ValidationTimeoutMS)

	both := PoolSpec{Key: "default"}
	require.NoError(t, both.ApplyProperties(MapSource{
		LegacyTestConnectionTimeoutKey: "1500",
		TestConnectionTimeoutKey:       "700",
	}))
	assert.Equal(t, 700, both.ValidationTimeoutMS)
}

func TestApplyPropertiesRejectsBadInt(t *testing.T) {
	f := Default()
	f.Pools = []PoolSpec{{Key: "default"}}
	err := f.ApplyProperties(MapSource{"pool.default.minimum_capacity": "many"})
	assert.Error(t, err)
}

func openMemPebble(t *testing.T) *pebble.DB {
	t.Helper()
	db, err := pebble.Open("props", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPebbleSource(t *testing.T) {
	src := NewPebbleSource(openMemPebble(t))

	_, ok, err := src.Lookup("pool.default.address")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, src.Set("pool.default.address", "postgres://kv/app"))
	require.NoError(t, src.Set(TestConnectionTimeoutKey, "1200"))

	spec := PoolSpec{Key: "default"}
	require.NoError(t, spec.ApplyProperties(src))
	assert.Equal(t, "postgres://kv/app", spec.Address)
	assert.Equal(t, 1200, spec.ValidationTimeoutMS)

	require.NoError(t, src.Delete("pool.default.address"))
	_, ok, err = src.Lookup("pool.default.address")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, src.Close())
	_, _, err = src.Lookup(TestConnectionTimeoutKey)
	assert.ErrorIs(t, err, pebble.ErrClosed)
	assert.ErrorIs(t, src.Set("k", "v"), pebble.ErrClosed)
}

func TestOpenPebbleSource(t *testing.T) {
	src, err := OpenPebbleSource("props", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)

	require.NoError(t, src.Set("pool.reports.user", "reporter"))
	v, ok, err := src.Lookup("pool.reports.user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "reporter", v)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
