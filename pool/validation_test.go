package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guileen/pglitepool/pool"
	"github.com/guileen/pglitepool/pool/pooltest"
	"github.com/stretchr/testify/assert"
)

// stallingConn blocks its probe until the deadline passes
type stallingConn struct{}

func (stallingConn) IsValid(ctx context.Context) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (stallingConn) Identity() pool.Identity         { return pool.Identity{} }
func (stallingConn) Close(ctx context.Context) error { return nil }

func TestValidate(t *testing.T) {
	ctx := context.Background()

	live := pooltest.NewMockConn("db:5432", "app")
	assert.Equal(t, pool.Valid, pool.Validate(ctx, live, time.Second))

	dead := pooltest.NewMockConn("db:5432", "app")
	dead.Kill()
	assert.Equal(t, pool.Invalid, pool.Validate(ctx, dead, time.Second))

	broken := pooltest.NewMockConn("db:5432", "app")
	broken.SetProbeError(errors.New("i/o timeout"))
	assert.Equal(t, pool.ProbeFailed, pool.Validate(ctx, broken, time.Second))

	assert.Equal(t, pool.Invalid, pool.Validate(ctx, nil, time.Second))
}

func TestValidateHonoursTimeout(t *testing.T) {
	start := time.Now()
	v := pool.Validate(context.Background(), stallingConn{}, 20*time.Millisecond)

	assert.Equal(t, pool.ProbeFailed, v)
	assert.False(t, v.OK())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestValidityString(t *testing.T) {
	assert.Equal(t, "valid", pool.Valid.String())
	assert.Equal(t, "invalid", pool.Invalid.String())
	assert.Equal(t, "probe_failed", pool.ProbeFailed.String())
	assert.Equal(t, "unknown", pool.Validity(42).String())
}

func TestPoolConfigValidate(t *testing.T) {
	assert.NoError(t, pool.DefaultPoolConfig().Validate())
	assert.NoError(t, pool.PoolConfig{InitialCapacity: 0, MinimumCapacity: 0, MaximumCapacity: 1}.Validate())

	err := pool.PoolConfig{InitialCapacity: 2, MinimumCapacity: 3, MaximumCapacity: 4}.Validate()
	assert.True(t, pool.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "minimum capacity")
}

func TestValidateIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	live := pooltest.NewMockConn("db:5432", "app")
	assert.Equal(t, pool.Valid, pool.Validate(ctx, live, time.Second))
}
