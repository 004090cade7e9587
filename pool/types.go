// Package pool implements a bounded, synchronous pool of database connections.
//
// A Pool owns two disjoint partitions of connections: available ones waiting to be handed out and
// in-use ones checked out by callers. Acquire never waits for capacity; when the pool is full it
// fails immediately with ErrPoolExhausted so callers can apply their own retry policy.
package pool

import (
	"context"
	"fmt"
	"time"
)

// DefaultValidationTimeout bounds a single liveness probe
const DefaultValidationTimeout = 5000 * time.Millisecond

// Target is the immutable identity of a pool: where it connects and as whom.
type Target struct {
	Address  string
	User     string
	Password string
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.User, t.Address)
}

// Identity is the (address, principal) pair a connection reports about itself.
type Identity struct {
	Address string
	User    string
}

// String returns the fingerprint form "address;user".
func (id Identity) String() string {
	return id.Address + ";" + id.User
}

// Conn is a physical database connection as seen by the pool.
type Conn interface {
	// IsValid probes the connection. It must honour ctx's deadline.
	IsValid(ctx context.Context) (bool, error)
	// Identity reports the address and authenticated user of the connection.
	Identity() Identity
	Close(ctx context.Context) error
}

// ConnectionFactory opens new physical connections, typically backed by a database driver.
type ConnectionFactory interface {
	CreateConnection(ctx context.Context, target Target) (Conn, error)
}

// FactoryFunc adapts a plain function to ConnectionFactory.
type FactoryFunc func(ctx context.Context, target Target) (Conn, error)

func (f FactoryFunc) CreateConnection(ctx context.Context, target Target) (Conn, error) {
	return f(ctx, target)
}

// PoolConfig holds the mutable capacity settings of a pool
type PoolConfig struct {
	InitialCapacity   int           // connections opened by Construct
	MinimumCapacity   int           // floor maintained by Test
	MaximumCapacity   int           // hard ceiling on available + in use
	ValidationTimeout time.Duration // bound for a single liveness probe
}

// DefaultPoolConfig returns a single-connection configuration with the default probe timeout
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		InitialCapacity:   1,
		MinimumCapacity:   1,
		MaximumCapacity:   1,
		ValidationTimeout: DefaultValidationTimeout,
	}
}

// Validate checks 0 <= minimum <= initial <= maximum and maximum > 0.
func (c PoolConfig) Validate() error {
	if c.InitialCapacity < 0 {
		return newConfigurationError("the initial capacity cannot be negative")
	}
	if c.MinimumCapacity < 0 {
		return newConfigurationError("the minimum capacity cannot be negative")
	}
	if c.MaximumCapacity <= 0 {
		return newConfigurationError("the maximum capacity must be positive")
	}
	if c.InitialCapacity < c.MinimumCapacity {
		return newConfigurationError("the initial capacity (%d) cannot be less than the minimum capacity (%d)",
			c.InitialCapacity, c.MinimumCapacity)
	}
	if c.MaximumCapacity < c.InitialCapacity {
		return newConfigurationError("the maximum capacity (%d) cannot be less than the initial capacity (%d)",
			c.MaximumCapacity, c.InitialCapacity)
	}
	return nil
}

// Stats contains statistics about the pool
type Stats struct {
	Available int // idle connections
	InUse     int // checked-out connections
	Size      int // Available + InUse

	Hits             uint64 // acquires served from the available partition
	Misses           uint64 // acquires that opened a fresh connection
	Exhausted        uint64 // acquires rejected because the pool was full
	Opened           uint64 // physical connections opened
	Closed           uint64 // physical connections closed by the pool
	HealthChecks     uint64 // calls to Test
	FailedProbes     uint64 // probes that found a connection invalid
	ConnectionErrors uint64 // factory failures
}
