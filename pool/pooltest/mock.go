// Package pooltest provides in-memory connections and factories for exercising pools in tests.
package pooltest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/guileen/pglitepool/pool"
)

// ErrMockDial is returned by MockFactory when it is configured to fail
var ErrMockDial = errors.New("mock dial failure")

// MockFactory implements pool.ConnectionFactory with in-memory connections.
type MockFactory struct {
	mu        sync.Mutex
	attempts  int
	failFirst int  // fail this many initial attempts
	failAfter int  // fail every attempt once this many connections were created; 0 disables
	failing   bool // fail every attempt
	conns     []*MockConn
}

// NewMockFactory creates a factory that always succeeds
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

// NewFailingMockFactory creates a factory whose first failCount attempts fail
func NewFailingMockFactory(failCount int) *MockFactory {
	return &MockFactory{failFirst: failCount}
}

// FailAfter makes every attempt fail once n connections have been created
func (f *MockFactory) FailAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = n
}

// SetFailing switches unconditional failure on or off
func (f *MockFactory) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// CreateConnection creates a mock connection for target
func (f *MockFactory) CreateConnection(ctx context.Context, target pool.Target) (pool.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failing || f.attempts <= f.failFirst || (f.failAfter > 0 && len(f.conns) >= f.failAfter) {
		return nil, fmt.Errorf("%w: attempt %d to %s", ErrMockDial, f.attempts, target.Address)
	}

	conn := &MockConn{
		identity: pool.Identity{Address: target.Address, User: target.User},
		seq:      len(f.conns) + 1,
	}
	f.conns = append(f.conns, conn)
	return conn, nil
}

// Attempts returns how many times CreateConnection was called
func (f *MockFactory) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Created returns every connection the factory handed out, oldest first
func (f *MockFactory) Created() []*MockConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockConn, len(f.conns))
	copy(out, f.conns)
	return out
}

// MockConn is an in-memory pool.Conn.
type MockConn struct {
	mu         sync.Mutex
	identity   pool.Identity
	seq        int
	closed     bool
	dead       bool
	probeErr   error
	closeErr   error
	probeCount int
}

// NewMockConn creates a standalone connection reporting the given identity
func NewMockConn(address, user string) *MockConn {
	return &MockConn{identity: pool.Identity{Address: address, User: user}}
}

func (c *MockConn) IsValid(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeCount++
	if c.probeErr != nil {
		return false, c.probeErr
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !c.closed && !c.dead, nil
}

func (c *MockConn) Identity() pool.Identity {
	return c.identity
}

func (c *MockConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

// Kill makes every later probe report the connection as invalid
func (c *MockConn) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
}

// SetProbeError makes every later probe fail with err
func (c *MockConn) SetProbeError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeErr = err
}

// SetCloseError makes Close return err, the connection is still marked closed
func (c *MockConn) SetCloseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// IsClosed reports whether Close was called
func (c *MockConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Probes returns how many times IsValid was called
func (c *MockConn) Probes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeCount
}

// Seq returns the 1-based creation order within its factory
func (c *MockConn) Seq() int {
	return c.seq
}
