package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handle wraps one physical connection together with a back-reference to the pool that
// created it. The pool reference is used to route a release, it does not own the pool.
type Handle struct {
	id         uuid.UUID
	conn       Conn
	pool       *Pool
	identity   Identity
	createdAt  time.Time
	lastUsedAt time.Time
	closed     int32 // atomic flag
	mu         sync.RWMutex
}

func newHandle(p *Pool, conn Conn) *Handle {
	now := time.Now()
	return &Handle{
		id:         uuid.New(),
		conn:       conn,
		pool:       p,
		identity:   conn.Identity(),
		createdAt:  now,
		lastUsedAt: now,
	}
}

// ID returns the unique id of the handle
func (h *Handle) ID() string {
	return h.id.String()
}

// Conn returns the underlying driver connection. Callers type-assert it to the driver's type.
func (h *Handle) Conn() Conn {
	return h.conn
}

// Pool returns the pool that issued the handle
func (h *Handle) Pool() *Pool {
	return h.pool
}

// Identity returns the fingerprint captured when the connection was opened
func (h *Handle) Identity() Identity {
	return h.identity
}

// CreatedAt returns when the physical connection was opened
func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

// LastUsedAt returns when the handle was last acquired
func (h *Handle) LastUsedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastUsedAt
}

// IsClosed reports whether the pool has closed the underlying connection
func (h *Handle) IsClosed() bool {
	return atomic.LoadInt32(&h.closed) == 1
}

func (h *Handle) touch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastUsedAt = time.Now()
}

// forceClose closes the underlying connection once. Later calls are no-ops.
func (h *Handle) forceClose(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		return nil
	}
	return h.conn.Close(ctx)
}
