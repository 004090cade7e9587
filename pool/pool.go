package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guileen/pglitepool/logger"
)

// Pool manages a bounded set of connections to one target.
//
// All methods are safe for concurrent use. Slow work (opening a connection, probing one)
// happens outside the lock; the slot it occupies is reserved so the capacity ceiling holds
// while the lock is released. Deconstruct bumps a generation counter, and work that started
// under an older generation closes its connections instead of putting them back.
type Pool struct {
	target  Target
	factory ConnectionFactory
	log     *slog.Logger

	mu         sync.Mutex
	config     PoolConfig
	available  []*Handle
	inUse      map[*Handle]struct{}
	reserved   int // slots held by in-flight opens and probes
	generation uint64

	stats counters
}

type counters struct {
	hits             uint64
	misses           uint64
	exhausted        uint64
	opened           uint64
	closed           uint64
	healthChecks     uint64
	failedProbes     uint64
	connectionErrors uint64
}

// NewPool creates an unconstructed pool. No connection is opened until Construct or Acquire.
func NewPool(target Target, factory ConnectionFactory, config PoolConfig) *Pool {
	if config.ValidationTimeout <= 0 {
		config.ValidationTimeout = DefaultValidationTimeout
	}
	return &Pool{
		target:  target,
		factory: factory,
		config:  config,
		inUse:   make(map[*Handle]struct{}),
		log:     logger.With(logger.Component("pool"), logger.String("target", target.String())),
	}
}

// Target returns the immutable identity of the pool
func (p *Pool) Target() Target {
	return p.target
}

// Config returns a copy of the current capacity settings
func (p *Pool) Config() PoolConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// SetInitialCapacity sets the number of connections Construct opens
func (p *Pool) SetInitialCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.InitialCapacity = n
}

// SetMinimumCapacity sets the floor Test replenishes to
func (p *Pool) SetMinimumCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.MinimumCapacity = n
}

// SetMaximumCapacity sets the hard ceiling on open connections
func (p *Pool) SetMaximumCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.MaximumCapacity = n
}

// SetValidationTimeout sets the bound on a single liveness probe
func (p *Pool) SetValidationTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultValidationTimeout
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.ValidationTimeout = d
}

// Construct validates the capacity settings and opens connections until the pool holds
// InitialCapacity of them. Connections opened before a factory failure stay in the pool.
func (p *Pool) Construct(ctx context.Context) error {
	p.mu.Lock()
	config, gen := p.config, p.generation
	p.mu.Unlock()

	if err := config.Validate(); err != nil {
		return err
	}

	if err := p.fill(ctx, "construct", config.InitialCapacity, gen); err != nil {
		return err
	}

	p.log.DebugContext(ctx, "pool constructed", logger.Int("size", p.Size()))
	return nil
}

// Acquire hands out a connection. An idle connection is probed first and replaced when it
// is dead; with no idle connection a new one is opened. When the pool is already at its
// maximum and nothing is idle, Acquire fails with ErrPoolExhausted without waiting.
// If ctx ends while an idle connection is probed, the connection goes back untouched and
// ctx.Err() is returned.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(p.available) == 0 && p.sizeLocked()+p.reserved >= p.config.MaximumCapacity {
		maximum := p.config.MaximumCapacity
		p.mu.Unlock()
		atomic.AddUint64(&p.stats.exhausted, 1)
		return nil, Errorf(ErrCodePoolExhausted, "acquire",
			"could not get connection from pool %s because it is full (maximum %d)", p.target, maximum)
	}

	var h *Handle
	if len(p.available) > 0 {
		h = p.available[0]
		p.available[0] = nil
		p.available = p.available[1:]
	}
	p.reserved++
	timeout := p.config.ValidationTimeout
	gen := p.generation
	p.mu.Unlock()

	if h != nil {
		v := Validate(ctx, h.conn, timeout)
		if err := ctx.Err(); err != nil {
			p.putBack(ctx, gen, 1, []*Handle{h})
			return nil, err
		}
		if v.OK() {
			atomic.AddUint64(&p.stats.hits, 1)
		} else {
			atomic.AddUint64(&p.stats.failedProbes, 1)
			p.log.WarnContext(ctx, "discarding dead connection",
				logger.ConnID(h.ID()), logger.String("validity", v.String()))
			p.closeHandle(ctx, h)
			h = nil
		}
	}

	if h == nil {
		fresh, err := p.open(ctx, "acquire")
		if err != nil {
			p.mu.Lock()
			p.reserved--
			p.mu.Unlock()
			return nil, err
		}
		atomic.AddUint64(&p.stats.misses, 1)
		h = fresh
	}

	h.touch()

	p.mu.Lock()
	p.reserved--
	if p.generation != gen {
		p.mu.Unlock()
		p.closeHandle(ctx, h)
		return nil, p.deconstructedError("acquire")
	}
	p.inUse[h] = struct{}{}
	p.mu.Unlock()

	return h, nil
}

// Release puts an in-use connection back into the available partition. The connection is
// not re-validated. Releasing a handle this pool does not have in use returns ErrNotInUse
// and changes nothing.
func (p *Pool) Release(h *Handle) error {
	if h == nil {
		return Errorf(ErrCodeNotInUse, "release", "cannot release a nil connection")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[h]; !ok {
		return Errorf(ErrCodeNotInUse, "release", "connection %s is not in use by pool %s", h.ID(), p.target)
	}
	delete(p.inUse, h)
	p.available = append(p.available, h)
	return nil
}

// Test probes every available connection, closes the dead ones and opens new connections
// until the pool holds at least MinimumCapacity, never more than MaximumCapacity. In-use
// connections are not touched. If ctx ends during the sweep, unprobed connections go back
// untouched and ctx.Err() is returned.
func (p *Pool) Test(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	atomic.AddUint64(&p.stats.healthChecks, 1)

	p.mu.Lock()
	candidates := p.available
	p.available = nil
	p.reserved += len(candidates)
	timeout := p.config.ValidationTimeout
	target := min(p.config.MinimumCapacity, p.config.MaximumCapacity)
	gen := p.generation
	p.mu.Unlock()

	kept := make([]*Handle, 0, len(candidates))
	for i, h := range candidates {
		if ctx.Err() != nil {
			kept = append(kept, candidates[i:]...)
			break
		}
		v := Validate(ctx, h.conn, timeout)
		if v.OK() || ctx.Err() != nil {
			kept = append(kept, h)
			continue
		}
		atomic.AddUint64(&p.stats.failedProbes, 1)
		p.log.WarnContext(ctx, "evicting dead connection",
			logger.ConnID(h.ID()), logger.String("validity", v.String()))
		p.closeHandle(ctx, h)
	}

	if !p.putBack(ctx, gen, len(candidates), kept) {
		return p.deconstructedError("test")
	}

	if evicted := len(candidates) - len(kept); evicted > 0 {
		p.log.InfoContext(ctx, "connections evicted", logger.Int("evicted", evicted))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return p.fill(ctx, "test", target, gen)
}

// Deconstruct closes every connection the pool manages, in use or not, and empties both
// partitions. Close failures are logged and do not stop the sweep. The pool may be
// constructed again afterwards.
func (p *Pool) Deconstruct(ctx context.Context) {
	p.mu.Lock()
	p.generation++
	handles := make([]*Handle, 0, len(p.inUse)+len(p.available))
	for h := range p.inUse {
		handles = append(handles, h)
	}
	handles = append(handles, p.available...)
	p.inUse = make(map[*Handle]struct{})
	p.available = nil
	p.mu.Unlock()

	failed := 0
	for _, h := range handles {
		if err := p.closeHandle(ctx, h); err != nil {
			failed++
		}
	}

	p.log.InfoContext(ctx, "pool deconstructed",
		logger.Int("closed", len(handles)-failed), logger.Int("failed", failed))
}

// Size returns available + in use
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizeLocked()
}

// Available returns the number of idle connections
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// InUse returns the number of checked-out connections
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Holds reports whether h is currently in the available partition
func (p *Pool) Holds(h *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.available {
		if a == h {
			return true
		}
	}
	return false
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	available, inUse := len(p.available), len(p.inUse)
	p.mu.Unlock()

	return Stats{
		Available:        available,
		InUse:            inUse,
		Size:             available + inUse,
		Hits:             atomic.LoadUint64(&p.stats.hits),
		Misses:           atomic.LoadUint64(&p.stats.misses),
		Exhausted:        atomic.LoadUint64(&p.stats.exhausted),
		Opened:           atomic.LoadUint64(&p.stats.opened),
		Closed:           atomic.LoadUint64(&p.stats.closed),
		HealthChecks:     atomic.LoadUint64(&p.stats.healthChecks),
		FailedProbes:     atomic.LoadUint64(&p.stats.failedProbes),
		ConnectionErrors: atomic.LoadUint64(&p.stats.connectionErrors),
	}
}

func (p *Pool) sizeLocked() int {
	return len(p.available) + len(p.inUse)
}

// fill opens connections into the available partition until size reaches target. It stops
// once the pool has been deconstructed since gen.
func (p *Pool) fill(ctx context.Context, op string, target int, gen uint64) error {
	for {
		p.mu.Lock()
		if p.generation != gen {
			p.mu.Unlock()
			return p.deconstructedError(op)
		}
		if p.sizeLocked()+p.reserved >= target {
			p.mu.Unlock()
			return nil
		}
		p.reserved++
		p.mu.Unlock()

		h, err := p.open(ctx, op)

		p.mu.Lock()
		p.reserved--
		stale := p.generation != gen
		if err == nil && !stale {
			p.available = append(p.available, h)
		}
		p.mu.Unlock()

		if err != nil {
			return err
		}
		if stale {
			p.closeHandle(ctx, h)
			return p.deconstructedError(op)
		}
	}
}

// putBack returns handles to the front of the available partition and frees the reserved
// slots. When the pool was deconstructed since gen the handles are closed instead and
// putBack reports false.
func (p *Pool) putBack(ctx context.Context, gen uint64, reserved int, handles []*Handle) bool {
	p.mu.Lock()
	p.reserved -= reserved
	current := p.generation == gen
	if current {
		p.available = append(handles, p.available...)
	}
	p.mu.Unlock()

	if !current {
		for _, h := range handles {
			p.closeHandle(ctx, h)
		}
	}
	return current
}

func (p *Pool) deconstructedError(op string) error {
	return Errorf(ErrCodeConnection, op, "pool %s was deconstructed during %s", p.target, op)
}

func (p *Pool) open(ctx context.Context, op string) (*Handle, error) {
	conn, err := p.factory.CreateConnection(ctx, p.target)
	if err == nil && conn == nil {
		err = errors.New("factory returned a nil connection")
	}
	if err != nil {
		atomic.AddUint64(&p.stats.connectionErrors, 1)
		return nil, Wrap(err, ErrCodeConnection, op, "could not open connection to "+p.target.Address)
	}

	atomic.AddUint64(&p.stats.opened, 1)
	h := newHandle(p, conn)
	p.log.DebugContext(ctx, "connection opened", logger.ConnID(h.ID()))
	return h, nil
}

func (p *Pool) closeHandle(ctx context.Context, h *Handle) error {
	if h.IsClosed() {
		return nil
	}
	if err := h.forceClose(ctx); err != nil {
		p.log.WarnContext(ctx, "failed to close connection",
			logger.ConnID(h.ID()), logger.ErrorField(err))
		return err
	}
	atomic.AddUint64(&p.stats.closed, 1)
	return nil
}
