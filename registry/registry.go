// Package registry maps string keys to pools and routes released connections back to the
// pool that issued them.
//
// A Registry is an ordinary value: the application builds one at startup and passes it to
// whatever needs pool lookup. Several registries can live in one process.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/guileen/pglitepool/logger"
	"github.com/guileen/pglitepool/pool"
)

// DefaultKey is the key used by RegisterDefault and GetDefaultConnection
const DefaultKey = "default"

// Registry is a directory of pools keyed by name.
type Registry struct {
	mu     sync.RWMutex
	pools  map[string]*pool.Pool
	keys   map[*pool.Pool]string
	owners map[string]string // fingerprint -> key
	log    *slog.Logger
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		pools:  make(map[string]*pool.Pool),
		keys:   make(map[*pool.Pool]string),
		owners: make(map[string]string),
		log:    logger.With(logger.Component("registry")),
	}
}

// Register constructs p, checks that it can vend a connection and stores it under key.
// The probe connection's fingerprint is recorded for Owner lookups.
func (r *Registry) Register(ctx context.Context, key string, p *pool.Pool) error {
	if p == nil {
		return pool.Errorf(pool.ErrCodeRegistration, "register", "cannot register a nil pool under key %q", key)
	}
	if err := r.checkAvailable(key, p); err != nil {
		return err
	}

	ctx = logger.WithPoolKey(ctx, key)

	if err := p.Construct(ctx); err != nil {
		return pool.Wrap(err, pool.ErrCodeRegistration, "register", "could not register pool under key "+key)
	}

	probe, err := p.Acquire(ctx)
	if err != nil {
		return pool.Wrap(err, pool.ErrCodeRegistration, "register", "could not register pool under key "+key)
	}
	fingerprint := probe.Identity().String()
	if err := p.Release(probe); err != nil {
		return pool.Wrap(err, pool.ErrCodeRegistration, "register", "could not register pool under key "+key)
	}

	r.mu.Lock()
	// Construct ran unlocked, so the key may have been taken meanwhile.
	if _, exists := r.pools[key]; exists {
		_, live := r.keys[p]
		r.mu.Unlock()
		if !live {
			p.Deconstruct(ctx)
		}
		return duplicateKey(key)
	}
	if other, exists := r.keys[p]; exists {
		r.mu.Unlock()
		return alreadyRegistered(key, other)
	}
	defer r.mu.Unlock()

	if previous, collides := r.owners[fingerprint]; collides {
		r.log.WarnContext(ctx, "pools share a connection fingerprint",
			logger.String("fingerprint", fingerprint), logger.String("existing_key", previous))
	} else {
		r.owners[fingerprint] = key
	}
	r.pools[key] = p
	r.keys[p] = key

	r.log.InfoContext(ctx, "pool registered",
		logger.String("target", p.Target().String()), logger.Int("size", p.Size()))
	return nil
}

// RegisterDefault registers p under DefaultKey
func (r *Registry) RegisterDefault(ctx context.Context, p *pool.Pool) error {
	return r.Register(ctx, DefaultKey, p)
}

// Pool returns the pool registered under key
func (r *Registry) Pool(key string) (*pool.Pool, error) {
	r.mu.RLock()
	p, ok := r.pools[key]
	r.mu.RUnlock()

	if !ok {
		return nil, pool.Errorf(pool.ErrCodeUnknownPool, "lookup", "no pool registered under key %q", key)
	}
	return p, nil
}

// GetConnection acquires a connection from the pool registered under key
func (r *Registry) GetConnection(ctx context.Context, key string) (*pool.Handle, error) {
	p, err := r.Pool(key)
	if err != nil {
		return nil, err
	}
	return p.Acquire(logger.WithPoolKey(ctx, key))
}

// GetDefaultConnection acquires a connection from the default pool
func (r *Registry) GetDefaultConnection(ctx context.Context) (*pool.Handle, error) {
	return r.GetConnection(ctx, DefaultKey)
}

// Release returns h to the pool that issued it. Handles from pools this registry does not
// know, and failures of the owning pool's Release, are logged and dropped.
func (r *Registry) Release(h *pool.Handle) {
	if h == nil {
		r.log.Debug("dropping release of nil connection")
		return
	}

	owner := h.Pool()
	r.mu.RLock()
	key, ok := r.keys[owner]
	r.mu.RUnlock()

	if !ok {
		r.log.Warn("dropping release of connection from unregistered pool",
			logger.ConnID(h.ID()), logger.String("fingerprint", h.Identity().String()))
		return
	}

	if err := owner.Release(h); err != nil {
		r.log.Warn("release failed", logger.PoolKey(key), logger.ConnID(h.ID()), logger.ErrorField(err))
	}
}

// Owner returns the key of the first pool registered with the given fingerprint
func (r *Registry) Owner(fingerprint string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.owners[fingerprint]
	return key, ok
}

// TestConnections runs Test on every registered pool. Every pool is tested even when an
// earlier one fails; the failures are joined.
func (r *Registry) TestConnections(ctx context.Context) error {
	var errs []error
	for key, p := range r.snapshotPools() {
		if err := p.Test(logger.WithPoolKey(ctx, key)); err != nil {
			r.log.WarnContext(ctx, "pool health check failed", logger.PoolKey(key), logger.ErrorField(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys returns the registered keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.pools))
	for key := range r.pools {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the statistics of every registered pool by key
func (r *Registry) Snapshot() map[string]pool.Stats {
	pools := r.snapshotPools()
	out := make(map[string]pool.Stats, len(pools))
	for key, p := range pools {
		out[key] = p.Stats()
	}
	return out
}

func (r *Registry) snapshotPools() map[string]*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*pool.Pool, len(r.pools))
	for key, p := range r.pools {
		out[key] = p
	}
	return out
}

func (r *Registry) checkAvailable(key string, p *pool.Pool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.pools[key]; exists {
		return duplicateKey(key)
	}
	if other, exists := r.keys[p]; exists {
		return alreadyRegistered(key, other)
	}
	return nil
}

func duplicateKey(key string) error {
	return pool.Errorf(pool.ErrCodeDuplicateKey, "register", "pool is already registered with key %q", key)
}

func alreadyRegistered(key, other string) error {
	return pool.Errorf(pool.ErrCodeRegistration, "register",
		"cannot register pool under key %q, it is already registered under %q", key, other)
}
