// Package pgxdriver opens PostgreSQL connections for a pool through pgx.
package pgxdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/guileen/pglitepool/pool"
	"github.com/jackc/pgx/v5"
)

// Options tune the connections a Factory opens
type Options struct {
	// ValidationQuery replaces the protocol-level ping used by IsValid. Must be a single SELECT.
	ValidationQuery string
	// ConnectTimeout bounds the dial when the context carries no deadline.
	ConnectTimeout time.Duration
}

// Factory implements pool.ConnectionFactory on top of pgx.
type Factory struct {
	opts Options
}

// NewFactory creates a factory, rejecting a validation query that is not a single SELECT
func NewFactory(opts Options) (*Factory, error) {
	if opts.ValidationQuery != "" {
		if err := CheckValidationQuery(opts.ValidationQuery); err != nil {
			return nil, err
		}
	}
	return &Factory{opts: opts}, nil
}

// CreateConnection dials target.Address as target.User
func (f *Factory) CreateConnection(ctx context.Context, target pool.Target) (pool.Conn, error) {
	config, err := ParseConfig(target)
	if err != nil {
		return nil, err
	}
	if f.opts.ConnectTimeout > 0 {
		config.ConnectTimeout = f.opts.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", IdentityOf(config).Address, err)
	}

	return &Conn{
		conn:     conn,
		query:    f.opts.ValidationQuery,
		identity: IdentityOf(config),
	}, nil
}

// ParseConfig turns a pool target into a pgx connection config. The address may be a URL or
// a keyword/value DSN; a non-empty User or Password on the target overrides the one in it.
func ParseConfig(target pool.Target) (*pgx.ConnConfig, error) {
	config, err := pgx.ParseConfig(target.Address)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	if target.User != "" {
		config.User = target.User
	}
	if target.Password != "" {
		config.Password = target.Password
	}
	return config, nil
}

// IdentityOf derives the connection fingerprint from a pgx config
func IdentityOf(config *pgx.ConnConfig) pool.Identity {
	return pool.Identity{
		Address: fmt.Sprintf("postgres://%s:%d/%s", config.Host, config.Port, config.Database),
		User:    config.User,
	}
}
