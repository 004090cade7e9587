package pgxdriver

import (
	"context"

	"github.com/guileen/pglitepool/pool"
	"github.com/jackc/pgx/v5"
)

// Conn is a pool.Conn backed by a single *pgx.Conn
type Conn struct {
	conn     *pgx.Conn
	query    string
	identity pool.Identity
}

// IsValid pings the server, or runs the validation query when one is configured
func (c *Conn) IsValid(ctx context.Context) (bool, error) {
	if c.conn.IsClosed() {
		return false, nil
	}
	if c.query == "" {
		if err := c.conn.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := c.conn.Exec(ctx, c.query); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Conn) Identity() pool.Identity {
	return c.identity
}

func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// PgxConn exposes the driver connection for queries
func (c *Conn) PgxConn() *pgx.Conn {
	return c.conn
}

// FromHandle returns the *pgx.Conn behind a pool handle
func FromHandle(h *pool.Handle) (*pgx.Conn, bool) {
	if h == nil {
		return nil, false
	}
	c, ok := h.Conn().(*Conn)
	if !ok {
		return nil, false
	}
	return c.conn, true
}
