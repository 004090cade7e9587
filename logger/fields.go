package logger

import (
	"log/slog"
	"time"
)

// Field helpers for structured logging
var (
	String = slog.String
	Int    = slog.Int
	Int64  = slog.Int64
	Bool   = slog.Bool
	Time   = slog.Time
	Any    = slog.Any

	Duration = func(key string, d time.Duration) slog.Attr {
		return slog.String(key, d.String())
	}

	ErrorField = func(err error) slog.Attr {
		if err == nil {
			return slog.String("error", "<nil>")
		}
		return slog.String("error", err.Error())
	}

	Component = func(name string) slog.Attr {
		return slog.String("component", name)
	}

	Operation = func(name string) slog.Attr {
		return slog.String("operation", name)
	}

	PoolKey = func(key string) slog.Attr {
		return slog.String("pool_key", key)
	}

	ConnID = func(id string) slog.Attr {
		return slog.String("conn_id", id)
	}
)
