package logger

import (
	"context"
)

// ContextKey is used for context values
type ContextKey string

const (
	// PoolKeyKey is the context key for the registry key of a pool
	PoolKeyKey ContextKey = "pool_key"
	// ConnIDKey is the context key for a connection handle id
	ConnIDKey ContextKey = "conn_id"
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
)

// WithContextValue adds a value to the context for logging
func WithContextValue(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithPoolKey tags ctx with a pool key
func WithPoolKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, PoolKeyKey, key)
}

// ExtractContextValues extracts logging-relevant values from context
func ExtractContextValues(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var args []any

	if poolKey, ok := ctx.Value(PoolKeyKey).(string); ok {
		args = append(args, "pool_key", poolKey)
	}

	if connID, ok := ctx.Value(ConnIDKey).(string); ok {
		args = append(args, "conn_id", connID)
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		args = append(args, "request_id", requestID)
	}

	return args
}
