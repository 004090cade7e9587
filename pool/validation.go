package pool

import (
	"context"
	"time"
)

// Validity is the outcome of a liveness probe.
type Validity int

const (
	// Valid means the connection answered the probe.
	Valid Validity = iota
	// Invalid means the driver reported the connection as unusable.
	Invalid
	// ProbeFailed means the probe itself errored or timed out. Treated like Invalid.
	ProbeFailed
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case ProbeFailed:
		return "probe_failed"
	default:
		return "unknown"
	}
}

// OK reports whether the connection may be handed out
func (v Validity) OK() bool {
	return v == Valid
}

// Validate probes conn with a deadline of timeout. A non-positive timeout falls back
// to DefaultValidationTimeout. The probe is bounded by timeout only: cancelling ctx does
// not interrupt it, so callers check ctx themselves before trusting a failed result.
func Validate(ctx context.Context, conn Conn, timeout time.Duration) Validity {
	if conn == nil {
		return Invalid
	}
	if timeout <= 0 {
		timeout = DefaultValidationTimeout
	}

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	ok, err := conn.IsValid(probeCtx)
	switch {
	case err != nil:
		return ProbeFailed
	case probeCtx.Err() != nil:
		return ProbeFailed
	case !ok:
		return Invalid
	default:
		return Valid
	}
}
