// Package dbguard bounds single durable-store operations with a deadline and
// one reconnect-and-retry cycle for connection-level failures.
package dbguard

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chedeval/progeval/pkg/logger"
	"github.com/chedeval/progeval/pkg/metrics"
)

// ErrTimeout is returned when an operation does not finish before its deadline.
var ErrTimeout = errors.New("query timed out")

const (
	maxAttempts    = 2
	fallbackTimeout = 5 * time.Second
)

var tracer = otel.Tracer("progeval.dbguard")

// transientMarkers are lower-cased substrings of connection and pool errors
// reported by the postgres and sqlite drivers and by the pooler in front of them.
var transientMarkers = []string{
	"pool timeout",
	"failed to retrieve a connection",
	"etimedout",
	"connection refused",
	"connection reset by peer",
	"broken pipe",
	"too many connections",
	"too many clients",
	"driver: bad connection",
	"server closed the connection unexpectedly",
}

// Reconnector restores the store's connection pool after a connection-level error.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Guard holds the reconnect hook and the deadline used when a call site passes none.
type Guard struct {
	Reconnector    Reconnector
	DefaultTimeout time.Duration
}

func New(r Reconnector, defaultTimeout time.Duration) *Guard {
	return &Guard{Reconnector: r, DefaultTimeout: defaultTimeout}
}

// IsTransient reports whether err looks like pool exhaustion or a lost connection.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrTimeout) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Run executes op under timeout (the guard default when timeout <= 0). The
// context handed to op is canceled once the deadline passes and the caller
// stops waiting for it. Transient errors trigger one reconnect and a second
// attempt; anything else is returned as is. Only wrap writes that are safe to
// apply twice.
func Run[T any](ctx context.Context, g *Guard, name string, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = g.defaultTimeout()
	}
	ctx, span := tracer.Start(ctx, "db."+name)
	defer span.End()

	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		span.SetAttributes(attribute.Int("db.attempts", attempt))
		v, err = once(ctx, timeout, op)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrTimeout) {
			metrics.GuardTimeouts.WithLabelValues(name).Inc()
			logger.Warnf("dbguard: %s exceeded %s", name, timeout)
			break
		}
		if attempt == maxAttempts || !IsTransient(err) || ctx.Err() != nil {
			break
		}
		metrics.GuardRetries.WithLabelValues(name).Inc()
		logger.Warnf("dbguard: %s connection error, reconnecting: %v", name, err)
		if g != nil && g.Reconnector != nil {
			if rerr := g.Reconnector.Reconnect(ctx); rerr != nil {
				logger.Errorf("dbguard: reconnect for %s failed: %v", name, rerr)
				break
			}
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var zero T
	return zero, err
}

// Exec is Run for operations without a result.
func (g *Guard) Exec(ctx context.Context, name string, timeout time.Duration, op func(context.Context) error) error {
	_, err := Run(ctx, g, name, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (g *Guard) defaultTimeout() time.Duration {
	if g != nil && g.DefaultTimeout > 0 {
		return g.DefaultTimeout
	}
	return fallbackTimeout
}

type result[T any] struct {
	v   T
	err error
}

func once[T any](parent context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	// buffered so an abandoned op can still deliver and exit
	ch := make(chan result[T], 1)
	go func() {
		v, err := op(ctx)
		ch <- result[T]{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && parent.Err() == nil {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return r.v, r.err
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
