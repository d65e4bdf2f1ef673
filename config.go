package redpipe

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for connections and the pooled client.
// The zero value is usable: default dialer, nop logger, no breaker.
type Config struct {
	// MaxSize is the maximum number of connections per server pool.
	// Client requires it to be > 0; plain Dial ignores it.
	MaxSize int32

	// MaxConnLifetime is the maximum duration a pooled connection is
	// reused. Zero means no limit.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a pooled connection may
	// sit idle before being closed. Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle pooled connections are
	// pinged. Zero disables health checks.
	HealthCheckInterval time.Duration

	// Dialer is used to create new connections. Nil means a default
	// net.Dialer.
	Dialer *net.Dialer

	// Selector picks which server handles a key. Nil means
	// DefaultServerSelector.
	Selector ServerSelector

	// NewCircuitBreaker creates a circuit breaker for a server, called
	// once per server address. Nil disables circuit breaking.
	NewCircuitBreaker func(serverAddr string) CircuitBreaker

	// Logger receives warnings and, with Verbose, per-batch debug
	// lines. Nil means no logging.
	Logger *zap.Logger

	// Verbose logs every sent batch and dispatched reply batch at
	// debug level. Expensive; meant for protocol debugging only.
	Verbose bool

	// for testing purposes only
	constructor func(addr string) (*Connection, error)
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
