package redpipe

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/redpipe/resp"
)

// CircuitBreaker guards the request path to one server. Implementations
// decide, based on recent outcomes, whether to execute or short-circuit.
type CircuitBreaker interface {
	Execute(func() (*resp.ReplyBatch, error)) (*resp.ReplyBatch, error)
}

// NewCircuitBreakerConfig returns a Config.NewCircuitBreaker function
// backed by gobreaker, for common use cases: the breaker opens once at
// least 3 requests in the interval failed at a 60% ratio.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(serverAddr string) CircuitBreaker {
	return func(serverAddr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}
		return gobreaker.NewCircuitBreaker[*resp.ReplyBatch](settings)
	}
}
