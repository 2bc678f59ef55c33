package clients

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and stay open for openTimeout.
//
// The wait phase polls dependencies through these breakers, so openTimeout
// must not exceed the poll interval: after the open state expires the breaker
// goes half-open and admits the next poll's probe, which means every tick
// still reaches the dependency and readiness is detected as soon as it
// recovers. An open state longer than the poll interval would instead starve
// the waiter with "circuit open" results until the overall deadline.
func NewCircuitBreaker(name string, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}
