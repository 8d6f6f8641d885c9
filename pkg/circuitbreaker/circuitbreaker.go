package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
	// OpenInterval is how long the breaker stays open before letting a
	// probe request through again
	OpenInterval = 30 * time.Second
)

// NewCircuitBreaker is a factory function returning a
// *gobreaker.CircuitBreaker that trips once the overall number of failing
// requests reaches MaxNumOfFailingRequests and the failing ratio meets
// FailingRatio. It guards the RPC endpoint probing loop from hammering
// endpoints that keep failing.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: OpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
	})
}
