package execution

import (
	"time"

	"github.com/quorumtrade/quorum-api/internal/telemetry"
)

// Circuit breaker defaults: three error-severity executions inside a
// fifteen minute window trip the breaker for that account.
const (
	DefaultBreakerWindow    = 15 * time.Minute
	DefaultBreakerThreshold = 3
)

// CircuitBreaker decides per account whether execution may reach the
// broker. The error window is computed from the telemetry log, so the
// breaker state survives restarts without separate bookkeeping.
type CircuitBreaker struct {
	sink      *telemetry.Store
	window    time.Duration
	threshold int64
}

// NewCircuitBreaker creates a breaker with the default window and
// threshold.
func NewCircuitBreaker(sink *telemetry.Store) *CircuitBreaker {
	return &CircuitBreaker{
		sink:      sink,
		window:    DefaultBreakerWindow,
		threshold: DefaultBreakerThreshold,
	}
}

// Open reports whether the breaker is open for an account.
func (b *CircuitBreaker) Open(accountID string) (bool, error) {
	since := time.Now().UTC().Add(-b.window)
	count, err := b.sink.CountRecentErrors(accountID, SourceExecutionAdapter, since)
	if err != nil {
		return false, err
	}
	return count >= b.threshold, nil
}
