package marketdata

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerProvider wraps a Provider with circuit breaker protection.
// Snapshot stores backed by remote or flaky media can fail in bursts; the
// breaker sheds load instead of hammering a broken store.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults.
func NewCircuitBreakerProvider(provider Provider) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
func NewCircuitBreakerProviderWithSettings(provider Provider, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "SnapshotProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// Missing data is a normal answer from a historical store, not a fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDataUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Ensure CircuitBreakerProvider implements Provider at compile time.
var _ Provider = (*CircuitBreakerProvider)(nil)

// GetSnapshot wraps the underlying provider call with circuit breaker protection.
func (c *CircuitBreakerProvider) GetSnapshot(ctx context.Context, symbol string, ts time.Time) (*Snapshot, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.GetSnapshot(ctx, symbol, ts)
	})
	if err != nil {
		return nil, err
	}
	snap, ok := res.(*Snapshot)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return snap, nil
}
