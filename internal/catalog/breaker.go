package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker in front of the catalog.
// The circuit opens after ConsecutiveFailures transport failures in a row and
// rejects requests for OpenTimeout before letting HalfOpenRequests probes through.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// Option configures a Client.
type Option func(*Client)

// WithCircuitBreaker guards every catalog request with a circuit breaker.
// A zero ConsecutiveFailures leaves the client unguarded.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		if cfg.ConsecutiveFailures == 0 {
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "catalog",
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			// a missing product or an abandoned request says nothing about catalog health
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrProductNotFound) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("Catalog circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
}

// guard runs fn through the circuit breaker, if one is configured.
// Rejections by an open circuit wrap ErrTransport.
func (c *Client) guard(fn func() (any, error)) (any, error) {
	if c.breaker == nil {
		return fn()
	}
	v, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return v, err
}
