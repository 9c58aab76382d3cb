// Package remote defines the boundary service client contract shared by the
// nominatim and overpass drivers.
package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
)

// Fetcher returns nil when no boundary could be obtained. Failures are
// logged by the implementation and never returned.
type Fetcher interface {
	FetchBoundary(ctx context.Context, r model.Region) *boundary.Boundary
}

// Fetch results reported to metrics.
const (
	ResultOK    = "ok"
	ResultEmpty = "empty"
	ResultError = "error"
	ResultOpen  = "open"
)

// ErrNoBoundary marks a well-formed response without usable geometry.
var ErrNoBoundary = errors.New("remote: no boundary in response")

// None never fetches.
type None struct{}

func (None) FetchBoundary(context.Context, model.Region) *boundary.Boundary { return nil }

type BreakerConfig struct {
	Name string
	// Failures is the number of consecutive failures that opens the breaker.
	Failures int
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
	Logger   *slog.Logger
}

// NewBreaker trips on consecutive transport failures. ErrNoBoundary is a
// valid outcome and does not count against the service.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	failures := uint32(cfg.Failures) // #nosec G115 -- positive, checked above
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoBoundary) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// IsOpen reports a short-circuited call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
