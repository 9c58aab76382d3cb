// Package nominatim fetches region outlines from a Nominatim search endpoint,
// one query per call.
package nominatim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote"
)

const (
	driver       = "nominatim"
	maxBodyBytes = 8 << 20
)

type Config struct {
	BaseURL string
	// Suffix qualifies the region name, e.g. "Melbourne, Victoria, Australia".
	Suffix          string
	UserAgent       string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker
}

func New(cfg Config, hc *http.Client, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		logger: logger,
		breaker: remote.NewBreaker(remote.BreakerConfig{
			Name:     driver,
			Failures: cfg.BreakerFailures,
			Cooldown: cfg.BreakerCooldown,
			Logger:   logger,
		}),
	}
}

// Query is the free-text search for r.
func (c *Client) Query(r model.Region) string {
	if c.cfg.Suffix == "" {
		return r.Name
	}
	return r.Name + ", " + c.cfg.Suffix
}

func (c *Client) FetchBoundary(ctx context.Context, r model.Region) *boundary.Boundary {
	start := time.Now()
	out, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, r)
	})
	dur := time.Since(start).Seconds()

	switch {
	case err == nil:
		observability.ObserveRemoteFetch(driver, remote.ResultOK, dur)
		b, _ := out.(*boundary.Boundary)
		return b
	case errors.Is(err, remote.ErrNoBoundary):
		observability.ObserveRemoteFetch(driver, remote.ResultEmpty, dur)
		c.logger.InfoContext(ctx, "no boundary returned", "region", r.Name, "err", err)
	case remote.IsOpen(err):
		observability.ObserveRemoteFetch(driver, remote.ResultOpen, dur)
		c.logger.WarnContext(ctx, "boundary service unavailable, breaker open", "region", r.Name)
	default:
		observability.ObserveRemoteFetch(driver, remote.ResultError, dur)
		c.logger.WarnContext(ctx, "boundary fetch failed", "region", r.Name, "err", err)
	}
	return nil
}

type result struct {
	GeoJSON json.RawMessage `json:"geojson"`
}

func (c *Client) fetch(ctx context.Context, r model.Region) (*boundary.Boundary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("nominatim url: %w", err)
	}
	q := u.Query()
	q.Set("q", c.Query(r))
	q.Set("format", "json")
	q.Set("polygon_geojson", "1")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("nominatim read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nominatim status %d: %s", resp.StatusCode, snippet(body))
	}

	var results []result
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	for _, res := range results {
		if emptyGeoJSON(res.GeoJSON) {
			continue
		}
		b, err := boundary.Parse(res.GeoJSON)
		if errors.Is(err, boundary.ErrEmpty) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("nominatim geometry: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %d results for %q", remote.ErrNoBoundary, len(results), c.Query(r))
}

func emptyGeoJSON(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null")) || bytes.Equal(s, []byte("{}")) ||
		bytes.Equal(s, []byte("false")) || bytes.Equal(s, []byte(`""`))
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
