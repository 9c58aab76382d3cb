// Package overpass resolves region outlines from an Overpass interpreter.
// Each fetch tries, in order, the relation by name at admin_level 10, the
// relation by postcode, and the relation by name inside the region's council
// area. The first element with a closed outline wins; relation outlines are
// stitched from their outer way members.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sony/gobreaker"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote"
)

const (
	driver       = "overpass"
	maxBodyBytes = 16 << 20
)

type Config struct {
	BaseURL string
	// Area is the administrative area (admin_level 4) searched by name and postcode.
	Area            string
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

// Queries returns the query variants for r in the order they are tried.
func (c *Client) Queries(r model.Region) []string {
	area := fmt.Sprintf(`area["name"="%s"]["boundary"="administrative"]["admin_level"="4"]->.searchArea;`, quote(c.cfg.Area))
	out := []string{
		fmt.Sprintf(`[out:json];%s(relation["name"="%s"]["admin_level"="10"](area.searchArea););out geom;`, area, quote(r.Name)),
	}
	if r.Postcode > 0 {
		out = append(out, fmt.Sprintf(`[out:json];%s(relation["postal_code"="%d"](area.searchArea););out geom;`, area, r.Postcode))
	}
	if r.Council != "" {
		out = append(out, fmt.Sprintf(`[out:json];area["name"="%s"]->.councilArea;(relation["name"="%s"](area.councilArea););out geom;`, quote(r.Council), quote(r.Name)))
	}
	return out
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
		c.logger.InfoContext(ctx, "no boundary returned", "region", r.Name)
	case remote.IsOpen(err):
		observability.ObserveRemoteFetch(driver, remote.ResultOpen, dur)
		c.logger.WarnContext(ctx, "boundary service unavailable, breaker open", "region", r.Name)
	default:
		observability.ObserveRemoteFetch(driver, remote.ResultError, dur)
		c.logger.WarnContext(ctx, "boundary fetch failed", "region", r.Name, "err", err)
	}
	return nil
}

// fetch stops at the first variant with geometry. Any transport or decode
// error aborts the remaining variants.
func (c *Client) fetch(ctx context.Context, r model.Region) (*boundary.Boundary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	for i, q := range c.Queries(r) {
		resp, err := c.query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("overpass variant %d: %w", i+1, err)
		}
		for _, el := range resp.Elements {
			g := geometryOf(el)
			if g == nil {
				continue
			}
			b, err := boundary.FromOrb(g)
			if err != nil {
				continue
			}
			c.logger.DebugContext(ctx, "overpass boundary found", "region", r.Name, "variant", i+1, "kind", b.Kind())
			return b, nil
		}
	}
	return nil, remote.ErrNoBoundary
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []point           `json:"geometry"`
	Members  []member          `json:"members"`
}

type response struct {
	Elements []element `json:"elements"`
}

func (c *Client) query(ctx context.Context, data string) (*response, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("overpass url: %w", err)
	}
	q := u.Query()
	q.Set("data", data)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.New("status " + strconv.Itoa(resp.StatusCode))
	}
	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}

// toRing converts lat/lon points to a closed lon/lat ring, or nil when there
// are too few points for an area.
func toRing(pts []point) orb.Ring {
	if len(pts) < 3 {
		return nil
	}
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{p.Lon, p.Lat})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if len(ring) < 4 {
		return nil
	}
	return ring
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
