// Package boundarystore is the boundary cache: every entry lives in one
// container key as a JSON object of cache key -> JSON-encoded boundary string.
package boundarystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/keys"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/medium"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
)

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTimeout bounds each medium call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

type Store struct {
	logger    *slog.Logger
	m         medium.Medium
	container string
	scheme    keys.Scheme
	timeout   time.Duration

	// serializes read-modify-write cycles from this process; the medium's
	// Update covers writers in other processes
	mu sync.Mutex
}

func New(m medium.Medium, container string, scheme keys.Scheme, opts ...Option) *Store {
	s := &Store{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		m:         m,
		container: container,
		scheme:    scheme,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Key(region string) string { return s.scheme.Key(region) }

func (s *Store) Scheme() keys.Scheme { return s.scheme }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get never fails: storage errors, a corrupt container and a corrupt entry
// all read as absent.
func (s *Store) Get(ctx context.Context, region string) (*boundary.Boundary, bool) {
	entries, err := s.load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "boundary cache read failed", "region", region, "err", err)
		observability.ObserveCacheLookup("error")
		return nil, false
	}
	raw, ok := entries[s.Key(region)]
	if !ok {
		observability.ObserveCacheLookup("miss")
		return nil, false
	}
	b, err := decodeEntry(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "corrupt boundary cache entry", "region", region, "err", err)
		observability.ObserveCacheLookup("corrupt")
		return nil, false
	}
	observability.ObserveCacheLookup("hit")
	return b, true
}

// Put writes one entry without disturbing the others.
func (s *Store) Put(ctx context.Context, region string, b *boundary.Boundary) error {
	if b == nil {
		return errors.New("boundarystore: nil boundary")
	}
	val, err := encodeEntry(b)
	if err != nil {
		return fmt.Errorf("boundarystore encode %q: %w", region, err)
	}
	key := s.Key(region)
	return s.update(ctx, func(entries map[string]json.RawMessage) {
		entries[key] = val
	})
}

// Delete drops the entries of the given regions under the current version.
func (s *Store) Delete(ctx context.Context, regions ...string) error {
	if len(regions) == 0 {
		return nil
	}
	return s.update(ctx, func(entries map[string]json.RawMessage) {
		for _, r := range regions {
			delete(entries, s.Key(r))
		}
	})
}

// Clear removes the whole container, including dead keys of older versions.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.m.Del(ctx, s.container); err != nil {
		return fmt.Errorf("boundarystore clear: %w", err)
	}
	return nil
}

// Regions lists region names that have an entry under the current version.
func (s *Store) Regions(ctx context.Context) ([]string, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for k := range entries {
		if name, ok := s.scheme.Region(k); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) load(ctx context.Context) (map[string]json.RawMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := s.m.Get(ctx, s.container)
	if errors.Is(err, medium.ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("boundarystore load: %w", err)
	}
	entries, err := decodeContainer(raw)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) update(ctx context.Context, mutate func(map[string]json.RawMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.m.Update(ctx, s.container, func(cur string, found bool) (string, error) {
		entries := map[string]json.RawMessage{}
		if found {
			dec, err := decodeContainer(cur)
			if err != nil {
				// unreadable entries are already lost to readers
				s.logger.WarnContext(ctx, "replacing corrupt boundary cache container", "err", err)
			} else {
				entries = dec
			}
		}
		mutate(entries)
		out, err := json.Marshal(entries)
		if err != nil {
			return "", fmt.Errorf("boundarystore encode container: %w", err)
		}
		return string(out), nil
	})
	if err != nil {
		return fmt.Errorf("boundarystore update: %w", err)
	}
	return nil
}

func decodeContainer(raw string) (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}
	if strings.TrimSpace(raw) == "" {
		return entries, nil
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("boundarystore decode container: %w", err)
	}
	return entries, nil
}

// encodeEntry double-encodes: the boundary JSON becomes a JSON string value.
func encodeEntry(b *boundary.Boundary) (json.RawMessage, error) {
	inner, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

func decodeEntry(raw json.RawMessage) (*boundary.Boundary, error) {
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("entry is not a string: %w", err)
	}
	return boundary.ParseString(inner)
}
