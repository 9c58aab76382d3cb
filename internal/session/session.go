// Package session keeps per-client map state: the layer table built by the
// startup pass, the hovered region and the pinned selection.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/catalog"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/layers"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/logger"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/popularity"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/resolver"
)

// ErrNotSelectable is returned for the display-only aggregate region.
var ErrNotSelectable = errors.New("session: region is not selectable")

type Catalog interface {
	All() []model.Region
	Len() int
	Lookup(name string) (model.Region, error)
	Color(name string) string
	IsAggregate(name string) bool
	PopulationRank(name string) (int, error)
}

type Resolver interface {
	ResolveAll(ctx context.Context, regions []model.Region) []resolver.Resolution
	ResolveOnDemand(ctx context.Context, r model.Region) *boundary.Boundary
}

type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	hovered  string
	selected string
	layers   *layers.Registry
}

func (s *Session) Layers() []layers.Layer { return s.layers.All() }

func (s *Session) Layer(name string) (layers.Layer, bool) { return s.layers.Get(name) }

func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) Hovered() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hovered
}

// Summary is the hover tooltip.
type Summary struct {
	Name       string  `json:"name"`
	Postcode   int     `json:"postcode"`
	Population int     `json:"population"`
	Area       float64 `json:"area"`
	Density    int     `json:"density"`
}

// Detail is the pinned panel.
type Detail struct {
	Summary
	Council        string        `json:"council,omitempty"`
	Lat            float64       `json:"lat"`
	Lng            float64       `json:"lng"`
	PopulationRank int           `json:"populationRank"`
	Regions        int           `json:"regions"`
	Source         model.Outcome `json:"source"`
	Selected       bool          `json:"selected"`
}

type SelectResult struct {
	Region   string       `json:"region"`
	Selected bool         `json:"selected"`
	Fetched  bool         `json:"fetched"`
	Layer    layers.Layer `json:"layer"`
}

// Popularity counts selections across sessions.
type Popularity interface {
	Inc(region string)
	Top(n int) []popularity.Entry
}

type Manager struct {
	cat      Catalog
	res      Resolver
	logger   *slog.Logger
	sessions *gocache.Cache
	popular  Popularity
}

type ManagerOption func(*Manager)

func WithPopularity(p Popularity) ManagerOption {
	return func(m *Manager) { m.popular = p }
}

func NewManager(cat Catalog, res Resolver, ttl time.Duration, log *slog.Logger, opts ...ManagerOption) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Manager{
		cat:      cat,
		res:      res,
		logger:   log,
		sessions: gocache.New(ttl, ttl),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Popular lists the most selected regions, or nil when not tracked.
func (m *Manager) Popular(n int) []popularity.Entry {
	if m.popular == nil {
		return nil
	}
	return m.popular.Top(n)
}

// Open returns the live session for id, or starts a new one when id is empty
// or expired. Starting a session runs the startup resolution pass.
func (m *Manager) Open(ctx context.Context, id string) (*Session, bool) {
	if id != "" {
		if v, ok := m.sessions.Get(id); ok {
			s := v.(*Session)
			m.sessions.SetDefault(id, s)
			return s, false
		}
	}
	s := m.start(ctx)
	m.sessions.SetDefault(s.ID, s)
	return s, true
}

func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	m.sessions.SetDefault(id, s)
	return s, true
}

func (m *Manager) Drop(id string) { m.sessions.Delete(id) }

func (m *Manager) Count() int { return m.sessions.ItemCount() }

func (m *Manager) start(ctx context.Context) *Session {
	s := &Session{ID: logger.NewID(), Created: time.Now(), layers: layers.NewRegistry()}
	ctx = logger.WithSessionID(ctx, s.ID)

	regions := m.cat.All()
	resolved := m.res.ResolveAll(ctx, regions)
	counts := map[model.Outcome]int{}
	for i, r := range regions {
		res := resolved[i]
		counts[res.Source]++
		s.layers.Replace(layers.Build(r, res.Boundary, res.Source, m.cat.Color(r.Name), !m.cat.IsAggregate(r.Name)))
	}
	m.logger.InfoContext(ctx, "session started",
		"regions", len(regions),
		"cached", counts[model.Cached],
		"bundled", counts[model.BundledFallback],
		"unresolved", counts[model.Unresolved],
	)
	return s
}

func (m *Manager) interactive(name string) (model.Region, error) {
	r, err := m.cat.Lookup(name)
	if err != nil {
		return model.Region{}, err
	}
	if m.cat.IsAggregate(name) {
		return model.Region{}, fmt.Errorf("%w: %q", ErrNotSelectable, name)
	}
	return r, nil
}

func summarize(r model.Region) Summary {
	return Summary{
		Name:       r.Name,
		Postcode:   r.Postcode,
		Population: r.Population,
		Area:       r.Area,
		Density:    catalog.Density(r),
	}
}

// Hover records the hovered region and returns its tooltip and highlighted layer.
func (m *Manager) Hover(s *Session, name string) (Summary, layers.Layer, error) {
	r, err := m.interactive(name)
	if err != nil {
		return Summary{}, layers.Layer{}, err
	}
	s.mu.Lock()
	s.hovered = name
	s.mu.Unlock()
	l, _ := s.layers.Get(name)
	return summarize(r), layers.Highlight(l), nil
}

// Unhover ends a hover and returns the layer in its resting style. Leaving a
// region other than the hovered one keeps the current hover.
func (m *Manager) Unhover(s *Session, name string) (layers.Layer, error) {
	if _, err := m.interactive(name); err != nil {
		return layers.Layer{}, err
	}
	s.mu.Lock()
	if s.hovered == name {
		s.hovered = ""
	}
	s.mu.Unlock()
	l, _ := s.layers.Get(name)
	return layers.Base(l), nil
}

// Select toggles the pinned region. Selecting a marker-only region fetches
// its boundary; the outline replaces the marker only if the region is still
// selected and still a marker when the fetch returns.
func (m *Manager) Select(ctx context.Context, s *Session, name string) (SelectResult, error) {
	r, err := m.interactive(name)
	if err != nil {
		return SelectResult{}, err
	}

	s.mu.Lock()
	if s.selected == name {
		s.selected = ""
		s.mu.Unlock()
		l, _ := s.layers.Get(name)
		return SelectResult{Region: name, Selected: false, Layer: l}, nil
	}
	s.selected = name
	s.mu.Unlock()
	if m.popular != nil {
		m.popular.Inc(name)
	}

	l, ok := s.layers.Get(name)
	if ok && l.Kind != layers.KindMarker {
		return SelectResult{Region: name, Selected: true, Layer: l}, nil
	}

	ctx = logger.WithRegion(logger.WithSessionID(ctx, s.ID), name)
	b := m.res.ResolveOnDemand(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	still := s.selected == name
	cur, _ := s.layers.Get(name)
	applied := false
	switch {
	case b == nil:
	case !still || cur.Kind != layers.KindMarker:
		// a later click deselected it or another request already drew it
		m.logger.DebugContext(ctx, "stale boundary not applied", "selected", still)
	default:
		cur = layers.Build(r, b, model.FetchedRemote, m.cat.Color(name), true)
		s.layers.Replace(cur)
		applied = true
	}
	return SelectResult{Region: name, Selected: still, Fetched: applied, Layer: cur}, nil
}

func (m *Manager) Detail(s *Session, name string) (Detail, error) {
	r, err := m.cat.Lookup(name)
	if err != nil {
		return Detail{}, err
	}
	rank, err := m.cat.PopulationRank(name)
	if err != nil {
		return Detail{}, err
	}
	l, _ := s.layers.Get(name)
	return Detail{
		Summary:        summarize(r),
		Council:        r.Council,
		Lat:            r.Lat,
		Lng:            r.Lng,
		PopulationRank: rank,
		Regions:        m.cat.Len(),
		Source:         l.Source,
		Selected:       s.Selected() == name,
	}, nil
}

// ResetAll rebuilds every layer of the session, e.g. after the whole cache
// was cleared.
func (m *Manager) ResetAll(ctx context.Context, s *Session) {
	regions := m.cat.All()
	names := make([]string, 0, len(regions))
	for _, r := range regions {
		names = append(names, r.Name)
	}
	m.Reset(ctx, s, names...)
}

// Reset rebuilds a region's layer from the resolver's current view, e.g.
// after its cache entry was evicted.
func (m *Manager) Reset(ctx context.Context, s *Session, names ...string) {
	regions := make([]model.Region, 0, len(names))
	for _, n := range names {
		if r, err := m.cat.Lookup(n); err == nil {
			regions = append(regions, r)
		}
	}
	for i, res := range m.res.ResolveAll(ctx, regions) {
		r := regions[i]
		s.layers.Replace(layers.Build(r, res.Boundary, res.Source, m.cat.Color(r.Name), !m.cat.IsAggregate(r.Name)))
	}
}
