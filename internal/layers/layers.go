// Package layers builds what the map widget draws for a region and keeps the
// per-session table of current layers.
package layers

import (
	"math"
	"sync"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
)

type Kind string

const (
	KindOutline Kind = "outline"
	KindMarker  Kind = "marker"
)

const (
	minRadius         = 5
	maxRadius         = 15
	peoplePerRadius   = 3000
	outlineFill       = 0.3
	fetchedFill       = 0.6
	markerFill        = 0.2
	highlightFill     = 0.7
	baseWeight        = 2
	highlightWeight   = 3
	defaultLineOpaque = 0.8
)

type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// Layer is one drawable region. Exactly one of Boundary or Radius is set.
// Bounds is [minLng, minLat, maxLng, maxLat] of a polygonal boundary.
type Layer struct {
	Region      string             `json:"region"`
	Kind        Kind               `json:"kind"`
	Source      model.Outcome      `json:"source"`
	Boundary    *boundary.Boundary `json:"boundary,omitempty"`
	Bounds      []float64          `json:"bounds,omitempty"`
	Center      [2]float64         `json:"center"`
	Radius      float64            `json:"radius,omitempty"`
	Style       Style              `json:"style"`
	Interactive bool               `json:"interactive"`
}

// MarkerRadius is population/3000 clamped to [5, 15].
func MarkerRadius(population int) float64 {
	r := float64(population) / peoplePerRadius
	return math.Max(minRadius, math.Min(maxRadius, r))
}

// Build picks an outline when a boundary is known and a radius marker otherwise.
func Build(r model.Region, b *boundary.Boundary, source model.Outcome, color string, interactive bool) Layer {
	l := Layer{
		Region:      r.Name,
		Source:      source,
		Center:      [2]float64{r.Lat, r.Lng},
		Interactive: interactive,
		Style: Style{
			Color:     color,
			FillColor: color,
			Weight:    baseWeight,
			Opacity:   defaultLineOpaque,
		},
	}
	if b == nil {
		l.Kind = KindMarker
		l.Source = model.Unresolved
		l.Radius = MarkerRadius(r.Population)
		l.Style.FillOpacity = markerFill
		return l
	}
	l.Kind = KindOutline
	l.Boundary = b
	if bd, ok := b.Bound(); ok {
		l.Bounds = []float64{bd.Min.Lon(), bd.Min.Lat(), bd.Max.Lon(), bd.Max.Lat()}
	}
	l.Style.FillOpacity = restingFill(l)
	return l
}

// restingFill is zero for geometries without an area, e.g. a Point.
func restingFill(l Layer) float64 {
	switch {
	case l.Kind == KindMarker:
		return markerFill
	case l.Boundary != nil && !l.Boundary.Polygonal():
		return 0
	case l.Source == model.FetchedRemote:
		return fetchedFill
	default:
		return outlineFill
	}
}

// Highlight is the hover style; Base restores the resting one.
func Highlight(l Layer) Layer {
	l.Style.FillOpacity = highlightFill
	l.Style.Weight = highlightWeight
	return l
}

func Base(l Layer) Layer {
	l.Style.Weight = baseWeight
	l.Style.FillOpacity = restingFill(l)
	return l
}

// Registry maps region name to its current layer, in first-insertion order.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Layer
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[string]Layer{}}
}

// Replace installs l, swapping out any previous layer for the region.
func (g *Registry) Replace(l Layer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byKey[l.Region]; !ok {
		g.order = append(g.order, l.Region)
	}
	g.byKey[l.Region] = l
}

func (g *Registry) Remove(region string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byKey[region]; !ok {
		return false
	}
	delete(g.byKey, region)
	for i, n := range g.order {
		if n == region {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

func (g *Registry) Get(region string) (Layer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.byKey[region]
	return l, ok
}

func (g *Registry) All() []Layer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Layer, 0, len(g.order))
	for _, n := range g.order {
		out = append(out, g.byKey[n])
	}
	return out
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}
