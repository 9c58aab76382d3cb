// Package catalog is the immutable region list, its colour palette and a
// coarse H3 index of region centroids.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
)

//go:embed data/regions.json
var embeddedRegions []byte

//go:embed data/colors.json
var embeddedColors []byte

// maxLocateRings bounds Locate to nearby cells.
const maxLocateRings = 10

var ErrUnknownRegion = errors.New("catalog: unknown region")

type Catalog struct {
	regions   []model.Region
	index     map[string]int
	colors    []string
	aggregate string
	res       int
	cells     []h3.Cell
	ranks     map[string]int
}

type Options struct {
	// Path overrides the embedded region list.
	Path string
	// Aggregate names the whole-area background region.
	Aggregate string
	H3Res     int
}

func Load(opts Options) (*Catalog, error) {
	raw := embeddedRegions
	if opts.Path != "" {
		b, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", opts.Path, err)
		}
		raw = b
	}
	var regions []model.Region
	if err := json.Unmarshal(raw, &regions); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	var colors []string
	if err := json.Unmarshal(embeddedColors, &colors); err != nil {
		return nil, fmt.Errorf("decode palette: %w", err)
	}
	return New(regions, colors, opts.Aggregate, opts.H3Res)
}

func New(regions []model.Region, colors []string, aggregate string, res int) (*Catalog, error) {
	if len(colors) == 0 {
		return nil, errors.New("catalog: empty colour palette")
	}
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("catalog: invalid H3 resolution %d (must be 0..15)", res)
	}
	c := &Catalog{
		regions:   append([]model.Region(nil), regions...),
		index:     make(map[string]int, len(regions)),
		colors:    append([]string(nil), colors...),
		aggregate: aggregate,
		res:       res,
		cells:     make([]h3.Cell, len(regions)),
	}
	for i, r := range c.regions {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog: region %d has no name", i)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("catalog: duplicate region %q", name)
		}
		c.regions[i].Name = name
		c.index[name] = i

		cell, err := h3.LatLngToCell(h3.LatLng{Lat: r.Lat, Lng: r.Lng}, res)
		if err != nil {
			return nil, fmt.Errorf("catalog: index %q: %w", name, err)
		}
		c.cells[i] = cell
	}
	c.ranks = rankByPopulation(c.regions)
	return c, nil
}

func rankByPopulation(regions []model.Region) map[string]int {
	order := make([]int, len(regions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return regions[order[a]].Population > regions[order[b]].Population
	})
	ranks := make(map[string]int, len(regions))
	for pos, i := range order {
		ranks[regions[i].Name] = pos + 1
	}
	return ranks
}

// All returns a copy in catalog order.
func (c *Catalog) All() []model.Region {
	return append([]model.Region(nil), c.regions...)
}

func (c *Catalog) Len() int { return len(c.regions) }

func (c *Catalog) Lookup(name string) (model.Region, error) {
	i, ok := c.index[name]
	if !ok {
		return model.Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return c.regions[i], nil
}

// Color cycles the palette by catalog position.
func (c *Catalog) Color(name string) string {
	i, ok := c.index[name]
	if !ok {
		return c.colors[0]
	}
	return c.colors[i%len(c.colors)]
}

// IsAggregate reports the display-only whole-area entry.
func (c *Catalog) IsAggregate(name string) bool {
	return c.aggregate != "" && name == c.aggregate
}

// PopulationRank is 1 for the most populated region.
func (c *Catalog) PopulationRank(name string) (int, error) {
	r, ok := c.ranks[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return r, nil
}

// Density is people per km², rounded; zero for regions without an area.
func Density(r model.Region) int {
	if r.Area <= 0 {
		return 0
	}
	return int(math.Round(float64(r.Population) / r.Area))
}

// Locate returns the selectable region whose centroid cell is closest in grid
// distance to the point. Ties go to the earlier catalog entry.
func (c *Catalog) Locate(lat, lng float64) (model.Region, error) {
	origin, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, c.res)
	if err != nil {
		return model.Region{}, fmt.Errorf("catalog locate: %w", err)
	}
	best, bestDist := -1, maxLocateRings+1
	for i, cell := range c.cells {
		if c.IsAggregate(c.regions[i].Name) {
			continue
		}
		d, err := h3.GridDistance(origin, cell)
		if err != nil {
			// too far apart or across a pentagon
			continue
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return model.Region{}, fmt.Errorf("%w: none within %d cells of %.5f,%.5f", ErrUnknownRegion, maxLocateRings, lat, lng)
	}
	return c.regions[best], nil
}
