// Package boundary holds the geometry value resolved for a region.
package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	KindPolygon      = "Polygon"
	KindMultiPolygon = "MultiPolygon"
)

var (
	ErrEmpty   = errors.New("boundary: empty geometry")
	ErrInvalid = errors.New("boundary: invalid geometry")
)

// Boundary is immutable once parsed. Raw keeps the exact geometry bytes so
// kinds other than polygons round-trip untouched.
type Boundary struct {
	kind string
	raw  json.RawMessage
	geom orb.Geometry
}

// Parse accepts a GeoJSON geometry or a Feature wrapping one.
func Parse(b []byte) (*Boundary, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, ErrEmpty
	}

	var hdr struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	kind := strings.TrimSpace(hdr.Type)
	if kind == "Feature" {
		return Parse(hdr.Geometry)
	}
	if kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalid)
	}

	out := &Boundary{kind: kind, raw: append(json.RawMessage(nil), b...)}
	switch kind {
	case KindPolygon, KindMultiPolygon:
		g, err := geojson.UnmarshalGeometry(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		geom := g.Geometry()
		if geom == nil || isEmpty(geom) {
			return nil, ErrEmpty
		}
		out.geom = geom
	}
	return out, nil
}

// ParseString is Parse for the serialized string form used by the cache and bundle.
func ParseString(s string) (*Boundary, error) {
	return Parse([]byte(s))
}

// FromOrb wraps an orb geometry, e.g. one assembled from an Overpass way.
func FromOrb(g orb.Geometry) (*Boundary, error) {
	if g == nil || isEmpty(g) {
		return nil, ErrEmpty
	}
	raw, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &Boundary{kind: g.GeoJSONType(), raw: raw, geom: g}, nil
}

func (b *Boundary) Kind() string { return b.kind }

// Polygonal reports whether the boundary is a filled outline.
func (b *Boundary) Polygonal() bool {
	return b.kind == KindPolygon || b.kind == KindMultiPolygon
}

// Geometry is nil for opaque kinds.
func (b *Boundary) Geometry() orb.Geometry { return b.geom }

func (b *Boundary) Bound() (orb.Bound, bool) {
	if b.geom == nil {
		return orb.Bound{}, false
	}
	return b.geom.Bound(), true
}

func (b *Boundary) Bytes() []byte {
	return append([]byte(nil), b.raw...)
}

func (b *Boundary) String() string { return string(b.raw) }

func (b *Boundary) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return b.Bytes(), nil
}

// Equal compares the serialized geometry after compaction.
func (b *Boundary) Equal(o *Boundary) bool {
	if b == nil || o == nil {
		return b == o
	}
	var x, y bytes.Buffer
	if json.Compact(&x, b.raw) != nil || json.Compact(&y, o.raw) != nil {
		return bytes.Equal(b.raw, o.raw)
	}
	return bytes.Equal(x.Bytes(), y.Bytes())
}

func isEmpty(g orb.Geometry) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return len(t) == 0 || len(t[0]) == 0
	case orb.MultiPolygon:
		for _, p := range t {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	default:
		return false
	}
}
