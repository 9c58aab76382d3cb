package overpass

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// member is one entry of a relation as returned by "out geom". Ways carry
// their node coordinates; nodes such as admin_centre do not.
type member struct {
	Type     string  `json:"type"`
	Ref      int64   `json:"ref"`
	Role     string  `json:"role"`
	Geometry []point `json:"geometry"`
}

// geometryOf builds an area from an element: relations from their outer and
// inner way members, closed ways from their own geometry. nil when the
// element has no closed outline.
func geometryOf(el element) orb.Geometry {
	if len(el.Members) == 0 {
		if ring := toRing(el.Geometry); ring != nil {
			return orb.Polygon{ring}
		}
		return nil
	}

	var outer, inner [][]orb.Point
	for _, m := range el.Members {
		if m.Type != "way" || len(m.Geometry) < 2 {
			continue
		}
		switch m.Role {
		case "outer", "":
			outer = append(outer, lonLat(m.Geometry))
		case "inner":
			inner = append(inner, lonLat(m.Geometry))
		}
	}

	rings := stitch(outer)
	if len(rings) == 0 {
		return nil
	}
	polys := make(orb.MultiPolygon, 0, len(rings))
	for _, r := range rings {
		polys = append(polys, orb.Polygon{r})
	}
	for _, hole := range stitch(inner) {
		for i := range polys {
			if planar.RingContains(polys[i][0], hole[0]) {
				polys[i] = append(polys[i], hole)
				break
			}
		}
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}

// stitch joins way segments end to end into closed rings. Segments that never
// close are dropped.
func stitch(ways [][]orb.Point) []orb.Ring {
	left := append([][]orb.Point(nil), ways...)
	var rings []orb.Ring

	for len(left) > 0 {
		cur := append([]orb.Point(nil), left[0]...)
		left = left[1:]

		for cur[0] != cur[len(cur)-1] {
			next := -1
			for i, w := range left {
				end := cur[len(cur)-1]
				switch {
				case w[0] == end:
					cur = append(cur, w[1:]...)
				case w[len(w)-1] == end:
					cur = append(cur, reversed(w)[1:]...)
				default:
					continue
				}
				next = i
				break
			}
			if next < 0 {
				break
			}
			left = append(left[:next], left[next+1:]...)
		}

		if cur[0] == cur[len(cur)-1] && len(cur) >= 4 {
			rings = append(rings, orb.Ring(cur))
		}
	}
	return rings
}

func lonLat(pts []point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p.Lon, p.Lat}
	}
	return out
}

func reversed(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}
