package boundary

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

const square = `{"type":"Polygon","coordinates":[[[144.98,-37.83],[145.0,-37.83],[145.0,-37.81],[144.98,-37.81],[144.98,-37.83]]]}`

func TestParse_Polygon(t *testing.T) {
	b, err := ParseString(square)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Kind() != KindPolygon || !b.Polygonal() {
		t.Fatalf("kind=%q polygonal=%v", b.Kind(), b.Polygonal())
	}
	bd, ok := b.Bound()
	if !ok {
		t.Fatalf("expected bound for polygon")
	}
	if bd.Min != (orb.Point{144.98, -37.83}) || bd.Max != (orb.Point{145.0, -37.81}) {
		t.Fatalf("unexpected bound %+v", bd)
	}
	if b.String() != square {
		t.Fatalf("raw bytes not preserved: %s", b.String())
	}
}

func TestParse_MultiPolygon(t *testing.T) {
	mp := `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3],[2,2]]]]}`
	b, err := ParseString(mp)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := b.Geometry().(orb.MultiPolygon); !ok {
		t.Fatalf("geometry type %T", b.Geometry())
	}
}

func TestParse_FeatureIsUnwrapped(t *testing.T) {
	f := `{"type":"Feature","geometry":` + square + `,"properties":{"name":"Richmond"}}`
	b, err := ParseString(f)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Kind() != KindPolygon {
		t.Fatalf("kind=%q", b.Kind())
	}
	want, _ := ParseString(square)
	if !b.Equal(want) {
		t.Fatalf("feature geometry differs: %s", b.String())
	}
}

func TestParse_OtherKindsPassThrough(t *testing.T) {
	pt := `{"type":"Point","coordinates":[144.99,-37.82]}`
	b, err := ParseString(pt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Kind() != "Point" || b.Polygonal() {
		t.Fatalf("kind=%q polygonal=%v", b.Kind(), b.Polygonal())
	}
	if b.Geometry() != nil {
		t.Fatalf("opaque kind should not carry decoded geometry")
	}
	out, err := json.Marshal(b)
	if err != nil || string(out) != pt {
		t.Fatalf("marshal=%s err=%v", out, err)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrEmpty},
		{"null", "null", ErrEmpty},
		{"garbage", "{not json", ErrInvalid},
		{"no type", `{"coordinates":[]}`, ErrInvalid},
		{"bad coords", `{"type":"Polygon","coordinates":"x"}`, ErrInvalid},
		{"empty polygon", `{"type":"Polygon","coordinates":[]}`, ErrEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseString(tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestFromOrb_ClosedRing(t *testing.T) {
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	b, err := FromOrb(orb.Polygon{ring})
	if err != nil {
		t.Fatalf("FromOrb: %v", err)
	}
	again, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !again.Equal(b) {
		t.Fatalf("round trip mismatch: %s vs %s", again, b)
	}
	if _, err := FromOrb(orb.Polygon{}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty polygon err=%v", err)
	}
}
