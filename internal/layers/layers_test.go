package layers

import (
	"testing"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
)

func TestMarkerRadius(t *testing.T) {
	cases := []struct {
		pop  int
		want float64
	}{
		{30000, 10},
		{0, 5},
		{9000, 5},
		{21000, 7},
		{45000, 15},
		{1_000_000, 15},
	}
	for _, tc := range cases {
		if got := MarkerRadius(tc.pop); got != tc.want {
			t.Fatalf("MarkerRadius(%d)=%v want %v", tc.pop, got, tc.want)
		}
	}
}

func TestBuild(t *testing.T) {
	r := model.Region{Name: "Richmond", Population: 30000, Lat: -37.82, Lng: 144.99}

	m := Build(r, nil, model.Unresolved, "#abc", true)
	if m.Kind != KindMarker || m.Radius != 10 || m.Style.FillOpacity != 0.2 || m.Boundary != nil {
		t.Fatalf("marker: %+v", m)
	}
	if m.Center != [2]float64{-37.82, 144.99} {
		t.Fatalf("center: %v", m.Center)
	}

	b, err := boundary.ParseString(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)
	if err != nil {
		t.Fatal(err)
	}
	o := Build(r, b, model.Cached, "#abc", true)
	if o.Kind != KindOutline || o.Radius != 0 || o.Style.FillOpacity != 0.3 || o.Style.Weight != 2 || o.Style.Opacity != 0.8 {
		t.Fatalf("outline: %+v", o)
	}
	f := Build(r, b, model.FetchedRemote, "#abc", true)
	if f.Style.FillOpacity != 0.6 {
		t.Fatalf("fetched outline fill: %v", f.Style.FillOpacity)
	}

	h := Highlight(f)
	if h.Style.FillOpacity != 0.7 || h.Style.Weight != 3 {
		t.Fatalf("highlight: %+v", h.Style)
	}
	if back := Base(h); back.Style != f.Style {
		t.Fatalf("base should restore %+v, got %+v", f.Style, back.Style)
	}
	if back := Base(Highlight(m)); back.Style != m.Style {
		t.Fatalf("marker base: %+v", back.Style)
	}
}

func TestBuildBoundsAndNonPolygonal(t *testing.T) {
	r := model.Region{Name: "Kew", Population: 24000}
	b, err := boundary.ParseString(`{"type":"Polygon","coordinates":[[[145.0,-37.8],[145.1,-37.8],[145.1,-37.7],[145.0,-37.8]]]}`)
	if err != nil {
		t.Fatal(err)
	}
	o := Build(r, b, model.Cached, "#abc", true)
	want := []float64{145.0, -37.8, 145.1, -37.7}
	if len(o.Bounds) != 4 {
		t.Fatalf("bounds: %v", o.Bounds)
	}
	for i := range want {
		if o.Bounds[i] != want[i] {
			t.Fatalf("bounds: %v want %v", o.Bounds, want)
		}
	}

	pt, err := boundary.ParseString(`{"type":"Point","coordinates":[145.0,-37.8]}`)
	if err != nil {
		t.Fatal(err)
	}
	p := Build(r, pt, model.FetchedRemote, "#abc", true)
	if p.Kind != KindOutline || p.Style.FillOpacity != 0 || p.Bounds != nil {
		t.Fatalf("point layer: %+v", p)
	}
	if back := Base(Highlight(p)); back.Style.FillOpacity != 0 {
		t.Fatalf("point base fill: %v", back.Style.FillOpacity)
	}
}

func TestRegistry(t *testing.T) {
	g := NewRegistry()
	g.Replace(Layer{Region: "A", Kind: KindMarker})
	g.Replace(Layer{Region: "B", Kind: KindMarker})
	g.Replace(Layer{Region: "A", Kind: KindOutline})

	all := g.All()
	if len(all) != 2 || all[0].Region != "A" || all[1].Region != "B" {
		t.Fatalf("order: %+v", all)
	}
	if l, _ := g.Get("A"); l.Kind != KindOutline {
		t.Fatalf("replace did not swap: %+v", l)
	}
	if !g.Remove("A") || g.Remove("A") {
		t.Fatal("remove should report presence once")
	}
	if g.Len() != 1 {
		t.Fatalf("len: %d", g.Len())
	}
	if _, ok := g.Get("A"); ok {
		t.Fatal("A still present")
	}
}
