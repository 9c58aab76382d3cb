package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
)

func load(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(Options{Aggregate: "Melbourne", H3Res: 8})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestEmbeddedCatalog(t *testing.T) {
	c := load(t)
	if c.Len() != 20 {
		t.Fatalf("want 20 regions, got %d", c.Len())
	}
	all := c.All()
	if all[0].Name != "Melbourne" || !c.IsAggregate(all[0].Name) {
		t.Fatalf("first entry should be the aggregate, got %q", all[0].Name)
	}
	all[0].Name = "mutated"
	if c.All()[0].Name != "Melbourne" {
		t.Fatal("All must return a copy")
	}

	r, err := c.Lookup("Richmond")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if r.Postcode != 3121 || r.Population != 30000 || r.Council != "City of Yarra" {
		t.Fatalf("unexpected Richmond: %+v", r)
	}
	if _, err := c.Lookup("Atlantis"); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("want ErrUnknownRegion, got %v", err)
	}
}

func TestColorCyclesPalette(t *testing.T) {
	regions := []model.Region{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	c, err := New(regions, []string{"#111", "#222"}, "", 8)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Color("A"); got != "#111" {
		t.Fatalf("A: %s", got)
	}
	if got := c.Color("B"); got != "#222" {
		t.Fatalf("B: %s", got)
	}
	if got := c.Color("C"); got != "#111" {
		t.Fatalf("C should wrap, got %s", got)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New([]model.Region{{Name: "A"}, {Name: "A"}}, []string{"#fff"}, "", 8); err == nil {
		t.Fatal("duplicate names should fail")
	}
	if _, err := New([]model.Region{{Name: "  "}}, []string{"#fff"}, "", 8); err == nil {
		t.Fatal("blank name should fail")
	}
	if _, err := New(nil, nil, "", 8); err == nil {
		t.Fatal("empty palette should fail")
	}
	if _, err := New(nil, []string{"#fff"}, "", 16); err == nil {
		t.Fatal("resolution 16 should fail")
	}
}

func TestDensityAndRank(t *testing.T) {
	if d := Density(model.Region{Population: 30000, Area: 6.1}); d != 4918 {
		t.Fatalf("density: %d", d)
	}
	if d := Density(model.Region{Population: 100}); d != 0 {
		t.Fatalf("zero area density: %d", d)
	}

	regions := []model.Region{
		{Name: "Small", Population: 10},
		{Name: "Big", Population: 100},
		{Name: "TieA", Population: 50},
		{Name: "TieB", Population: 50},
	}
	c, err := New(regions, []string{"#fff"}, "", 8)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"Big": 1, "TieA": 2, "TieB": 3, "Small": 4}
	for name, rank := range want {
		got, err := c.PopulationRank(name)
		if err != nil || got != rank {
			t.Fatalf("%s: rank %d err %v, want %d", name, got, err, rank)
		}
	}
	if _, err := c.PopulationRank("nope"); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("want ErrUnknownRegion, got %v", err)
	}
}

func TestLocate(t *testing.T) {
	c := load(t)

	r, err := c.Locate(-37.8200, 144.9900)
	if err != nil || r.Name != "Richmond" {
		t.Fatalf("centroid should locate Richmond, got %q err %v", r.Name, err)
	}
	r, err = c.Locate(-37.8010, 144.9010)
	if err != nil || r.Name != "Footscray" {
		t.Fatalf("near Footscray, got %q err %v", r.Name, err)
	}
	r, err = c.Locate(-37.8136, 144.9631)
	if err != nil {
		t.Fatalf("cbd: %v", err)
	}
	if c.IsAggregate(r.Name) {
		t.Fatal("aggregate region must not be located")
	}
	if _, err := c.Locate(-33.8688, 151.2093); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("sydney should be out of range, got %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "regions.json")
	if err := os.WriteFile(p, []byte(`[{"name":"Only","population":1,"lat":-37.8,"lng":144.9}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(Options{Path: p, H3Res: 8})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("want 1 region, got %d", c.Len())
	}
	if _, err := Load(Options{Path: filepath.Join(t.TempDir(), "missing.json"), H3Res: 8}); err == nil {
		t.Fatal("missing file should fail")
	}
}
