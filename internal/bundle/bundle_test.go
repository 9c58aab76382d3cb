package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
)

func TestEmbeddedBundle(t *testing.T) {
	b, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, ok := b.Lookup("melb_suburb_geojson_v1_Carlton")
	if !ok {
		t.Fatal("Carlton should be bundled")
	}
	g, err := boundary.ParseString(v)
	if err != nil {
		t.Fatalf("bundled Carlton does not parse: %v", err)
	}
	if g.Kind() != boundary.KindPolygon {
		t.Fatalf("kind: %s", g.Kind())
	}
	if _, ok := b.Lookup("melb_suburb_geojson_v1_Docklands"); ok {
		t.Fatal("empty object placeholder must read as absent")
	}
	if _, ok := b.Lookup("melb_suburb_geojson_v2_Carlton"); ok {
		t.Fatal("other versions must not match")
	}
	keys := b.Keys()
	if len(keys) != 2 || keys[0] != "melb_suburb_geojson_v1_Carlton" || keys[1] != "melb_suburb_geojson_v1_Fitzroy" {
		t.Fatalf("keys: %v", keys)
	}
}

func TestLookupPlaceholders(t *testing.T) {
	b := FromMap(map[string]string{"a": "", "b": " {} ", "c": "null", "d": `{"type":"Point","coordinates":[1,2]}`})
	for _, k := range []string{"a", "b", "c", "missing"} {
		if _, ok := b.Lookup(k); ok {
			t.Fatalf("%s should be absent", k)
		}
	}
	if _, ok := b.Lookup("d"); !ok {
		t.Fatal("d should be present")
	}

	var nilBundle *Bundle
	if _, ok := nilBundle.Lookup("d"); ok {
		t.Fatal("nil bundle has no entries")
	}
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "b.json")
	if err := os.WriteFile(p, []byte(`{"k":"{\"type\":\"Point\",\"coordinates\":[0,0]}"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := b.Lookup("k"); !ok {
		t.Fatal("k missing")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[1,2]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("non-object bundle should fail")
	}
}
