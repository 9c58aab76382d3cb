package keys

import "testing"

func TestKey_Format(t *testing.T) {
	got := Key("melb_suburb_geojson_", "v1", "Richmond")
	want := "melb_suburb_geojson_v1_Richmond"
	if got != want {
		t.Fatalf("Key=%q want %q", got, want)
	}
}

func TestKey_VersionChangesKey(t *testing.T) {
	k1 := Scheme{Prefix: "p_", Version: "v1"}.Key("Carlton North")
	k2 := Scheme{Prefix: "p_", Version: "v2"}.Key("Carlton North")
	if k1 == k2 {
		t.Fatalf("version bump must change key: %s", k1)
	}
}

func TestScheme_Region(t *testing.T) {
	s := Scheme{Prefix: "p_", Version: "v2"}
	if name, ok := s.Region("p_v2_St Kilda"); !ok || name != "St Kilda" {
		t.Fatalf("Region=%q,%v", name, ok)
	}
	if _, ok := s.Region("p_v1_St Kilda"); ok {
		t.Fatalf("old version key must not match")
	}
	if _, ok := s.Region("other_v2_St Kilda"); ok {
		t.Fatalf("foreign prefix must not match")
	}
}
