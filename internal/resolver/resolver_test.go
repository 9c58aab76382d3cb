package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/bundle"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/boundarystore"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/keys"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/medium"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/layers"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote/nominatim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	container      = "melb_suburb_geojson_cache"
	polygonJSON    = `{"type":"Polygon","coordinates":[[[144.98,-37.81],[145.01,-37.81],[145.01,-37.83],[144.98,-37.83],[144.98,-37.81]]]}`
	carltonPolygon = `{"type":"Polygon","coordinates":[[[144.96,-37.79],[144.97,-37.79],[144.97,-37.80],[144.96,-37.79]]]}`
)

var (
	v1       = keys.Scheme{Prefix: "melb_suburb_geojson_", Version: "v1"}
	v2       = keys.Scheme{Prefix: "melb_suburb_geojson_", Version: "v2"}
	richmond = model.Region{Name: "Richmond", Postcode: 3121, Population: 30000, Area: 6.1, Lat: -37.82, Lng: 144.99}
	carlton  = model.Region{Name: "Carlton", Postcode: 3053, Population: 16055, Area: 1.8, Lat: -37.80, Lng: 144.967}
)

func mustParse(t *testing.T, s string) *boundary.Boundary {
	t.Helper()
	b, err := boundary.ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return b
}

// fakeFetcher counts calls and optionally blocks until released.
type fakeFetcher struct {
	calls   atomic.Int32
	result  *boundary.Boundary
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *fakeFetcher) FetchBoundary(ctx context.Context, _ model.Region) *boundary.Boundary {
	f.calls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil
		}
	}
	return f.result
}

func newStore(m medium.Medium, s keys.Scheme) *boundarystore.Store {
	return boundarystore.New(m, container, s)
}

func TestResolve_CachedEntrySkipsRemote(t *testing.T) {
	ctx := context.Background()
	st := newStore(medium.NewMemory(), v1)
	want := mustParse(t, polygonJSON)
	if err := st.Put(ctx, "Richmond", want); err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{result: mustParse(t, carltonPolygon)}
	r := New(st, bundle.FromMap(nil), f)

	res := r.Resolve(ctx, richmond)
	if res.Source != model.Cached || !res.Boundary.Equal(want) {
		t.Fatalf("want cached polygon, got %+v", res)
	}
	if b := r.ResolveOnDemand(ctx, richmond); !b.Equal(want) {
		t.Fatal("on-demand should return the cached boundary")
	}
	if n := f.calls.Load(); n != 0 {
		t.Fatalf("no network call expected, got %d", n)
	}
}

func TestResolve_BundledIsWrittenThrough(t *testing.T) {
	ctx := context.Background()
	st := newStore(medium.NewMemory(), v1)
	bn := bundle.FromMap(map[string]string{v1.Key("Carlton"): carltonPolygon})
	f := &fakeFetcher{}
	r := New(st, bn, f)

	res := r.Resolve(ctx, carlton)
	if res.Source != model.BundledFallback {
		t.Fatalf("want bundled, got %s", res.Source)
	}
	cached, ok := st.Get(ctx, "Carlton")
	if !ok || !cached.Equal(res.Boundary) {
		t.Fatal("bundled boundary should be cached with an equivalent value")
	}
	if again := r.Resolve(ctx, carlton); again.Source != model.Cached || !again.Boundary.Equal(res.Boundary) {
		t.Fatalf("second pass should read the cache, got %+v", again)
	}
	if f.calls.Load() != 0 {
		t.Fatal("bundle path must not fetch")
	}
}

func TestResolve_BundleWriteFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	m := medium.NewMemory()
	m.SetErr = errors.New("quota exceeded")
	st := newStore(m, v1)
	r := New(st, bundle.FromMap(map[string]string{v1.Key("Carlton"): carltonPolygon}), nil)

	res := r.Resolve(ctx, carlton)
	if res.Source != model.BundledFallback || res.Boundary == nil {
		t.Fatalf("bundled boundary should still be used, got %+v", res)
	}
}

func TestResolve_UnparsableBundleFallsThrough(t *testing.T) {
	r := New(newStore(medium.NewMemory(), v1), bundle.FromMap(map[string]string{v1.Key("Carlton"): "{not json"}), nil)
	if res := r.Resolve(context.Background(), carlton); res.Source != model.Unresolved || res.Boundary != nil {
		t.Fatalf("want unresolved, got %+v", res)
	}
}

func TestResolve_VersionBumpIgnoresOldEntries(t *testing.T) {
	ctx := context.Background()
	m := medium.NewMemory()
	if err := newStore(m, v1).Put(ctx, "Richmond", mustParse(t, polygonJSON)); err != nil {
		t.Fatal(err)
	}
	// the bundle still carries only v1 keys
	bn := bundle.FromMap(map[string]string{v1.Key("Carlton"): carltonPolygon, v2.Key("Carlton"): carltonPolygon})
	r := New(newStore(m, v2), bn, &fakeFetcher{})

	if res := r.Resolve(ctx, richmond); res.Source != model.Unresolved {
		t.Fatalf("v1 entry must not satisfy v2, got %s", res.Source)
	}
	if res := r.Resolve(ctx, carlton); res.Source != model.BundledFallback {
		t.Fatalf("v2 falls through to bundle, got %s", res.Source)
	}
}

func TestResolve_CorruptEntryReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	m := medium.NewMemory()
	if err := m.Set(ctx, container, `{"melb_suburb_geojson_v1_Richmond":"{broken","melb_suburb_geojson_v1_Carlton":42}`); err != nil {
		t.Fatal(err)
	}
	r := New(newStore(m, v1), bundle.FromMap(map[string]string{v1.Key("Carlton"): carltonPolygon}), nil)

	if res := r.Resolve(ctx, richmond); res.Source != model.Unresolved {
		t.Fatalf("corrupt entry should read as absent, got %s", res.Source)
	}
	if res := r.Resolve(ctx, carlton); res.Source != model.BundledFallback {
		t.Fatalf("non-string entry should fall through to bundle, got %s", res.Source)
	}

	if err := m.Set(ctx, container, `not a container`); err != nil {
		t.Fatal(err)
	}
	if res := r.Resolve(ctx, richmond); res.Source != model.Unresolved {
		t.Fatalf("corrupt container should read as absent, got %s", res.Source)
	}
}

func TestResolveAll_InCatalogOrder(t *testing.T) {
	ctx := context.Background()
	st := newStore(medium.NewMemory(), v1)
	if err := st.Put(ctx, "Richmond", mustParse(t, polygonJSON)); err != nil {
		t.Fatal(err)
	}
	r := New(st, bundle.FromMap(map[string]string{v1.Key("Carlton"): carltonPolygon}), &fakeFetcher{})
	other := model.Region{Name: "Kew", Population: 24499}

	got := r.ResolveAll(ctx, []model.Region{richmond, carlton, other})
	want := []model.Outcome{model.Cached, model.BundledFallback, model.Unresolved}
	if len(got) != len(want) {
		t.Fatalf("len %d", len(got))
	}
	for i, res := range got {
		if res.Source != want[i] {
			t.Fatalf("%s: got %s want %s", res.Region, res.Source, want[i])
		}
	}
}

func TestResolveOnDemand_DedupsInFlight(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{
		result:  mustParse(t, polygonJSON),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := New(newStore(medium.NewMemory(), v1), nil, f)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*boundary.Boundary, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = r.ResolveOnDemand(ctx, richmond)
	}()
	<-f.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.ResolveOnDemand(ctx, richmond)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Fatalf("want exactly one network call, got %d", n)
	}
	for i, b := range results {
		if b == nil || !b.Equal(f.result) {
			t.Fatalf("caller %d got %v", i, b)
		}
	}
	if b := r.ResolveOnDemand(ctx, richmond); b == nil || f.calls.Load() != 1 {
		t.Fatal("resolved region must not be fetched again")
	}
}

func TestResolveOnDemand_SupersededFetchStillCaches(t *testing.T) {
	f := &fakeFetcher{
		result:  mustParse(t, polygonJSON),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	st := newStore(medium.NewMemory(), v1)
	r := New(st, nil, f, WithFetchTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *boundary.Boundary, 1)
	go func() { done <- r.ResolveOnDemand(ctx, richmond) }()
	<-f.started
	cancel()
	if b := <-done; b != nil {
		t.Fatal("cancelled caller should get nil")
	}
	close(f.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if b, ok := st.Get(context.Background(), "Richmond"); ok {
			if !b.Equal(f.result) {
				t.Fatal("cached boundary differs")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("superseded fetch was not cached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResolveOnDemand_CacheFailureKeepsSessionCopy(t *testing.T) {
	ctx := context.Background()
	m := medium.NewMemory()
	m.SetErr = errors.New("quota exceeded")
	f := &fakeFetcher{result: mustParse(t, polygonJSON)}
	r := New(newStore(m, v1), nil, f)

	if b := r.ResolveOnDemand(ctx, richmond); b == nil {
		t.Fatal("fetched boundary should be returned despite the failed write")
	}
	res := r.Resolve(ctx, richmond)
	if res.Source != model.FetchedRemote || res.Boundary == nil {
		t.Fatalf("session should remember the fetched boundary, got %+v", res)
	}

	r.Forget("Richmond")
	if res := r.Resolve(ctx, richmond); res.Source != model.Unresolved {
		t.Fatalf("forgotten region should be unresolved, got %s", res.Source)
	}
}

func TestResolveOnDemand_FailureStaysUnresolved(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}
	st := newStore(medium.NewMemory(), v1)
	r := New(st, nil, f)

	if b := r.ResolveOnDemand(ctx, richmond); b != nil {
		t.Fatal("want nil")
	}
	if res := r.Resolve(ctx, richmond); res.Source != model.Unresolved {
		t.Fatalf("want unresolved, got %s", res.Source)
	}
	if names, _ := st.Regions(ctx); len(names) != 0 {
		t.Fatalf("no entry expected, got %v", names)
	}
	// a new selection is a user retry
	_ = r.ResolveOnDemand(ctx, richmond)
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("each selection after a failure retries once, got %d calls", n)
	}
}

func nominatimServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newNominatim(url string) *nominatim.Client {
	hc := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	return nominatim.New(nominatim.Config{
		BaseURL: url,
		Suffix:  "Melbourne, Victoria, Australia",
		Timeout: 2 * time.Second,
	}, hc, nil)
}

func TestRichmondEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv, calls := nominatimServer(t, `[{"geojson":`+polygonJSON+`}]`)
	m := medium.NewMemory()
	r := New(newStore(m, v1), bundle.FromMap(nil), newNominatim(srv.URL))

	first := r.Resolve(ctx, richmond)
	if first.Source != model.Unresolved {
		t.Fatalf("want unresolved, got %s", first.Source)
	}
	marker := layers.Build(richmond, first.Boundary, first.Source, "#e6194b", true)
	if marker.Kind != layers.KindMarker || marker.Radius != 10 {
		t.Fatalf("initial render should be a radius 10 marker, got %+v", marker)
	}

	b := r.ResolveOnDemand(ctx, richmond)
	if b == nil || b.Kind() != boundary.KindPolygon {
		t.Fatalf("want fetched polygon, got %v", b)
	}
	names, err := newStore(m, v1).Regions(ctx)
	if err != nil || len(names) != 1 || names[0] != "Richmond" {
		t.Fatalf("cache should hold Richmond, got %v err %v", names, err)
	}

	// reload: fresh resolver over the same cache medium
	reloaded := New(newStore(m, v1), bundle.FromMap(nil), newNominatim(srv.URL))
	again := reloaded.Resolve(ctx, richmond)
	if again.Source != model.Cached || !again.Boundary.Equal(b) {
		t.Fatalf("reload should be cached with the same polygon, got %+v", again)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("want one network call in total, got %d", n)
	}
}

func TestEmptyRemoteResultLeavesMarker(t *testing.T) {
	ctx := context.Background()
	srv, calls := nominatimServer(t, `[]`)
	st := newStore(medium.NewMemory(), v1)
	r := New(st, nil, newNominatim(srv.URL))

	if b := r.ResolveOnDemand(ctx, richmond); b != nil {
		t.Fatal("empty result should be nil")
	}
	res := r.Resolve(ctx, richmond)
	if res.Source != model.Unresolved {
		t.Fatalf("want unresolved, got %s", res.Source)
	}
	if l := layers.Build(richmond, res.Boundary, res.Source, "#fff", true); l.Kind != layers.KindMarker {
		t.Fatalf("region should stay a marker, got %s", l.Kind)
	}
	if names, _ := st.Regions(ctx); len(names) != 0 {
		t.Fatalf("no cache entry expected, got %v", names)
	}
	if calls.Load() != 1 {
		t.Fatalf("want one call, got %d", calls.Load())
	}
}
