// Package resolver decides where each region's boundary comes from: the
// cache, then the bundled snapshot, and only on selection the remote service.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/boundary"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote"
)

// Store is the boundary cache. Get never fails and Put failures are not fatal.
type Store interface {
	Key(region string) string
	Get(ctx context.Context, region string) (*boundary.Boundary, bool)
	Put(ctx context.Context, region string, b *boundary.Boundary) error
}

// Bundle is the read-only snapshot, keyed like the cache.
type Bundle interface {
	Lookup(key string) (string, bool)
}

type Resolution struct {
	Region   string             `json:"region"`
	Boundary *boundary.Boundary `json:"boundary"`
	Source   model.Outcome      `json:"source"`
}

type Option func(*Resolver)

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithFetchTimeout bounds a detached on-demand fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.fetchTimeout = d }
}

type Resolver struct {
	store        Store
	bundle       Bundle
	remote       remote.Fetcher
	logger       *slog.Logger
	fetchTimeout time.Duration

	group singleflight.Group

	mu sync.RWMutex
	// boundaries fetched by this process, kept even when the cache write failed
	fetched map[string]*boundary.Boundary
}

func New(store Store, bundle Bundle, fetcher remote.Fetcher, opts ...Option) *Resolver {
	if fetcher == nil {
		fetcher = remote.None{}
	}
	r := &Resolver{
		store:        store,
		bundle:       bundle,
		remote:       fetcher,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		fetchTimeout: 15 * time.Second,
		fetched:      map[string]*boundary.Boundary{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve never touches the network. The first source that yields a
// parseable boundary wins.
func (r *Resolver) Resolve(ctx context.Context, region model.Region) Resolution {
	res := r.resolve(ctx, region)
	observability.ObserveResolution(string(res.Source))
	r.logger.DebugContext(ctx, "region resolved", "region", region.Name, "source", string(res.Source))
	return res
}

func (r *Resolver) resolve(ctx context.Context, region model.Region) Resolution {
	name := region.Name
	if b, ok := r.store.Get(ctx, name); ok {
		return Resolution{Region: name, Boundary: b, Source: model.Cached}
	}
	if b := r.remembered(name); b != nil {
		return Resolution{Region: name, Boundary: b, Source: model.FetchedRemote}
	}
	if b := r.fromBundle(ctx, name); b != nil {
		if err := r.store.Put(ctx, name, b); err != nil {
			r.logger.WarnContext(ctx, "caching bundled boundary failed", "region", name, "err", err)
		}
		return Resolution{Region: name, Boundary: b, Source: model.BundledFallback}
	}
	return Resolution{Region: name, Source: model.Unresolved}
}

func (r *Resolver) fromBundle(ctx context.Context, name string) *boundary.Boundary {
	if r.bundle == nil {
		return nil
	}
	raw, ok := r.bundle.Lookup(r.store.Key(name))
	if !ok {
		return nil
	}
	b, err := boundary.ParseString(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "bundled boundary does not parse", "region", name, "err", err)
		return nil
	}
	return b
}

// ResolveAll runs the startup pass one region at a time, in order.
func (r *Resolver) ResolveAll(ctx context.Context, regions []model.Region) []Resolution {
	out := make([]Resolution, 0, len(regions))
	for _, region := range regions {
		if ctx.Err() != nil {
			out = append(out, Resolution{Region: region.Name, Source: model.Unresolved})
			continue
		}
		out = append(out, r.Resolve(ctx, region))
	}
	return out
}

// ResolveOnDemand fetches the boundary of a selected region. Concurrent calls
// for the same region share one remote request. The fetch is detached from
// ctx: when ctx ends first the caller gets nil but the result is still cached
// once it arrives.
func (r *Resolver) ResolveOnDemand(ctx context.Context, region model.Region) *boundary.Boundary {
	if b := r.remembered(region.Name); b != nil {
		return b
	}
	if b, ok := r.store.Get(ctx, region.Name); ok {
		return b
	}

	ch := r.group.DoChan(region.Name, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return r.fetch(fctx, region), nil
	})

	select {
	case res := <-ch:
		b, _ := res.Val.(*boundary.Boundary)
		return b
	case <-ctx.Done():
		r.logger.DebugContext(ctx, "on-demand fetch superseded", "region", region.Name, "err", ctx.Err())
		return nil
	}
}

func (r *Resolver) fetch(ctx context.Context, region model.Region) *boundary.Boundary {
	b := r.remote.FetchBoundary(ctx, region)
	if b == nil {
		observability.ObserveResolution(string(model.Unresolved))
		return nil
	}
	r.mu.Lock()
	r.fetched[region.Name] = b
	r.mu.Unlock()

	if err := r.store.Put(ctx, region.Name, b); err != nil {
		r.logger.WarnContext(ctx, "caching fetched boundary failed", "region", region.Name, "err", err)
	}
	observability.ObserveResolution(string(model.FetchedRemote))
	r.logger.InfoContext(ctx, "boundary fetched", "region", region.Name, "kind", b.Kind())
	return b
}

func (r *Resolver) remembered(name string) *boundary.Boundary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetched[name]
}

// Forget drops remembered fetches, e.g. after the cache entry was evicted.
// With no names it forgets everything.
func (r *Resolver) Forget(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.fetched = map[string]*boundary.Boundary{}
		return
	}
	for _, n := range names {
		delete(r.fetched, n)
	}
}
