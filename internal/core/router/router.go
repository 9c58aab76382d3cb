// Package router holds the HTTP handlers the map widget talks to.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/catalog"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/layers"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/popularity"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/session"
)

const SessionHeader = "X-Session-ID"

type Catalog interface {
	Lookup(name string) (model.Region, error)
	Locate(lat, lng float64) (model.Region, error)
}

// CacheAdmin is the operator surface of the boundary cache.
type CacheAdmin interface {
	Regions(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, regions ...string) error
	Clear(ctx context.Context) error
}

type Forgetter interface {
	Forget(names ...string)
}

type Handlers struct {
	logger   *slog.Logger
	cat      Catalog
	sessions *session.Manager
	cache    CacheAdmin
	resolver Forgetter
}

func New(logger *slog.Logger, cat Catalog, sessions *session.Manager, cache CacheAdmin, res Forgetter) *Handlers {
	return &Handlers{logger: logger, cat: cat, sessions: sessions, cache: cache, resolver: res}
}

func (h *Handlers) Mount(r chi.Router) {
	r.Get("/regions", h.listLayers)
	r.Get("/regions/{name}", h.detail)
	r.Get("/regions/{name}/summary", h.summary)
	r.Delete("/regions/{name}/summary", h.unhover)
	r.Post("/regions/{name}/select", h.selectRegion)
	r.Get("/locate", h.locate)
	r.Get("/popular", h.popular)
	r.Delete("/session", h.endSession)
	r.Get("/cache", h.listCache)
	r.Delete("/cache", h.clearCache)
	r.Delete("/cache/{name}", h.evict)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *session.Session {
	s, created := h.sessions.Open(r.Context(), r.Header.Get(SessionHeader))
	if created {
		h.logger.DebugContext(r.Context(), "session opened", "session", s.ID)
	}
	w.Header().Set(SessionHeader, s.ID)
	return s
}

func regionParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if v, err := url.PathUnescape(raw); err == nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(raw)
}

type layersResponse struct {
	Session string         `json:"session"`
	Layers  []layers.Layer `json:"layers"`
}

func (h *Handlers) listLayers(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	body, err := json.Marshal(layersResponse{Session: s.ID, Layers: s.Layers()})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "encode layers", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	etag := weakETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func weakETag(body []byte) string {
	return `W/"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

func etagMatches(header, etag string) bool {
	for _, part := range strings.Split(header, ",") {
		p := strings.TrimSpace(part)
		if p == "*" || p == etag || "W/"+p == etag {
			return true
		}
	}
	return false
}

func (h *Handlers) detail(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	d, err := h.sessions.Detail(s, regionParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type summaryResponse struct {
	session.Summary
	Layer layers.Layer `json:"layer"`
}

func (h *Handlers) summary(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	sum, l, err := h.sessions.Hover(s, regionParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: sum, Layer: l})
}

// unhover is the mouseout of a region.
func (h *Handlers) unhover(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	l, err := h.sessions.Unhover(s, regionParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hovered": s.Hovered(), "layer": l})
}

func (h *Handlers) endSession(w http.ResponseWriter, r *http.Request) {
	if id := r.Header.Get(SessionHeader); id != "" {
		h.sessions.Drop(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) selectRegion(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	res, err := h.sessions.Select(r.Context(), s, regionParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) locate(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := parseLatLng(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	region, err := h.cat.Locate(lat, lng)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (h *Handlers) popular(w http.ResponseWriter, r *http.Request) {
	n := 5
	if v := r.URL.Query().Get("n"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 50 {
			http.Error(w, "n must be in [1,50]", http.StatusBadRequest)
			return
		}
		n = p
	}
	top := h.sessions.Popular(n)
	if top == nil {
		top = []popularity.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string][]popularity.Entry{"regions": top})
}

func parseLatLng(q url.Values) (float64, float64, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lng")), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lng: %w", err)
	}
	if lat < -90 || lat > 90 {
		return 0, 0, errors.New("latitude must be in [-90,90]")
	}
	if lng < -180 || lng > 180 {
		return 0, 0, errors.New("longitude must be in [-180,180]")
	}
	return lat, lng, nil
}

func (h *Handlers) listCache(w http.ResponseWriter, r *http.Request) {
	names, err := h.cache.Regions(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "list cache", "err", err)
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"regions": names})
}

func (h *Handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "clear cache", "err", err)
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	h.resolver.Forget()
	if id := r.Header.Get(SessionHeader); id != "" {
		if s, ok := h.sessions.Get(id); ok {
			h.sessions.ResetAll(r.Context(), s)
		}
	}
	h.logger.InfoContext(r.Context(), "boundary cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) evict(w http.ResponseWriter, r *http.Request) {
	name := regionParam(r)
	if _, err := h.cat.Lookup(name); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.cache.Delete(r.Context(), name); err != nil {
		h.logger.WarnContext(r.Context(), "evict cache entry", "region", name, "err", err)
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	h.resolver.Forget(name)
	if id := r.Header.Get(SessionHeader); id != "" {
		if s, ok := h.sessions.Get(id); ok {
			h.sessions.Reset(r.Context(), s, name)
		}
	}
	h.logger.InfoContext(r.Context(), "boundary cache entry evicted", "region", name)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownRegion):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrNotSelectable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
