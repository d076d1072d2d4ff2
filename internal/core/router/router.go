// Package router serves the tile and catalog endpoints.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlasgrid/pgtiles/internal/cache"
	"github.com/atlasgrid/pgtiles/internal/cache/keys"
	"github.com/atlasgrid/pgtiles/internal/catalog"
	"github.com/atlasgrid/pgtiles/internal/core/config"
	"github.com/atlasgrid/pgtiles/internal/core/executor"
	"github.com/atlasgrid/pgtiles/internal/core/observability"
	"github.com/atlasgrid/pgtiles/internal/negotiate"
	"github.com/atlasgrid/pgtiles/internal/tile"
	"github.com/atlasgrid/pgtiles/internal/tilejson"
)

// Handler serves tiles from the current catalog snapshot. All state it
// touches is immutable or internally synchronized, so one Handler
// serves every request.
type Handler struct {
	log   *slog.Logger
	cfg   config.Config
	store *catalog.Store
	exec  executor.Interface
	cache cache.Interface
}

func New(log *slog.Logger, cfg config.Config, store *catalog.Store, exec executor.Interface, c cache.Interface) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Handler{log: log, cfg: cfg, store: store, exec: exec, cache: c}
}

// Index lists the function sources accepted into the current snapshot
// along with the rejection report from the catalog build.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

	snap := h.store.Current()
	out := struct {
		Version  uint64              `json:"version"`
		Sources  []string            `json:"sources"`
		Rejected []catalog.Rejection `json:"rejected,omitempty"`
	}{
		Version:  snap.Version,
		Sources:  snap.IDs(),
		Rejected: snap.Report().Rejected,
	}
	writeJSON(sw, out)
	observability.ObserveHTTP(r.Method, "/rpc/index.json", sw.code, time.Since(start).Seconds())
}

// SourceJSON emits the TileJSON document for one source.
func (h *Handler) SourceJSON(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/rpc/{source}.json", sw.code, time.Since(start).Seconds())
	}()

	id := chi.URLParam(r, "source")
	if _, ok := h.store.Current().Plan(id); !ok {
		http.Error(sw, fmt.Sprintf("function source %q not found", id), http.StatusNotFound)
		return
	}
	writeJSON(sw, tilejsonFor(r, id))
}

// Routes mounts the catalog endpoints. The tile route keeps martin's
// /rpc prefix so existing clients keep working.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/rpc/index.json", h.Index)
	r.Get("/rpc/{source}.json", h.SourceJSON)
	r.Get("/rpc/{source}/{z}/{x}/{y}.{ext}", h.Tile)
	return r
}

// TileRequest is one parsed tile path.
type TileRequest struct {
	Source string
	Z      int
	X      int
	Y      int
	Ext    string
}

// ParseTilePath validates the chi URL params of a tile route.
func ParseTilePath(r *http.Request) (TileRequest, error) {
	var req TileRequest
	req.Source = chi.URLParam(r, "source")
	req.Ext = strings.ToLower(chi.URLParam(r, "ext"))

	var err error
	if req.Z, err = parseCoord(chi.URLParam(r, "z")); err != nil {
		return TileRequest{}, fmt.Errorf("invalid z: %w", err)
	}
	if req.X, err = parseCoord(chi.URLParam(r, "x")); err != nil {
		return TileRequest{}, fmt.Errorf("invalid x: %w", err)
	}
	if req.Y, err = parseCoord(chi.URLParam(r, "y")); err != nil {
		return TileRequest{}, fmt.Errorf("invalid y: %w", err)
	}
	if req.Z > 30 {
		return TileRequest{}, errors.New("zoom out of range")
	}
	if limit := 1 << req.Z; req.X >= limit || req.Y >= limit {
		return TileRequest{}, fmt.Errorf("x/y out of range for zoom %d", req.Z)
	}
	if formatForExt(req.Ext) == tile.FormatUnknown {
		return TileRequest{}, fmt.Errorf("unsupported tile extension %q", req.Ext)
	}
	return req, nil
}

func parseCoord(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative coordinate")
	}
	return n, nil
}

// formatForExt maps the request extension to the format the caller
// expects. MVT bytes carry no magic, so this context is what confirms
// a vector tile.
func formatForExt(ext string) tile.Format {
	switch ext {
	case "pbf", "mvt":
		return tile.FormatMvt
	case "png":
		return tile.FormatPng
	case "jpg", "jpeg":
		return tile.FormatJpeg
	case "webp":
		return tile.FormatWebp
	case "gif":
		return tile.FormatGif
	case "json", "geojson":
		return tile.FormatJSON
	default:
		return tile.FormatUnknown
	}
}

// Tile serves one z/x/y tile from a function source.
func (h *Handler) Tile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/rpc/{source}/{z}/{x}/{y}", sw.code, time.Since(start).Seconds())
	}()

	req, err := ParseTilePath(r)
	if err != nil {
		http.Error(sw, err.Error(), http.StatusBadRequest)
		return
	}

	plan, ok := h.store.Current().Plan(req.Source)
	if !ok {
		http.Error(sw, fmt.Sprintf("function source %q not found", req.Source), http.StatusNotFound)
		return
	}

	var query []byte
	if plan.HasQuery() {
		query = catalog.EncodeQuery(r.URL.Query())
	}

	data, etag, err := h.fetch(r.Context(), plan, req, query)
	if err != nil {
		h.log.Error("tile fetch failed", "source", req.Source, "err", err)
		http.Error(sw, "tile unavailable", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		sw.WriteHeader(http.StatusNoContent)
		return
	}

	if etag != "" {
		quoted := `"` + etag + `"`
		if r.Header.Get("If-None-Match") == quoted {
			sw.WriteHeader(http.StatusNotModified)
			return
		}
		sw.Header().Set("ETag", quoted)
	}

	content := classifyWithContext(data, formatForExt(req.Ext))
	if err := tile.Validate(content.Format, content.Encoding); err != nil {
		h.log.Error("tile payload invalid", "source", req.Source,
			"format", content.Format.String(), "encoding", content.Encoding.String())
		http.Error(sw, err.Error(), http.StatusInternalServerError)
		return
	}

	content, err = negotiate.Negotiate(content, negotiate.ParseAccept(r.Header.Get("Accept-Encoding")))
	if err != nil {
		if errors.Is(err, negotiate.ErrNoAcceptableEncoding) {
			http.Error(sw, err.Error(), http.StatusNotAcceptable)
			return
		}
		h.log.Error("negotiation failed", "source", req.Source, "err", err)
		http.Error(sw, "tile unavailable", http.StatusInternalServerError)
		return
	}

	ct, ce, err := tile.Headers(content.Format, content.Encoding)
	if err != nil {
		http.Error(sw, err.Error(), http.StatusInternalServerError)
		return
	}
	sw.Header().Set("Content-Type", ct)
	if ce != "" {
		sw.Header().Set("Content-Encoding", ce)
		sw.Header().Set("Vary", "Accept-Encoding")
	}
	_, _ = sw.Write(content.Data)
}

// fetch looks the tile up in the cache and falls back to execution.
// Cache failures degrade to direct execution, never to request errors.
func (h *Handler) fetch(ctx context.Context, plan catalog.CallPlan, req TileRequest, query []byte) ([]byte, string, error) {
	key := keys.Key(req.Source, req.Z, req.X, req.Y, query)

	cctx, cancel := context.WithTimeout(ctx, h.cfg.CacheOpTimeout)
	cached, hit, err := h.cache.Get(cctx, key)
	cancel()
	if err != nil {
		h.log.Warn("cache get failed", "key", key, "err", err)
	}
	if hit {
		t := decodeCached(cached)
		return t.Data, t.ETag, nil
	}

	t, err := h.exec.FetchTile(ctx, plan, req.Z, req.X, req.Y, query)
	if err != nil {
		return nil, "", err
	}
	if len(t.Data) > 0 {
		// fill the cache even when the client goes away mid-request
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.CacheOpTimeout)
		if err := h.cache.Set(cctx, key, encodeCached(t), h.cfg.TTLFor(req.Source)); err != nil {
			h.log.Warn("cache set failed", "key", key, "err", err)
		}
		cancel()
	}
	return t.Data, t.ETag, nil
}

// Cached entries prepend the ETag so hits keep their validator:
// <uvarint etag len><etag><tile bytes>.
func encodeCached(t executor.Tile) []byte {
	etag := []byte(t.ETag)
	out := make([]byte, 0, len(etag)+len(t.Data)+2)
	out = appendUvarint(out, uint64(len(etag)))
	out = append(out, etag...)
	return append(out, t.Data...)
}

func decodeCached(b []byte) executor.Tile {
	n, used := uvarint(b)
	if used <= 0 || uint64(len(b)-used) < n {
		// not a framed entry; serve the whole value as tile bytes
		return executor.Tile{Data: b}
	}
	return executor.Tile{
		ETag: string(b[used : used+int(n)]),
		Data: b[used+int(n):],
	}
}

func appendUvarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func uvarint(b []byte) (uint64, int) {
	var v uint64
	var s uint
	for i, c := range b {
		if i > 9 {
			return 0, -1
		}
		if c < 0x80 {
			return v | uint64(c)<<s, i + 1
		}
		v |= uint64(c&0x7F) << s
		s += 7
	}
	return 0, 0
}

// classifyWithContext reconciles sniffed content against the format
// the request extension promises. Sniffing wins when it finds a
// concrete format; the extension fills in what sniffing cannot see.
func classifyWithContext(data []byte, expected tile.Format) tile.Content {
	f, e := tile.Classify(data)
	if f == tile.FormatUnknown {
		f = expected
	}
	return tile.Content{Format: f, Encoding: e, Data: data}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

// tilejsonFor builds the TileJSON document pointing back at this
// server, honoring x-rewrite-url when a proxy rewrote the path.
func tilejsonFor(r *http.Request, id string) tilejson.Document {
	path := r.URL.Path
	if hdr := r.Header.Get("x-rewrite-url"); hdr != "" {
		path = hdr
	}
	path = strings.TrimSuffix(path, ".json")

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	query := ""
	if r.URL.RawQuery != "" {
		query = "?" + r.URL.RawQuery
	}
	tiles := fmt.Sprintf("%s://%s%s/{z}/{x}/{y}.pbf%s", scheme, r.Host, path, query)
	return tilejson.New(id, tiles)
}
