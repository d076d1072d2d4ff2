package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlasgrid/pgtiles/internal/cache/memstore"
	"github.com/atlasgrid/pgtiles/internal/catalog"
	"github.com/atlasgrid/pgtiles/internal/core/config"
	"github.com/atlasgrid/pgtiles/internal/core/executor"
	"github.com/atlasgrid/pgtiles/internal/negotiate"
	"github.com/atlasgrid/pgtiles/internal/tile"
)

type fakeExec struct {
	tile     executor.Tile
	err      error
	calls    int
	lastZ    int
	lastX    int
	lastY    int
	lastJSON string
}

func (f *fakeExec) FetchTile(_ context.Context, _ catalog.CallPlan, z, x, y int, query []byte) (executor.Tile, error) {
	f.calls++
	f.lastZ, f.lastX, f.lastY = z, x, y
	f.lastJSON = string(query)
	return f.tile, f.err
}

func testConfig() config.Config {
	return config.Config{
		CacheOpTimeout:  100 * time.Millisecond,
		CacheTTLDefault: time.Minute,
	}
}

func testStore(t *testing.T, metas ...catalog.FuncMeta) *catalog.Store {
	t.Helper()
	if metas == nil {
		metas = []catalog.FuncMeta{{
			Name: "roads",
			Args: []catalog.FuncArg{
				{Name: "z", Type: "integer"},
				{Name: "x", Type: "integer"},
				{Name: "y", Type: "integer"},
			},
			Return: []catalog.FuncArg{{Type: "bytea"}},
		}}
	}
	st := catalog.NewStore()
	snap := st.Publish(metas, catalog.Options{})
	if len(snap.Report().Rejected) != 0 {
		t.Fatalf("test catalog rejected: %+v", snap.Report().Rejected)
	}
	return st
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Routes(h).ServeHTTP(rec, req)
	return rec
}

func TestTile_ServesMvt(t *testing.T) {
	exec := &fakeExec{tile: executor.Tile{Data: []byte{0x1A, 0x05, 0x01, 0x02}}}
	h := New(nil, testConfig(), testStore(t), exec, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/roads/3/1/2.pbf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("content-type = %q", ct)
	}
	if ce := rec.Header().Get("Content-Encoding"); ce != "" {
		t.Fatalf("unexpected content-encoding %q", ce)
	}
	if exec.lastZ != 3 || exec.lastX != 1 || exec.lastY != 2 {
		t.Fatalf("coords = %d/%d/%d", exec.lastZ, exec.lastX, exec.lastY)
	}
}

func TestTile_EmptyTileIs204(t *testing.T) {
	h := New(nil, testConfig(), testStore(t), &fakeExec{}, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/roads/0/0/0.pbf", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTile_UnknownSourceIs404(t *testing.T) {
	h := New(nil, testConfig(), testStore(t), &fakeExec{}, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/nope/0/0/0.pbf", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTile_BadPathIs400(t *testing.T) {
	h := New(nil, testConfig(), testStore(t), &fakeExec{}, nil)
	for _, path := range []string{
		"/rpc/roads/abc/0/0.pbf",
		"/rpc/roads/2/9/0.pbf", // x out of range at z=2
		"/rpc/roads/0/0/0.exe",
	} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestTile_ExecutorErrorIs500(t *testing.T) {
	h := New(nil, testConfig(), testStore(t), &fakeExec{err: errors.New("boom")}, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/roads/0/0/0.pbf", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTile_GzipPayloadNegotiatedDown(t *testing.T) {
	raw := []byte(`{"type":"FeatureCollection","features":[]}`)
	data, err := negotiate.Encode(raw, tile.EncodingGzip)
	if err != nil {
		t.Fatal(err)
	}
	h := New(nil, testConfig(), testStore(t), &fakeExec{tile: executor.Tile{Data: data}}, nil)

	// no Accept-Encoding: client gets identity bytes back
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/roads/0/0/0.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ce := rec.Header().Get("Content-Encoding"); ce != "" {
		t.Fatalf("content-encoding = %q, want none", ce)
	}
	if rec.Body.String() != string(raw) {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestTile_GzipPassThroughWhenAccepted(t *testing.T) {
	raw := []byte(`{"k":1}`)
	data, err := negotiate.Encode(raw, tile.EncodingGzip)
	if err != nil {
		t.Fatal(err)
	}
	h := New(nil, testConfig(), testStore(t), &fakeExec{tile: executor.Tile{Data: data}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/rpc/roads/0/0/0.json", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ce := rec.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding = %q", ce)
	}
	if rec.Header().Get("Vary") != "Accept-Encoding" {
		t.Fatal("missing Vary header on encoded response")
	}
	if rec.Body.String() != string(data) {
		t.Fatal("pass-through body not byte-identical")
	}
}

func TestTile_QueryParamsReachExecutor(t *testing.T) {
	exec := &fakeExec{tile: executor.Tile{Data: []byte{0x1A}}}
	metas := []catalog.FuncMeta{{
		Name: "roads",
		Args: []catalog.FuncArg{
			{Name: "z", Type: "integer"},
			{Name: "x", Type: "integer"},
			{Name: "y", Type: "integer"},
			{Name: "query", Type: "json"},
		},
		Return: []catalog.FuncArg{{Type: "bytea"}},
	}}
	h := New(nil, testConfig(), testStore(t, metas...), exec, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/roads/1/0/0.pbf?limit=10&name=main", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if exec.lastJSON != `{"limit":10,"name":"main"}` {
		t.Fatalf("query json = %s", exec.lastJSON)
	}
}

func TestTile_ETagAndConditionalRequest(t *testing.T) {
	exec := &fakeExec{tile: executor.Tile{Data: []byte{0x1A, 0x02}, ETag: "v42"}}
	h := New(nil, testConfig(), testStore(t), exec, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/roads/0/0/0.pbf", nil))
	if got := rec.Header().Get("ETag"); got != `"v42"` {
		t.Fatalf("etag = %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/rpc/roads/0/0/0.pbf", nil)
	req.Header.Set("If-None-Match", `"v42"`)
	rec = serve(h, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
}

func TestTile_CacheHitSkipsExecutor(t *testing.T) {
	exec := &fakeExec{tile: executor.Tile{Data: []byte{0x1A, 0x09, 0x08}, ETag: "e1"}}
	h := New(nil, testConfig(), testStore(t), exec, memstore.New(16, time.Minute))

	path := "/rpc/roads/4/7/9.pbf"
	if rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusOK {
		t.Fatalf("first: %d", rec.Code)
	}
	rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("second: %d", rec.Code)
	}
	if exec.calls != 1 {
		t.Fatalf("executor called %d times, want 1", exec.calls)
	}
	if got := rec.Header().Get("ETag"); got != `"e1"` {
		t.Fatalf("cached etag = %q", got)
	}
}

func TestIndex_ListsSourcesAndRejections(t *testing.T) {
	metas := []catalog.FuncMeta{
		{
			Name: "roads",
			Args: []catalog.FuncArg{
				{Name: "z", Type: "integer"}, {Name: "x", Type: "integer"}, {Name: "y", Type: "integer"},
			},
			Return: []catalog.FuncArg{{Type: "bytea"}},
		},
		{Name: "broken", Args: []catalog.FuncArg{{Name: "wat", Type: "text"}}},
	}
	st := catalog.NewStore()
	st.Publish(metas, catalog.Options{})
	h := New(nil, testConfig(), st, &fakeExec{}, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/index.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Version  int      `json:"version"`
		Sources  []string `json:"sources"`
		Rejected []struct {
			ID     string `json:"ID"`
			Reason string `json:"Reason"`
		} `json:"rejected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "roads" {
		t.Fatalf("sources = %v", out.Sources)
	}
	if len(out.Rejected) != 1 || out.Rejected[0].ID != "broken" {
		t.Fatalf("rejected = %+v", out.Rejected)
	}
}

func TestSourceJSON_TileJSONDocument(t *testing.T) {
	h := New(nil, testConfig(), testStore(t), &fakeExec{}, nil)
	req := httptest.NewRequest(http.MethodGet, "http://tiles.example/rpc/roads.json", nil)
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		TileJSON string   `json:"tilejson"`
		Name     string   `json:"name"`
		Tiles    []string `json:"tiles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.TileJSON != "2.2.0" || doc.Name != "roads" {
		t.Fatalf("doc = %+v", doc)
	}
	if len(doc.Tiles) != 1 || !strings.Contains(doc.Tiles[0], "/rpc/roads/{z}/{x}/{y}.pbf") {
		t.Fatalf("tiles = %v", doc.Tiles)
	}
}

func TestSourceJSON_UnknownSource(t *testing.T) {
	h := New(nil, testConfig(), testStore(t), &fakeExec{}, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/rpc/missing.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCachedEntryFraming(t *testing.T) {
	in := executor.Tile{Data: []byte{0x00, 0x01, 0x02}, ETag: "abc"}
	out := decodeCached(encodeCached(in))
	if out.ETag != "abc" || string(out.Data) != string(in.Data) {
		t.Fatalf("round trip = %+v", out)
	}

	noTag := decodeCached(encodeCached(executor.Tile{Data: []byte("xyz")}))
	if noTag.ETag != "" || string(noTag.Data) != "xyz" {
		t.Fatalf("no-etag round trip = %+v", noTag)
	}
}
