package serve

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"chunkplan/internal/chunkorder"
	"chunkplan/internal/chunks"
)

func newTestApp(t *testing.T) (*Options, string) {
	t.Helper()
	dir := t.TempDir()
	table := chunks.NewCompositeTable()
	name, err := table.Intern([]string{"home", "about"})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	data, _ := table.MarshalJSON()
	tablePath := filepath.Join(dir, "composite-chunks.json")
	if err := os.WriteFile(tablePath, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	manifestPath := filepath.Join(dir, "asset-manifest.json")
	if err := os.WriteFile(manifestPath, []byte(`{"home.js":"/static/home.aa.chunk.js"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return &Options{
		Resolver:     chunkorder.New(chunkorder.Config{JSOrder: []string{"vendor.js"}, CSSOrder: []string{"base.css"}, TablePath: tablePath}),
		ManifestPath: manifestPath,
		PublicPath:   "/static/",
		Extra:        map[chunkorder.AssetKind][]string{chunkorder.JS: {"runtime.js"}},
	}, name
}

func get(t *testing.T, opts Options, target string) (int, ChunksResponse) {
	t.Helper()
	app := New(opts)
	resp, err := app.Test(httptest.NewRequest("GET", target, nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var body ChunksResponse
	if resp.StatusCode == 200 {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode, body
}

func TestChunksOrder(t *testing.T) {
	opts, name := newTestApp(t)
	code, body := get(t, *opts, "/chunks/home?extra=a.js,%20b.js")
	if code != 200 {
		t.Fatalf("status = %d", code)
	}
	want := []string{"vendor.js", "runtime.js", "a.js", "b.js", "home.js", name + ".js"}
	if !reflect.DeepEqual(body.Files, want) || body.Kind != "js" || body.Entry != "home" {
		t.Fatalf("got %+v, want files %v", body, want)
	}
}

func TestChunksPublicPaths(t *testing.T) {
	opts, name := newTestApp(t)
	code, body := get(t, *opts, "/chunks/home?kind=css&public=1")
	if code != 200 {
		t.Fatalf("status = %d", code)
	}
	want := []string{"/static/base.css", "/static/home.css", "/static/" + name + ".css"}
	if !reflect.DeepEqual(body.Files, want) {
		t.Fatalf("got %v, want %v", body.Files, want)
	}

	_, body = get(t, *opts, "/chunks/home?public=true")
	if body.Files[2] != "/static/home.aa.chunk.js" {
		t.Fatalf("manifest not applied: %v", body.Files)
	}
}

func TestChunksRejectsUnknownKind(t *testing.T) {
	opts, _ := newTestApp(t)
	if code, _ := get(t, *opts, "/chunks/home?kind=wasm"); code != 400 {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	opts, _ := newTestApp(t)
	opts.Metrics = NewMetrics()
	opts.ManifestPath = filepath.Join(t.TempDir(), "missing.json")
	app := New(*opts)

	for _, target := range []string{"/chunks/home", "/chunks/home?kind=css&public=1", "/chunks/home?kind=wasm"} {
		resp, err := app.Test(httptest.NewRequest("GET", target, nil), -1)
		if err != nil {
			t.Fatalf("app.Test(%s): %v", target, err)
		}
		resp.Body.Close()
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("app.Test(/metrics): %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`chunkplan_chunk_requests_total{kind="js",status="200"} 1`,
		`chunkplan_chunk_requests_total{kind="css",status="200"} 1`,
		`chunkplan_chunk_requests_total{kind="invalid",status="400"} 1`,
		`chunkplan_manifest_unavailable_total 1`,
		`chunkplan_chunk_files_returned_count{kind="js"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	opts, _ := newTestApp(t)
	resp, err := New(*opts).Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
