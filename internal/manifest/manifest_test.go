package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLogicalName(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"home.3f2a91.chunk.js", "home.js"},
		{"Page.77aa.chunk.css", "Page.css"},
		{"assets/logo.9b1c.png", "assets/logo.png"},
		{"vendor.js", "vendor.js"},
		{"1c9e2f.ab12.chunk.js", "1c9e2f.js"},
	}
	for _, tt := range tests {
		if got := LogicalName(tt.file); got != tt.want {
			t.Fatalf("LogicalName(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestBuildAndResolve(t *testing.T) {
	m := Build([]string{"home.aa.chunk.js", "/vendor.bb.chunk.js"}, "/static")
	want := Manifest{
		"home.js":   "/static/home.aa.chunk.js",
		"vendor.js": "/static/vendor.bb.chunk.js",
	}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("Build = %v, want %v", m, want)
	}

	got := m.Resolve("/static/", []string{"vendor.js", "home.js", "missing.js"})
	wantFiles := []string{"/static/vendor.bb.chunk.js", "/static/home.aa.chunk.js", "/static/missing.js"}
	if !reflect.DeepEqual(got, wantFiles) {
		t.Fatalf("Resolve = %v, want %v", got, wantFiles)
	}
}

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "asset-manifest.json")
	if err := os.WriteFile(file, []byte(`{"home.js":"/home.aa.chunk.js"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m["home.js"] != "/home.aa.chunk.js" {
		t.Fatalf("manifest = %v", m)
	}

	if err := os.WriteFile(file, []byte(`{`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}
