// Package manifest correlates logical asset names with emitted public paths.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
)

// Manifest maps logical names ("home.js") to public paths ("/home.3f2a.chunk.js").
type Manifest map[string]string

// LogicalName strips the content hash from an emitted file name:
// "name.<hash>.chunk.<ext>" and "name.<hash>.<ext>" both become "name.<ext>".
func LogicalName(file string) string {
	dir, base := path.Split(file)
	parts := strings.Split(base, ".")
	switch {
	case len(parts) >= 4 && parts[len(parts)-2] == "chunk":
		parts = append(parts[:len(parts)-3:len(parts)-3], parts[len(parts)-1])
	case len(parts) >= 3:
		parts = append(parts[:len(parts)-2:len(parts)-2], parts[len(parts)-1])
	}
	return dir + strings.Join(parts, ".")
}

// Build creates a manifest for the emitted files under publicPath.
func Build(files []string, publicPath string) Manifest {
	m := make(Manifest, len(files))
	for _, f := range files {
		f = strings.TrimPrefix(f, "/")
		m[LogicalName(f)] = joinPublic(publicPath, f)
	}
	return m
}

// Resolve maps logical names to public paths. Unknown names are served from
// publicPath unchanged.
func (m Manifest) Resolve(publicPath string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if p, ok := m[name]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, joinPublic(publicPath, name))
	}
	return out
}

// Load reads a manifest written by persist.Writer.
func Load(file string) (Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", file, err)
	}
	return m, nil
}

func joinPublic(publicPath, file string) string {
	if publicPath == "" {
		publicPath = "/"
	}
	if !strings.HasSuffix(publicPath, "/") {
		publicPath += "/"
	}
	return publicPath + strings.TrimPrefix(file, "/")
}
