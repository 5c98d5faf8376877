// Package pkgid maps modules inside the shared-dependency directory to the
// package that owns them.
package pkgid

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrPackageNotFound is returned when no package.json declaring a name owns a path.
var ErrPackageNotFound = errors.New("pkgid: owning package not found")

// Package describes the owning package of a vendor module.
type Package struct {
	Name         string
	Dir          string
	Dependencies []string // sorted keys of "dependencies"
}

type packageJSON struct {
	Name         string            `json:"name"`
	Dependencies map[string]string `json:"dependencies"`
}

type cached struct {
	found bool
	pkg   Package
}

// Resolver resolves vendor module paths to package identities. Safe for
// concurrent use.
type Resolver struct {
	vendorDir string

	mu     sync.RWMutex
	byFile map[string]cached // key: package.json path
}

// New creates a Resolver for the given shared-dependency directory name
// ("node_modules" when empty).
func New(vendorDir string) *Resolver {
	vendorDir = strings.Trim(filepath.ToSlash(vendorDir), "/")
	if vendorDir == "" {
		vendorDir = "node_modules"
	}
	return &Resolver{vendorDir: vendorDir, byFile: make(map[string]cached)}
}

// VendorDir returns the shared-dependency directory name.
func (r *Resolver) VendorDir() string { return r.vendorDir }

// IsVendor reports whether id lies inside the shared-dependency directory.
func (r *Resolver) IsVendor(id string) bool {
	_, _, ok := r.split(stripQuery(id))
	return ok
}

// PackageName returns the declared name of the package owning id.
func (r *Resolver) PackageName(id string) (string, error) {
	pkg, err := r.Resolve(id)
	if err != nil {
		return "", err
	}
	return pkg.Name, nil
}

// Resolve returns the nearest package.json with a declared name between the
// module's directory and its package root (inclusive).
func (r *Resolver) Resolve(id string) (Package, error) {
	clean := stripQuery(id)
	prefix, rest, ok := r.split(clean)
	if !ok {
		return Package{}, fmt.Errorf("%w: %q is outside %s", ErrPackageNotFound, id, r.vendorDir)
	}
	segs := strings.Split(rest, "/")
	depth := 1
	if strings.HasPrefix(segs[0], "@") {
		depth = 2
	}
	if len(segs) < depth || segs[depth-1] == "" {
		return Package{}, fmt.Errorf("%w: malformed package path %q", ErrPackageNotFound, id)
	}
	pkgRoot := path.Join(prefix, path.Join(segs[:depth]...))

	dir := pkgRoot
	if len(segs) > depth {
		// путь к файлу: начинаем с его каталога
		dir = path.Dir(clean)
	}
	for {
		pkg, found, err := r.load(path.Join(dir, "package.json"))
		if err != nil {
			return Package{}, err
		}
		if found {
			return pkg, nil
		}
		if dir == pkgRoot || len(dir) <= len(pkgRoot) {
			break
		}
		dir = path.Dir(dir)
	}
	return Package{}, fmt.Errorf("%w: no package.json with a name above %q", ErrPackageNotFound, id)
}

// split cuts id at its last vendor directory segment.
func (r *Resolver) split(id string) (prefix, rest string, ok bool) {
	marker := r.vendorDir + "/"
	idx := strings.LastIndex(id, "/"+marker)
	switch {
	case idx >= 0:
		prefix = id[:idx+1+len(r.vendorDir)]
		rest = id[idx+1+len(marker):]
	case strings.HasPrefix(id, marker):
		prefix = r.vendorDir
		rest = id[len(marker):]
	default:
		return "", "", false
	}
	if rest == "" {
		return "", "", false
	}
	return prefix, rest, true
}

func (r *Resolver) load(file string) (Package, bool, error) {
	r.mu.RLock()
	rec, ok := r.byFile[file]
	r.mu.RUnlock()
	if ok {
		return rec.pkg, rec.found, nil
	}

	data, err := os.ReadFile(filepath.FromSlash(file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.store(file, cached{})
			return Package{}, false, nil
		}
		return Package{}, false, fmt.Errorf("pkgid: read %s: %w", file, err)
	}
	var meta packageJSON
	if err := json.Unmarshal(data, &meta); err != nil {
		return Package{}, false, fmt.Errorf("pkgid: parse %s: %w", file, err)
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		// nested package.json files (e.g. {"type":"module"}) do not own the module
		r.store(file, cached{})
		return Package{}, false, nil
	}
	deps := make([]string, 0, len(meta.Dependencies))
	for dep := range meta.Dependencies {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	pkg := Package{Name: name, Dir: path.Dir(file), Dependencies: deps}
	r.store(file, cached{found: true, pkg: pkg})
	return pkg, true, nil
}

func (r *Resolver) store(file string, rec cached) {
	r.mu.Lock()
	r.byFile[file] = rec
	r.mu.Unlock()
}

// stripQuery drops bundler query/hash suffixes and normalizes separators.
func stripQuery(id string) string {
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	return filepath.ToSlash(id)
}
