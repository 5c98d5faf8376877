// Package tags records which chunks need which modules while the module graph
// is being crawled.
//
// Every module identity owns an append-only, insertion-ordered tag list.
// Duplicates are kept; consumers deduplicate on read. Modules inside the
// shared-dependency directory are keyed by their owning package name so that
// all files of one package aggregate under one identity.
package tags

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/text/unicode/norm"

	"chunkplan/internal/pkgid"
)

const (
	// Exclude asks the bundler to fall back to its default chunking.
	Exclude = "void"
	// Dynamic marks an edge that crossed a dynamic import boundary.
	Dynamic = "dynamic"
	// Vendor marks third-party code.
	Vendor = "vendor"
	// ClientEntry is the tag of the client bootstrap entry.
	ClientEntry = "client-entry"
)

// ErrSealed is returned by Record once the crawl has been finalized.
var ErrSealed = errors.New("tags: recorder is sealed")

// PackageResolver resolves vendor modules to their owning package.
type PackageResolver interface {
	IsVendor(id string) bool
	Resolve(id string) (pkgid.Package, error)
}

// Options tune a single Record call.
type Options struct {
	// DefaultTag seeds the tag list when the identity is seen for the first time.
	DefaultTag string
	// Parent is a module whose accumulated tags are inherited.
	Parent string
}

// Recorder owns the tag table of one build.
type Recorder struct {
	resolver PackageResolver

	mu     sync.Mutex
	index  Index
	tags   [][]string // tags[ModuleID]
	sealed bool
}

// NewRecorder creates an empty recorder. A nil resolver disables vendor
// aggregation.
func NewRecorder(resolver PackageResolver) *Recorder {
	return &Recorder{
		resolver: resolver,
		index:    newIndex(256),
		tags:     make([][]string, 0, 256),
	}
}

// Record notes that id is needed by tag. See Options for inheritance.
func (r *Recorder) Record(id, tag string, opts Options) error {
	key, pkg, err := r.identity(id)
	if err != nil {
		return err
	}
	parentKey := ""
	if opts.Parent != "" {
		if parentKey, _, err = r.identity(opts.Parent); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: late record for %q", ErrSealed, id)
	}

	mid, err := r.ensureLocked(key, opts.DefaultTag)
	if err != nil {
		return err
	}
	if tag != "" {
		r.tags[mid] = append(r.tags[mid], tag)
	}
	if pkg != nil {
		r.tags[mid] = append(r.tags[mid], Vendor)
		for _, dep := range pkg.Dependencies {
			did, err := r.ensureLocked(normalize(dep), "")
			if err != nil {
				return err
			}
			r.tags[did] = append(r.tags[did], r.tags[mid]...)
		}
	}
	if parentKey != "" {
		if pid, ok := r.index.Lookup(parentKey); ok {
			r.tags[mid] = append(r.tags[mid], r.tags[pid]...)
		}
	}
	return nil
}

// Has reports whether id has been recorded.
func (r *Recorder) Has(id string) (bool, error) {
	key, _, err := r.identity(id)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index.Lookup(key)
	return ok, nil
}

// Tags returns a copy of the raw accumulated tag list for id.
func (r *Recorder) Tags(id string) ([]string, error) {
	key, _, err := r.identity(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	mid, ok := r.index.Lookup(key)
	if !ok {
		return nil, nil
	}
	return append([]string(nil), r.tags[mid]...), nil
}

// Unique returns the deduplicated tags of id in first-seen order.
func (r *Recorder) Unique(id string) ([]string, error) {
	raw, err := r.Tags(id)
	if err != nil {
		return nil, err
	}
	return Dedup(raw), nil
}

// Identity returns the normalized identity that id is recorded under.
func (r *Recorder) Identity(id string) (string, error) {
	key, _, err := r.identity(id)
	return key, err
}

// Identities lists every recorded identity in first-seen order.
func (r *Recorder) Identities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.index.IDToName...)
}

// Len returns the number of recorded identities.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index.Len()
}

// Seal freezes the table; subsequent Record calls fail with ErrSealed.
func (r *Recorder) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Recorder) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

func (r *Recorder) ensureLocked(key, defaultTag string) (ModuleID, error) {
	mid, created, err := r.index.Intern(key)
	if err != nil {
		return 0, err
	}
	if created {
		var seed []string
		if defaultTag != "" {
			seed = []string{defaultTag}
		} else {
			seed = []string{}
		}
		r.tags = append(r.tags, seed)
	}
	return mid, nil
}

// identity normalizes id; vendor modules resolve to their package.
func (r *Recorder) identity(id string) (string, *pkgid.Package, error) {
	if r.resolver != nil && r.resolver.IsVendor(id) {
		pkg, err := r.resolver.Resolve(id)
		if err != nil {
			return "", nil, fmt.Errorf("tags: resolve package for %q: %w", id, err)
		}
		return normalize(pkg.Name), &pkg, nil
	}
	return normalize(id), nil, nil
}

func normalize(id string) string {
	return norm.NFC.String(filepath.ToSlash(id))
}

// Dedup removes repeated tags keeping the first occurrence.
func Dedup(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, t := range list {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
