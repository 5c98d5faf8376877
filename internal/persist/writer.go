// Package persist writes the artifacts of a finished crawl: the composite
// chunk table, the final assignment map and the asset manifest.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"chunkplan/internal/chunks"
	"chunkplan/internal/manifest"
)

// Current schema version - increment when the assignment payload changes.
const assignmentSchemaVersion uint16 = 1

// ErrSchemaMismatch is returned when a persisted assignment map was written by
// an incompatible version.
var ErrSchemaMismatch = errors.New("persist: assignment schema mismatch")

// Paths says where each artifact goes. Empty paths are skipped.
type Paths struct {
	Composites  string
	Assignments string
	Manifest    string
}

// Artifacts is one flush worth of data. Nil fields are not written.
type Artifacts struct {
	Composites  *chunks.CompositeTable
	Assignments map[string]string
	Manifest    manifest.Manifest
}

// assignmentPayload is the msgpack layout of the final assignment map.
type assignmentPayload struct {
	Schema      uint16
	Assignments map[string]string
}

// Writer serializes artifacts. Every file is written to a temp file in the
// target directory and renamed into place, so readers never see partial data.
type Writer struct {
	paths Paths
}

// NewWriter creates a Writer for the given paths.
func NewWriter(paths Paths) *Writer {
	return &Writer{paths: paths}
}

// Flush writes every non-nil artifact that has a destination. Artifacts are
// written concurrently; the first failure is returned.
func (w *Writer) Flush(ctx context.Context, a Artifacts) error {
	if w == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Composites != nil && w.paths.Composites != "" {
		table := a.Composites
		g.Go(func() error {
			return writeJSON(gctx, w.paths.Composites, table)
		})
	}
	if a.Assignments != nil && w.paths.Assignments != "" {
		payload := &assignmentPayload{Schema: assignmentSchemaVersion, Assignments: a.Assignments}
		g.Go(func() error {
			return writeAtomic(gctx, w.paths.Assignments, func(f *os.File) error {
				return msgpack.NewEncoder(f).Encode(payload)
			})
		})
	}
	if a.Manifest != nil && w.paths.Manifest != "" {
		m := a.Manifest
		g.Go(func() error {
			return writeJSON(gctx, w.paths.Manifest, m)
		})
	}
	return g.Wait()
}

func writeJSON(ctx context.Context, dst string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: encode %s: %w", dst, err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("persist: indent %s: %w", dst, err)
	}
	out.WriteByte('\n')
	return writeAtomic(ctx, dst, func(f *os.File) error {
		_, err := f.Write(out.Bytes())
		return err
	})
}

func writeAtomic(ctx context.Context, dst string, fill func(*os.File) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = fill(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("persist: write %s: %w", dst, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("persist: close %s: %w", dst, err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	// атомарная замена
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// LoadCompositeTable reads a persisted composite chunk table.
func LoadCompositeTable(file string) (*chunks.CompositeTable, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	table := chunks.NewCompositeTable()
	if err := json.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("persist: parse %s: %w", file, err)
	}
	return table, nil
}

// LoadAssignments reads a persisted final assignment map.
func LoadAssignments(file string) (map[string]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var payload assignmentPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("persist: decode %s: %w", file, err)
	}
	if payload.Schema != assignmentSchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema %d, want %d", ErrSchemaMismatch, file, payload.Schema, assignmentSchemaVersion)
	}
	if payload.Assignments == nil {
		payload.Assignments = map[string]string{}
	}
	return payload.Assignments, nil
}
