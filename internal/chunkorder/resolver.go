// Package chunkorder answers, at request time, which chunk files an entry
// point needs and in what order.
package chunkorder

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"chunkplan/internal/chunks"
	"chunkplan/internal/persist"
	"chunkplan/internal/tags"
)

// AssetKind is the file extension a request asks for.
type AssetKind string

const (
	JS  AssetKind = "js"
	CSS AssetKind = "css"
)

// ParseKind validates a kind coming from a request or flag.
func ParseKind(s string) (AssetKind, error) {
	switch AssetKind(s) {
	case JS, CSS:
		return AssetKind(s), nil
	case "":
		return JS, nil
	default:
		return "", fmt.Errorf("chunkorder: unknown asset kind %q (expected: js|css)", s)
	}
}

// ExtraOrder supplies per-request files placed after the base order.
type ExtraOrder func(ctx context.Context) []string

// Fixed returns an ExtraOrder that always yields files.
func Fixed(files ...string) ExtraOrder {
	files = slices.Clone(files)
	return func(context.Context) []string { return files }
}

// Config configures a Resolver.
type Config struct {
	JSOrder    []string
	CSSOrder   []string
	LiveReload bool   // dev server: composites do not exist yet, skip discovery
	TablePath  string // persisted composite table
	Logger     *log.Logger
}

// Resolver is stateless between calls and safe for concurrent use.
type Resolver struct {
	cfg    Config
	logger *log.Logger
	reads  singleflight.Group
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// GetOrderedChunks returns base, extra, primary then discovered composites.
func (r *Resolver) GetOrderedChunks(ctx context.Context, entry string, kind AssetKind, extra ExtraOrder) []string {
	return r.Files(ctx, entry, kind, extra)
}

// Files is GetOrderedChunks.
func (r *Resolver) Files(ctx context.Context, entry string, kind AssetKind, extra ExtraOrder) []string {
	base := r.cfg.JSOrder
	if kind == CSS {
		base = r.cfg.CSSOrder
	}
	out := slices.Clone(base)
	if extra != nil {
		out = append(out, extra(ctx)...)
	}
	out = append(out, entry+"."+string(kind))

	if r.cfg.LiveReload {
		return out
	}
	for _, name := range r.composites(entry) {
		out = append(out, name+"."+string(kind))
	}
	return out
}

// composites reads the table fresh on every call. Concurrent reads share one
// file read; a missing or corrupt table yields nothing.
func (r *Resolver) composites(entry string) []string {
	if r.cfg.TablePath == "" {
		return nil
	}
	v, err, _ := r.reads.Do(r.cfg.TablePath, func() (any, error) {
		return persist.LoadCompositeTable(r.cfg.TablePath)
	})
	if err != nil {
		r.logger.Debug("composite table unavailable", "path", r.cfg.TablePath, "err", err)
		return nil
	}
	return v.(*chunks.CompositeTable).Containing(entry, tags.ClientEntry)
}
