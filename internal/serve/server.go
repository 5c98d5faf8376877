// Package serve exposes the runtime chunk order over HTTP so a rendering
// layer in another process can ask which files an entry point needs.
package serve

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"chunkplan/internal/chunkorder"
	"chunkplan/internal/manifest"
)

// Options configure the HTTP app.
type Options struct {
	Resolver     *chunkorder.Resolver
	ManifestPath string
	PublicPath   string
	// Extra holds configured extra files per asset kind; request extras follow them.
	Extra  map[chunkorder.AssetKind][]string
	Logger *log.Logger
	// Metrics enables /metrics when set.
	Metrics *Metrics
}

// ChunksResponse is the body of GET /chunks/:entry.
type ChunksResponse struct {
	Entry string   `json:"entry"`
	Kind  string   `json:"kind"`
	Files []string `json:"files"`
}

type handler struct {
	opts   Options
	logger *log.Logger
}

// New builds the fiber app.
func New(opts Options) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	h := &handler{opts: opts, logger: logger}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if opts.Metrics != nil {
		app.Get("/metrics", opts.Metrics.Handler())
		app.Use("/chunks", opts.Metrics.Middleware())
	}
	app.Get("/chunks/:entry", h.chunks)
	return app
}

func (h *handler) chunks(c *fiber.Ctx) error {
	entry := c.Params("entry")
	if entry == "" {
		return fiber.NewError(fiber.StatusBadRequest, "entry is required")
	}
	kind, err := chunkorder.ParseKind(c.Query("kind"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	extra := append([]string(nil), h.opts.Extra[kind]...)
	for _, f := range strings.Split(c.Query("extra"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			extra = append(extra, f)
		}
	}

	files := h.opts.Resolver.GetOrderedChunks(c.UserContext(), entry, kind, func(context.Context) []string { return extra })
	if c.QueryBool("public") {
		files = h.loadManifest().Resolve(h.opts.PublicPath, files)
	}

	h.opts.Metrics.observeFiles(string(kind), len(files))
	h.logger.Debug("chunks", "entry", entry, "kind", kind, "files", len(files))
	return c.JSON(ChunksResponse{Entry: entry, Kind: string(kind), Files: files})
}

// loadManifest reads the manifest per request; a missing one maps every file
// under the public path.
func (h *handler) loadManifest() manifest.Manifest {
	if h.opts.ManifestPath == "" {
		return manifest.Manifest{}
	}
	m, err := manifest.Load(h.opts.ManifestPath)
	if err != nil {
		h.opts.Metrics.manifestMiss()
		if !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("manifest unreadable", "path", h.opts.ManifestPath, "err", err)
		}
		return manifest.Manifest{}
	}
	return m
}
