package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chunkplan/internal/chunkorder"
	"chunkplan/internal/serve"
)

var (
	serveAddr    string
	serveMetrics bool
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7070", "listen address")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "expose Prometheus metrics on /metrics")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chunk orders over HTTP (GET /chunks/:entry)",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, logger)
		if err != nil {
			return err
		}

		var metrics *serve.Metrics
		if serveMetrics {
			metrics = serve.NewMetrics()
		}

		app := serve.New(serve.Options{
			Resolver: chunkorder.New(chunkorder.Config{
				JSOrder:    cfg.Runtime.JSOrder,
				CSSOrder:   cfg.Runtime.CSSOrder,
				LiveReload: cfg.Runtime.LiveReload,
				TablePath:  cfg.CompositePath(),
				Logger:     logger,
			}),
			ManifestPath: cfg.ManifestPath(),
			PublicPath:   cfg.Build.PublicPath,
			Extra: map[chunkorder.AssetKind][]string{
				chunkorder.JS:  cfg.Runtime.ExtraJSOrder,
				chunkorder.CSS: cfg.Runtime.ExtraCSSOrder,
			},
			Logger:  logger,
			Metrics: metrics,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", serveAddr, "table", cfg.CompositePath())
			errCh <- app.Listen(serveAddr)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	},
}
