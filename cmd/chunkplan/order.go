package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chunkplan/internal/chunkorder"
	"chunkplan/internal/manifest"
)

var (
	orderKind   string
	orderExtra  []string
	orderPublic bool
)

func init() {
	orderCmd.Flags().StringVar(&orderKind, "kind", "js", "asset kind (js|css)")
	orderCmd.Flags().StringSliceVar(&orderExtra, "extra", nil, "extra files after the configured order")
	orderCmd.Flags().BoolVar(&orderPublic, "public", false, "map files to public paths through the asset manifest")
}

var orderCmd = &cobra.Command{
	Use:   "order <entry>",
	Short: "Print the chunk files an entry point needs, in load order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, logger)
		if err != nil {
			return err
		}
		kind, err := chunkorder.ParseKind(orderKind)
		if err != nil {
			return err
		}

		r := chunkorder.New(chunkorder.Config{
			JSOrder:    cfg.Runtime.JSOrder,
			CSSOrder:   cfg.Runtime.CSSOrder,
			LiveReload: cfg.Runtime.LiveReload,
			TablePath:  cfg.CompositePath(),
			Logger:     logger,
		})
		extra := cfg.Runtime.ExtraJSOrder
		if kind == chunkorder.CSS {
			extra = cfg.Runtime.ExtraCSSOrder
		}
		extra = append(append([]string(nil), extra...), orderExtra...)

		files := r.GetOrderedChunks(cmd.Context(), args[0], kind, chunkorder.Fixed(extra...))
		if orderPublic {
			m, err := manifest.Load(cfg.ManifestPath())
			if err != nil {
				logger.Warn("asset manifest unavailable", "err", err)
				m = manifest.Manifest{}
			}
			files = m.Resolve(cfg.Build.PublicPath, files)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(files, "\n"))
		return nil
	},
}
