package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"chunkplan/internal/chunks"
	"chunkplan/internal/crawl"
	"chunkplan/internal/observ"
	"chunkplan/internal/persist"
	"chunkplan/internal/pkgid"
	"chunkplan/internal/trace"
)

var (
	planQuietPeriod time.Duration
	planSummary     bool
	planUI          string
)

func init() {
	planCmd.Flags().DurationVar(&planQuietPeriod, "quiet-period", 0, "override [build].quiet_period")
	planCmd.Flags().BoolVar(&planSummary, "summary", false, "print the final assignment of every module")
	planCmd.Flags().StringVar(&planUI, "ui", "auto", "show live progress (auto|on|off)")
}

var planCmd = &cobra.Command{
	Use:   "plan [events.ndjson]",
	Short: "Replay a module discovery log and persist the chunk plan",
	Long: `plan replays the discovery events a bundler reported during one build
(NDJSON records: parsed, transformed, bundle, error), assigns every module to a
chunk once the crawl settles and writes the composite chunk table, the final
assignment map and the asset manifest. Reads stdin when no file or "-" is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) (err error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	colored, err := useColor(cmd)
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() {
		if err != nil {
			dumpFlight(cmd)
		}
	}()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	quiet := cfg.Build.QuietPeriod.Duration
	if planQuietPeriod > 0 {
		quiet = planQuietPeriod
	}

	mode, err := readUIMode(planUI)
	if err != nil {
		return err
	}

	var timer *observ.Timer
	if showTimings {
		timer = observ.NewTimer()
	}
	opts := crawl.Options{
		Resolver: pkgid.New(cfg.Build.VendorDir),
		Writer: persist.NewWriter(persist.Paths{
			Composites:  cfg.CompositePath(),
			Assignments: cfg.AssignmentPath(),
			Manifest:    cfg.ManifestPath(),
		}),
		QuietPeriod: quiet,
		PublicPath:  cfg.Build.PublicPath,
		Logger:      logger,
		Tracer:      trace.FromContext(cmd.Context()),
		Timer:       timer,
	}

	var (
		b   *crawl.Build
		res crawl.Result
	)
	if shouldUseTUI(mode) {
		b, res, err = runReplayWithUI(cmd.Context(), "chunkplan", in, opts)
	} else {
		b = crawl.New(opts)
		res, err = crawl.Replay(cmd.Context(), in, b)
	}
	if err != nil {
		return err
	}
	if res.BuildErr != nil {
		logger.Warn("bundler reported an error", "err", res.BuildErr)
	}

	out := cmd.OutOrStdout()
	heading := color.New(color.Bold)
	if !colored {
		heading.DisableColor()
	}
	fmt.Fprintf(out, "%s %d modules, %d composite chunks\n", heading.Sprint("planned"), res.Modules, res.Composites)
	fmt.Fprintf(out, "  table:       %s\n  assignments: %s\n", cfg.CompositePath(), cfg.AssignmentPath())
	if planSummary {
		printAssignments(out, res.Assignments, b.Composites(), func(id string) string {
			ident, err := b.Identity(id)
			if err != nil {
				return ""
			}
			return ident
		}, colored)
	}
	if timer != nil {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return nil
}

// printAssignments renders "id  chunk [members] (package)" with aligned
// columns. The package is shown when identify maps id to a different key.
func printAssignments(out io.Writer, assignments map[string]string, table *chunks.CompositeTable, identify func(string) string, colored bool) {
	ids := make([]string, 0, len(assignments))
	width := 0
	for id := range assignments {
		ids = append(ids, id)
		if w := runewidth.StringWidth(id); w > width {
			width = w
		}
	}
	sort.Strings(ids)

	excluded := color.New(color.Faint)
	composite := color.New(color.FgCyan)
	if !colored {
		excluded.DisableColor()
		composite.DisableColor()
	}
	for _, id := range ids {
		name := assignments[id]
		line := runewidth.FillRight(id, width) + "  "
		switch members, ok := table.Lookup(name); {
		case name == chunks.Exclude:
			line += excluded.Sprint(name)
		case ok:
			line += composite.Sprint(name) + " [" + strings.Join(members, ", ") + "]"
		default:
			line += name
		}
		if identify != nil {
			if ident := identify(id); ident != "" && ident != filepath.ToSlash(id) {
				line += " (" + ident + ")"
			}
		}
		fmt.Fprintln(out, line)
	}
}
