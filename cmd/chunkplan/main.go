package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chunkplan/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "chunkplan",
	Short: "Chunk assignment planner for route-split bundles",
	Long: `chunkplan assigns every module of a build to an output chunk, splitting code
shared by several entry points into composite chunks, and answers at request
time which chunk files an entry point needs.`,
	SilenceUsage: true,
}

// main registers subcommands and persistent flags, then executes the root
// command. Any error exits with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("config", "", "path to chunkplan.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("trace", "", "trace output file (\"-\" for stderr, .ndjson for JSON)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|phase|module)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace destination (stream|ring|both); ring keeps module events in memory for failure dumps")
	rootCmd.PersistentFlags().String("trace-format", "auto", "trace format (auto|text|ndjson)")
	rootCmd.PersistentFlags().Int("trace-backlog", 4096, "module events kept in memory in ring mode")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
