package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chunkplan/internal/trace"
)

// setupTracing inspects trace-related flags and attaches a tracer to the
// command context. The returned cleanup flushes and closes it.
func setupTracing(cmd *cobra.Command) (func(), error) {
	root := cmd.Root()

	traceOutput, err := root.PersistentFlags().GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := root.PersistentFlags().GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := root.PersistentFlags().GetString("trace-mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	formatStr, err := root.PersistentFlags().GetString("trace-format")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-format flag: %w", err)
	}
	backlog, err := root.PersistentFlags().GetInt("trace-backlog")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-backlog flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	// --trace alone means phase tracing
	if level == trace.LevelOff && traceOutput != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}

	dest, err := trace.ParseDestination(modeStr)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}
	tracer, err := trace.New(trace.Config{
		Level:         level,
		Dest:          dest,
		Format:        format,
		OutputPath:    traceOutput,
		ModuleBacklog: backlog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return cleanup, nil
}

// dumpFlight writes the in-memory trace to stderr after a failed run.
func dumpFlight(cmd *cobra.Command) {
	var rec *trace.FlightRecorder
	switch t := trace.FromContext(cmd.Context()).(type) {
	case *trace.FlightRecorder:
		rec = t
	case *trace.MultiTracer:
		rec = t.Flight()
	}
	if rec == nil {
		return
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "trace (build and phases, last module events):")
	if n := rec.Dropped(); n > 0 {
		fmt.Fprintf(out, "  ... %d earlier module events dropped\n", n)
	}
	_ = rec.Dump(out, trace.FormatText)
}
