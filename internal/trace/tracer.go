package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer receives build, phase and module events.
type Tracer interface {
	// Emit records a trace event. Must be goroutine-safe.
	Emit(ev *Event)
	Flush() error
	Close() error
	// Level is the finest scope this tracer accepts.
	Level() Level
	Enabled() bool
}

// Destination says where a build's events go.
type Destination uint8

const (
	// DestStream writes events as they happen.
	DestStream Destination = iota + 1
	// DestFlight keeps events in a FlightRecorder, dumped when a build fails.
	DestFlight
	// DestBoth streams at the configured level and keeps a flight recording.
	DestBoth
)

func (d Destination) String() string {
	switch d {
	case DestStream:
		return "stream"
	case DestFlight:
		return "ring"
	case DestBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseDestination reads the --trace-mode value.
func ParseDestination(s string) (Destination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stream", "":
		return DestStream, nil
	case "ring", "flight":
		return DestFlight, nil
	case "both":
		return DestBoth, nil
	default:
		return DestStream, fmt.Errorf("invalid trace mode: %q (expected: stream|ring|both)", s)
	}
}

// Config holds tracer configuration.
type Config struct {
	// Level applies to the stream. The flight recorder always keeps module
	// events so a failure dump shows which modules were in flight.
	Level      Level
	Dest       Destination
	Format     Format    // FormatAuto picks by OutputPath extension
	Output     io.Writer // stream target; OutputPath is used when nil
	OutputPath string    // "-" or "" for stderr
	// ModuleBacklog bounds the module events a flight recording keeps.
	// Build and phase events are never evicted.
	ModuleBacklog int
}

// DefaultModuleBacklog is used when Config.ModuleBacklog is not positive.
const DefaultModuleBacklog = 4096

// New creates a Tracer for one CLI invocation.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.Dest == 0 {
		cfg.Dest = DestStream
	}

	switch cfg.Dest {
	case DestStream:
		return newStream(cfg)
	case DestFlight:
		return NewFlightRecorder(cfg.ModuleBacklog), nil
	case DestBoth:
		stream, err := newStream(cfg)
		if err != nil {
			return nil, err
		}
		return NewMultiTracer(LevelModule, stream, NewFlightRecorder(cfg.ModuleBacklog)), nil
	default:
		return nil, fmt.Errorf("unknown trace destination: %v", cfg.Dest)
	}
}

func newStream(cfg Config) (*StreamTracer, error) {
	format := cfg.Format
	if format == FormatAuto {
		format = FormatText
		if strings.HasSuffix(cfg.OutputPath, ".ndjson") || strings.HasSuffix(cfg.OutputPath, ".jsonl") {
			format = FormatNDJSON
		}
	}
	w, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	return NewStreamTracer(w, cfg.Level, format), nil
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.Output != nil {
		return cfg.Output, nil
	}
	if cfg.OutputPath == "" || cfg.OutputPath == "-" {
		return stderrWriter{os.Stderr}, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", cfg.OutputPath, err)
	}
	return f, nil
}

// stderrWriter hides the Close method of os.Stderr.
type stderrWriter struct{ io.Writer }
