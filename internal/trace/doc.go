// Package trace records what a chunk-planning build did and when.
//
// Spans cover the build and its phases (crawl, assign, flush); points mark
// individual module events (discovered, transformed, assigned). Tracing is
// off unless requested:
//
//	chunkplan plan --trace=- --trace-level=module events.ndjson
//
// Tracers travel through the build in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "assign", parentID)
//	defer span.End("")
//
// Implementations: Nop (disabled), StreamTracer (text or NDJSON writer),
// FlightRecorder (every build and phase event plus the last N module events,
// dumped on failure) and MultiTracer (fan-out).
package trace
