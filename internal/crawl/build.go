// Package crawl holds the state of one build: it turns the bundler's
// discovery feed into tags, infers the end of the crawl, assigns every
// module its chunk exactly once and persists the result.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"chunkplan/internal/chunks"
	"chunkplan/internal/manifest"
	"chunkplan/internal/observ"
	"chunkplan/internal/persist"
	"chunkplan/internal/quiesce"
	"chunkplan/internal/tags"
	"chunkplan/internal/trace"
)

// ErrLateModule reports a discovery event that arrived after the crawl was
// finalized. The assignment map is immutable at that point.
var ErrLateModule = errors.New("crawl: module arrived after completion")

// ModuleInfo is one parsed module as reported by the bundler.
type ModuleInfo struct {
	ID             string
	Imports        []string
	DynamicImports []string
}

// Options configure a Build.
type Options struct {
	Resolver    tags.PackageResolver // nil disables vendor aggregation
	Writer      *persist.Writer      // nil skips persistence
	QuietPeriod time.Duration
	PublicPath  string
	Logger      *log.Logger
	Tracer      trace.Tracer
	Timer       *observ.Timer
	Progress    ProgressSink
}

// Build is the per-build context. Every collaborator is owned by it; nothing
// is shared between builds.
type Build struct {
	opts     Options
	logger   *log.Logger
	tracer   trace.Tracer
	recorder *tags.Recorder
	synth    *chunks.Synthesizer
	detector *quiesce.Detector

	buildSpan  *trace.Span
	crawlSpan  *trace.Span
	crawlPhase int

	mu          sync.Mutex
	discovered  int
	transformed []string
	seen        map[string]struct{}
	final       map[string]string
	finalized   bool
	result      error
	fatal       error
	done        chan struct{}
}

// New starts a build. The quiet period starts with the first transformed module.
func New(opts Options) *Build {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}

	b := &Build{
		opts:     opts,
		logger:   logger,
		tracer:   tracer,
		recorder: tags.NewRecorder(opts.Resolver),
		seen:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	b.synth = chunks.NewSynthesizer(b.recorder, nil)
	b.detector = quiesce.New(quiesce.Config{
		Quiet:   opts.QuietPeriod,
		OnFire:  b.finalize,
		OnFatal: b.onFatal,
	})
	b.buildSpan = trace.Begin(tracer, trace.ScopeBuild, "build", 0)
	b.crawlSpan = trace.Begin(tracer, trace.ScopePhase, observ.PhaseCrawl, b.buildSpan.ID())
	b.crawlPhase = opts.Timer.Begin(observ.PhaseCrawl)
	return b
}

// OnModuleDiscovered records the import edges of a parsed module. Entry
// modules tag their imports; modules that already carry tags pass them on.
// Dynamic imports additionally get the dynamic tag when first seen.
func (b *Build) OnModuleDiscovered(info ModuleInfo) error {
	if b.detector.Fired() {
		return fmt.Errorf("%w: discovered %q", ErrLateModule, info.ID)
	}

	tag, entry, err := chunks.ParseEntryTag(info.ID)
	if err != nil {
		return fmt.Errorf("crawl: discover %q: %w", info.ID, err)
	}

	var static, dynamic tags.Options
	switch {
	case entry:
		dynamic.DefaultTag = tags.Dynamic
	default:
		known, err := b.recorder.Has(info.ID)
		if err != nil {
			return b.recordErr(info.ID, err)
		}
		if !known {
			// not reachable from an entry yet
			return nil
		}
		static.Parent = info.ID
		dynamic = tags.Options{DefaultTag: tags.Dynamic, Parent: info.ID}
	}

	for _, id := range info.Imports {
		if err := b.recorder.Record(id, tag, static); err != nil {
			return b.recordErr(id, err)
		}
	}
	for _, id := range info.DynamicImports {
		if err := b.recorder.Record(id, tag, dynamic); err != nil {
			return b.recordErr(id, err)
		}
	}
	trace.Point(b.tracer, trace.ScopeModule, "discovered", info.ID, b.crawlSpan.ID())
	b.mu.Lock()
	b.discovered++
	ev := Event{Stage: StageCrawl, Module: info.ID, Discovered: b.discovered, Transformed: len(b.transformed)}
	b.mu.Unlock()
	b.progress(ev)
	return nil
}

func (b *Build) recordErr(id string, err error) error {
	if errors.Is(err, tags.ErrSealed) {
		return fmt.Errorf("%w: %q", ErrLateModule, id)
	}
	return fmt.Errorf("crawl: record %q: %w", id, err)
}

// OnModuleTransformed notes a module that will be emitted and restarts the
// quiet period. After completion it keeps restarting it, so a quiet period
// that was too short surfaces as quiesce.ErrCompletedTwice.
func (b *Build) OnModuleTransformed(id string) error {
	late := b.detector.Fired()
	var ev Event
	if !late {
		b.mu.Lock()
		if _, ok := b.seen[id]; !ok {
			b.seen[id] = struct{}{}
			b.transformed = append(b.transformed, id)
		}
		ev = Event{Stage: StageCrawl, Module: id, Discovered: b.discovered, Transformed: len(b.transformed)}
		b.mu.Unlock()
	}

	b.detector.Touch()
	if late {
		return fmt.Errorf("%w: transformed %q; increase [build].quiet_period", ErrLateModule, id)
	}
	trace.Point(b.tracer, trace.ScopeModule, "transformed", id, b.crawlSpan.ID())
	b.progress(ev)
	return nil
}

// End is called when the bundler finishes. A normal end completes the crawl
// now unless the quiet period already did. An abnormal end (buildErr != nil)
// waits for the quiet period instead. Either way finalization runs once and
// its result is returned.
func (b *Build) End(ctx context.Context, buildErr error) error {
	if buildErr == nil {
		b.detector.Settle()
	} else {
		b.logger.Warn("build ended abnormally, waiting for the crawl to settle", "err", buildErr, "quiet", b.detector.Quiet())
		b.progress(Event{Stage: StageSettle})
		b.detector.Arm()
	}

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.result, b.fatal)
}

// Done is closed once finalization has finished.
func (b *Build) Done() <-chan struct{} { return b.done }

// finalize runs exactly once, on the goroutine that fired the detector.
func (b *Build) finalize() {
	b.recorder.Seal()

	b.mu.Lock()
	ids := make([]string, len(b.transformed))
	copy(ids, b.transformed)
	b.mu.Unlock()

	b.crawlSpan.WithExtra("modules", strconv.Itoa(len(ids))).End("")
	b.opts.Timer.End(b.crawlPhase, strconv.Itoa(len(ids))+" modules")

	final, err := b.assign(ids)
	if err == nil {
		err = b.flush(final)
	}

	b.mu.Lock()
	b.final = final
	b.finalized = true
	b.result = err
	b.mu.Unlock()

	b.progress(Event{Stage: StageDone, Assigned: len(final), Total: len(ids), Err: err})
	if err != nil {
		b.logger.Error("finalize failed", "err", err)
		b.buildSpan.End(err.Error())
	} else {
		b.logger.Info("crawl finalized", "modules", len(final), "composites", b.synth.Composites().Len())
		b.buildSpan.End("")
	}
	close(b.done)
}

func (b *Build) assign(ids []string) (map[string]string, error) {
	span := trace.Begin(b.tracer, trace.ScopePhase, observ.PhaseAssign, b.buildSpan.ID())
	idx := b.opts.Timer.Begin(observ.PhaseAssign)

	final := make(map[string]string, len(ids))
	b.progress(Event{Stage: StageAssign, Total: len(ids)})
	var err error
	for _, id := range ids {
		var name string
		name, err = b.synth.Assign(id)
		if err != nil {
			err = fmt.Errorf("crawl: assign %q: %w", id, err)
			break
		}
		if name == "" {
			name = chunks.Exclude
		}
		final[id] = name
		trace.Point(b.tracer, trace.ScopeModule, "assigned", id+" -> "+name, span.ID())
		b.progress(Event{Stage: StageAssign, Module: id, Assigned: len(final), Total: len(ids)})
	}

	b.opts.Timer.End(idx, strconv.Itoa(b.synth.Composites().Len())+" composites")
	span.WithExtra("composites", strconv.Itoa(b.synth.Composites().Len())).End("")
	return final, err
}

func (b *Build) flush(final map[string]string) error {
	if b.opts.Writer == nil {
		return nil
	}
	b.progress(Event{Stage: StageFlush, Assigned: len(final), Total: len(final)})
	span := trace.Begin(b.tracer, trace.ScopePhase, observ.PhaseFlush, b.buildSpan.ID())
	defer span.End("")
	return b.opts.Timer.Measure(observ.PhaseFlush, func() error {
		return b.opts.Writer.Flush(context.Background(), persist.Artifacts{
			Composites:  b.synth.Composites(),
			Assignments: final,
		})
	})
}

func (b *Build) progress(ev Event) {
	if b.opts.Progress != nil {
		b.opts.Progress.OnEvent(ev)
	}
}

func (b *Build) onFatal(err error) {
	b.logger.Error("crawl completion fired twice", "err", err)
	b.mu.Lock()
	if b.fatal == nil {
		b.fatal = err
	}
	b.mu.Unlock()
}

// ChunkNameFor is the output-naming feed. It reports false for excluded,
// unknown or not yet finalized modules, which defers to default naming.
func (b *Build) ChunkNameFor(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finalized {
		return "", false
	}
	name, ok := b.final[id]
	if !ok || name == chunks.Exclude {
		return "", false
	}
	return name, true
}

// Assignments returns a copy of the final map, or nil before finalization.
func (b *Build) Assignments() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finalized {
		return nil
	}
	out := make(map[string]string, len(b.final))
	for k, v := range b.final {
		out[k] = v
	}
	return out
}

// Composites returns the composite table of this build.
func (b *Build) Composites() *chunks.CompositeTable { return b.synth.Composites() }

// Tags returns the deduplicated tags recorded for id.
func (b *Build) Tags(id string) ([]string, error) { return b.recorder.Unique(id) }

// Identity returns the key id's tags are recorded under: the owning package
// name for vendor modules, the normalized id otherwise.
func (b *Build) Identity(id string) (string, error) { return b.recorder.Identity(id) }

// EmitBundle writes the asset manifest for the emitted files.
func (b *Build) EmitBundle(ctx context.Context, files []string) error {
	m := manifest.Build(files, b.opts.PublicPath)
	if b.opts.Writer == nil {
		return nil
	}
	span := trace.Begin(b.tracer, trace.ScopePhase, observ.PhaseManifest, b.buildSpan.ID())
	defer span.End("")
	return b.opts.Timer.Measure(observ.PhaseManifest, func() error {
		return b.opts.Writer.Flush(ctx, persist.Artifacts{Manifest: m})
	})
}
