package crawl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"chunkplan/internal/chunks"
	"chunkplan/internal/manifest"
	"chunkplan/internal/persist"
	"chunkplan/internal/pkgid"
	"chunkplan/internal/quiesce"
	"chunkplan/internal/tags"
	"chunkplan/internal/testkit"
)

const (
	homeEntry  = "/app/src/pages/home/render.tsx?chunkName=home"
	aboutEntry = "/app/src/pages/about/render.tsx?chunkName=about"
	shared     = "/app/src/components/card.tsx"
)

func testPaths(dir string) persist.Paths {
	return persist.Paths{
		Composites:  filepath.Join(dir, "build", "composite-chunks.json"),
		Assignments: filepath.Join(dir, "build", "chunk-assignments.mp"),
		Manifest:    filepath.Join(dir, "build", "client", "asset-manifest.json"),
	}
}

func mustDiscover(t *testing.T, b *Build, info ModuleInfo) {
	t.Helper()
	if err := b.OnModuleDiscovered(info); err != nil {
		t.Fatalf("OnModuleDiscovered(%s): %v", info.ID, err)
	}
}

func mustTransform(t *testing.T, b *Build, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := b.OnModuleTransformed(id); err != nil {
			t.Fatalf("OnModuleTransformed(%s): %v", id, err)
		}
	}
}

func TestSharedModuleGetsComposite(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	b := New(Options{Writer: persist.NewWriter(paths), QuietPeriod: time.Hour})

	mustDiscover(t, b, ModuleInfo{ID: aboutEntry, DynamicImports: []string{shared}})
	mustDiscover(t, b, ModuleInfo{ID: homeEntry, Imports: []string{shared}})
	mustTransform(t, b, aboutEntry, homeEntry, shared)

	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	got, err := b.Tags(shared)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	slices.Sort(got)
	if want := []string{"about", "dynamic", "home"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}

	name, ok := b.ChunkNameFor(shared)
	if !ok || name == "home" || name == "about" {
		t.Fatalf("ChunkNameFor(shared) = %q, %v, want a composite", name, ok)
	}
	if want := chunks.CompositeName([]string{"home", "about", "dynamic"}); name != want {
		t.Fatalf("composite = %q, want %q", name, want)
	}
	if n, _ := b.ChunkNameFor(homeEntry); n != "home" {
		t.Fatalf("ChunkNameFor(home entry) = %q", n)
	}

	table, err := persist.LoadCompositeTable(paths.Composites)
	if err != nil {
		t.Fatalf("LoadCompositeTable: %v", err)
	}
	if members, ok := table.Lookup(name); !ok || !reflect.DeepEqual(members, []string{"about", "dynamic", "home"}) {
		t.Fatalf("persisted members = %v, %v", members, ok)
	}
	if err := testkit.CheckPlanInvariants(b.Assignments(), table); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	assignments, err := persist.LoadAssignments(paths.Assignments)
	if err != nil {
		t.Fatalf("LoadAssignments: %v", err)
	}
	if !reflect.DeepEqual(assignments, b.Assignments()) {
		t.Fatalf("persisted %v, in memory %v", assignments, b.Assignments())
	}
}

func TestTagsFlowThroughTaggedModules(t *testing.T) {
	b := New(Options{QuietPeriod: time.Hour})
	const (
		a = "/app/src/a.ts"
		c = "/app/src/c.ts"
		d = "/app/src/d.ts"
	)
	mustDiscover(t, b, ModuleInfo{ID: homeEntry, Imports: []string{a}})
	mustDiscover(t, b, ModuleInfo{ID: a, Imports: []string{c}, DynamicImports: []string{d}})
	mustTransform(t, b, homeEntry, a, c, d)
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	if n, _ := b.ChunkNameFor(c); n != "home" {
		t.Fatalf("static child = %q, want home", n)
	}
	n, ok := b.ChunkNameFor(d)
	if !ok || n != chunks.CompositeName([]string{tags.Dynamic, "home"}) {
		t.Fatalf("dynamic child = %q, %v", n, ok)
	}
}

func TestUntaggedModulesAreExcluded(t *testing.T) {
	b := New(Options{QuietPeriod: time.Hour})
	const orphan = "/app/src/orphan.ts"
	const excludedChild = "/app/src/api.ts"
	mustDiscover(t, b, ModuleInfo{ID: orphan, Imports: []string{"/app/src/never.ts"}})
	mustDiscover(t, b, ModuleInfo{ID: "/app/src/fetch.ts?chunkName=void", Imports: []string{excludedChild}})
	mustTransform(t, b, orphan, excludedChild)
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	got := b.Assignments()
	want := map[string]string{orphan: chunks.Exclude, excludedChild: chunks.Exclude}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("assignments = %v, want %v", got, want)
	}
	if _, ok := b.ChunkNameFor(orphan); ok {
		t.Fatalf("excluded module has a chunk name")
	}
	if _, ok := b.ChunkNameFor("/app/src/unknown.ts"); ok {
		t.Fatalf("unknown module has a chunk name")
	}
}

func TestMalformedEntryTagFailsDiscovery(t *testing.T) {
	b := New(Options{QuietPeriod: time.Hour})
	err := b.OnModuleDiscovered(ModuleInfo{ID: "/app/src/x.tsx?chunkName=", Imports: []string{shared}})
	if !errors.Is(err, chunks.ErrMalformedEntryTag) {
		t.Fatalf("err = %v, want ErrMalformedEntryTag", err)
	}
}

func TestVendorPackagesAggregate(t *testing.T) {
	root := t.TempDir()
	nm := filepath.Join(root, "node_modules")
	write := func(p, body string) {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(filepath.Join(nm, "pkga", "package.json"), `{"name":"pkga","dependencies":{"pkgb":"1"}}`)
	write(filepath.Join(nm, "pkgb", "package.json"), `{"name":"pkgb"}`)
	pkgA := filepath.ToSlash(filepath.Join(nm, "pkga", "index.js"))
	pkgB := filepath.ToSlash(filepath.Join(nm, "pkgb", "index.js"))

	b := New(Options{Resolver: pkgid.New("node_modules"), QuietPeriod: time.Hour})
	mustDiscover(t, b, ModuleInfo{ID: homeEntry, Imports: []string{pkgA}})
	mustTransform(t, b, homeEntry, pkgA, pkgB)
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	got, err := b.Tags(pkgB)
	if err != nil {
		t.Fatalf("Tags(pkgb): %v", err)
	}
	if !slices.Contains(got, "home") {
		t.Fatalf("pkgb tags = %v, want home inherited from pkga", got)
	}
	if ident, err := b.Identity(pkgB); err != nil || ident != "pkgb" {
		t.Fatalf("Identity(pkgb) = %q, %v, want pkgb", ident, err)
	}
	if err := testkit.CheckPlanInvariants(b.Assignments(), b.Composites()); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	na, _ := b.ChunkNameFor(pkgA)
	nb, _ := b.ChunkNameFor(pkgB)
	if na == "" || na != nb {
		t.Fatalf("pkga -> %q, pkgb -> %q, want the same composite", na, nb)
	}
}

func TestVendorResolutionFailureIsFatal(t *testing.T) {
	b := New(Options{Resolver: pkgid.New("node_modules"), QuietPeriod: time.Hour})
	missing := filepath.ToSlash(filepath.Join(t.TempDir(), "node_modules", "ghost", "index.js"))
	err := b.OnModuleDiscovered(ModuleInfo{ID: homeEntry, Imports: []string{missing}})
	if !errors.Is(err, pkgid.ErrPackageNotFound) {
		t.Fatalf("err = %v, want ErrPackageNotFound", err)
	}
}

func TestQuietPeriodFinalizes(t *testing.T) {
	b := New(Options{QuietPeriod: 20 * time.Millisecond})
	mustDiscover(t, b, ModuleInfo{ID: homeEntry, Imports: []string{shared}})
	mustTransform(t, b, homeEntry, shared)

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("crawl never finalized")
	}
	if n, _ := b.ChunkNameFor(shared); n != "home" {
		t.Fatalf("ChunkNameFor = %q, want home", n)
	}
	// bundler end after the quiet period is not a second completion
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestNormalEndIsIdempotent(t *testing.T) {
	b := New(Options{QuietPeriod: time.Hour})
	mustTransform(t, b, shared)
	for i := 0; i < 2; i++ {
		if err := b.End(context.Background(), nil); err != nil {
			t.Fatalf("End #%d: %v", i+1, err)
		}
	}
}

func TestAbnormalEndWaitsForQuietPeriod(t *testing.T) {
	quiet := 40 * time.Millisecond
	b := New(Options{QuietPeriod: quiet})
	mustDiscover(t, b, ModuleInfo{ID: homeEntry, Imports: []string{shared}})
	mustTransform(t, b, homeEntry, shared)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.End(ctx, errors.New("transform failed")); err != nil {
		t.Fatalf("End: %v", err)
	}
	if elapsed := time.Since(start); elapsed < quiet/2 {
		t.Fatalf("End returned after %v, before the quiet period", elapsed)
	}
	if n, _ := b.ChunkNameFor(shared); n != "home" {
		t.Fatalf("ChunkNameFor = %q, want home", n)
	}
}

func TestEndHonoursContext(t *testing.T) {
	b := New(Options{QuietPeriod: time.Hour})
	mustTransform(t, b, shared)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.End(ctx, errors.New("boom")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline", err)
	}
}

func TestLateEventsAreRejected(t *testing.T) {
	b := New(Options{QuietPeriod: 20 * time.Millisecond})
	mustTransform(t, b, shared)
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	if err := b.OnModuleDiscovered(ModuleInfo{ID: homeEntry, Imports: []string{"/app/late.ts"}}); !errors.Is(err, ErrLateModule) {
		t.Fatalf("discover err = %v, want ErrLateModule", err)
	}
	if err := b.OnModuleTransformed("/app/late.ts"); !errors.Is(err, ErrLateModule) {
		t.Fatalf("transform err = %v, want ErrLateModule", err)
	}
	if _, ok := b.Assignments()["/app/late.ts"]; ok {
		t.Fatalf("late module reached the final map")
	}

	// the restarted quiet period fires a second completion
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := b.End(context.Background(), nil)
		if errors.Is(err, quiesce.ErrCompletedTwice) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("End = %v, want ErrCompletedTwice", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlushFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := New(Options{
		Writer:      persist.NewWriter(persist.Paths{Composites: filepath.Join(blocker, "c.json")}),
		QuietPeriod: time.Hour,
	})
	mustTransform(t, b, shared)
	if err := b.End(context.Background(), nil); err == nil {
		t.Fatalf("expected flush failure")
	}
}

func TestEmitBundleWritesManifest(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	b := New(Options{Writer: persist.NewWriter(paths), QuietPeriod: time.Hour, PublicPath: "/static/"})
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := b.EmitBundle(context.Background(), []string{"home.1a2b.chunk.js", "Page.ffee.chunk.css"}); err != nil {
		t.Fatalf("EmitBundle: %v", err)
	}
	m, err := manifest.Load(paths.Manifest)
	if err != nil {
		t.Fatalf("manifest.Load: %v", err)
	}
	want := manifest.Manifest{"home.js": "/static/home.1a2b.chunk.js", "Page.css": "/static/Page.ffee.chunk.css"}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("manifest = %v, want %v", m, want)
	}
}

func TestProgressEvents(t *testing.T) {
	events := make(chan Event, 64)
	b := New(Options{QuietPeriod: time.Hour, Progress: ChannelSink{Ch: events}})
	mustDiscover(t, b, ModuleInfo{ID: homeEntry, Imports: []string{shared}})
	mustTransform(t, b, homeEntry, shared)
	if err := b.End(context.Background(), nil); err != nil {
		t.Fatalf("End: %v", err)
	}
	close(events)

	var stages []Stage
	var last Event
	for ev := range events {
		if len(stages) == 0 || stages[len(stages)-1] != ev.Stage {
			stages = append(stages, ev.Stage)
		}
		last = ev
	}
	if want := []Stage{StageCrawl, StageAssign, StageDone}; !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if last.Assigned != 2 || last.Total != 2 || last.Err != nil {
		t.Fatalf("last event = %+v", last)
	}
}
