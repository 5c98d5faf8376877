package trace

import (
	"io"
	"sort"
	"sync"
)

// FlightRecorder keeps a build's trace in memory. Build and phase events form
// the skeleton and are all kept; module events go to a bounded backlog that
// evicts the oldest first.
type FlightRecorder struct {
	mu       sync.Mutex
	skeleton []Event
	modules  []Event
	head     int // next write position in modules
	full     bool
	dropped  uint64
}

// NewFlightRecorder creates a recorder keeping at most backlog module events.
func NewFlightRecorder(backlog int) *FlightRecorder {
	if backlog <= 0 {
		backlog = DefaultModuleBacklog
	}
	return &FlightRecorder{modules: make([]Event, backlog)}
}

// Emit stores ev.
func (r *FlightRecorder) Emit(ev *Event) {
	stored := *ev
	stored.Seq = NextSeq()

	r.mu.Lock()
	defer r.mu.Unlock()
	if stored.Scope < ScopeModule {
		r.skeleton = append(r.skeleton, stored)
		return
	}
	if r.full {
		r.dropped++
	}
	r.modules[r.head] = stored
	r.head = (r.head + 1) % len(r.modules)
	if r.head == 0 {
		r.full = true
	}
}

// Snapshot returns the kept events in emission order.
func (r *FlightRecorder) Snapshot() []Event {
	r.mu.Lock()
	out := make([]Event, 0, len(r.skeleton)+len(r.modules))
	out = append(out, r.skeleton...)
	if r.full {
		out = append(out, r.modules[r.head:]...)
	}
	out = append(out, r.modules[:r.head]...)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Dropped reports how many module events were evicted.
func (r *FlightRecorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Dump writes the recording to w in the given format.
func (r *FlightRecorder) Dump(w io.Writer, format Format) error {
	for _, ev := range r.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (r *FlightRecorder) Flush() error { return nil }
func (r *FlightRecorder) Close() error { return nil }

// Level is always LevelModule.
func (r *FlightRecorder) Level() Level { return LevelModule }

func (r *FlightRecorder) Enabled() bool { return true }
