package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent coarser events.
type Scope uint8

const (
	// ScopeBuild covers a whole build.
	ScopeBuild Scope = iota + 1
	// ScopePhase covers crawl, finalize, assign and flush.
	ScopePhase
	// ScopeModule covers single module events.
	ScopeModule
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeBuild:
		return "build"
	case ScopePhase:
		return "phase"
	case ScopeModule:
		return "module"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time         // wall-clock timestamp
	Seq      uint64            // global sequence number (monotonic)
	Kind     Kind              // event kind
	Scope    Scope             // granularity level
	SpanID   uint64            // span identifier, 0 for points outside a span
	ParentID uint64            // parent span (0 if root)
	Name     string            // e.g. "finalize", "module:src/pages/home.tsx"
	Detail   string            // optional detail message
	Extra    map[string]string // extensible key-value pairs
}
