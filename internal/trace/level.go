package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	// LevelOff disables tracing.
	LevelOff Level = iota
	// LevelPhase emits build and phase spans.
	LevelPhase
	// LevelModule additionally emits per-module events.
	LevelModule
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelPhase:
		return "phase"
	case LevelModule:
		return "module"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff, nil
	case "phase":
		return LevelPhase, nil
	case "module":
		return LevelModule, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|phase|module)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePhase
	case LevelModule:
		return scope <= ScopeModule
	default:
		return false
	}
}
