package ui

import (
	"errors"
	"strings"
	"testing"

	"chunkplan/internal/crawl"
)

func TestFraction(t *testing.T) {
	tests := []struct {
		ev   crawl.Event
		want float64
	}{
		{crawl.Event{Stage: crawl.StageCrawl, Discovered: 10}, 0},
		{crawl.Event{Stage: crawl.StageAssign, Assigned: 0, Total: 4}, 0.1},
		{crawl.Event{Stage: crawl.StageAssign, Assigned: 4, Total: 4}, 0.9},
		{crawl.Event{Stage: crawl.StageDone}, 1},
	}
	for _, tt := range tests {
		if got := fraction(tt.ev); got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Fatalf("fraction(%+v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func TestTruncateKeepsTail(t *testing.T) {
	got := truncate("/app/src/components/card.tsx", 12)
	if got != "...card.tsx" && got != ".../card.tsx" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short.ts", 20); got != "short.ts" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestViewKeepsCountersAfterCrawl(t *testing.T) {
	events := make(chan crawl.Event)
	m := NewProgressModel("plan", events).(*progressModel)
	m.applyEvent(crawl.Event{Stage: crawl.StageCrawl, Module: "/app/a.ts", Discovered: 3, Transformed: 5})
	m.applyEvent(crawl.Event{Stage: crawl.StageDone, Err: errors.New("disk full")})

	view := m.View()
	for _, want := range []string{"3 discovered, 5 transformed", "disk full", "(done)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}
