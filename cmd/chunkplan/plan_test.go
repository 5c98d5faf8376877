package main

import (
	"bytes"
	"strings"
	"testing"

	"chunkplan/internal/chunks"
)

func TestPrintAssignmentsAligned(t *testing.T) {
	table := chunks.NewCompositeTable()
	shared, err := table.Intern([]string{"home", "about"})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	var buf bytes.Buffer
	printAssignments(&buf, map[string]string{
		"src/a.ts":            "home",
		"src/components/é.ts": shared,
		"src/api.ts":          chunks.Exclude,
	}, table, nil, false)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	want := []string{
		"src/a.ts" + strings.Repeat(" ", 11+2) + "home",
		"src/api.ts" + strings.Repeat(" ", 9+2) + "void",
		"src/components/é.ts  " + shared + " [about, home]",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestPrintAssignmentsShowsPackage(t *testing.T) {
	var buf bytes.Buffer
	printAssignments(&buf, map[string]string{
		"node_modules/react/index.js": "vendor",
		"src/a.ts":                    "home",
	}, chunks.NewCompositeTable(), func(id string) string {
		if strings.HasPrefix(id, "node_modules/react/") {
			return "react"
		}
		return id
	}, false)

	want := "node_modules/react/index.js  vendor (react)\n" +
		"src/a.ts" + strings.Repeat(" ", 19+2) + "home\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
