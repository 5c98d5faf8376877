package testkit

import (
	"strings"
	"testing"

	"chunkplan/internal/chunks"
)

func TestCheckPlanInvariants(t *testing.T) {
	table := chunks.NewCompositeTable()
	shared, err := table.Intern([]string{"home", "about"})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	ok := map[string]string{"a": "home", "b": shared, "c": chunks.Exclude}
	if err := CheckPlanInvariants(ok, table); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}

	missing := chunks.CompositeName([]string{"x", "y"})
	tests := []struct {
		name        string
		assignments map[string]string
		want        string
	}{
		{"empty", map[string]string{"a": ""}, "empty assignment"},
		{"unknown composite", map[string]string{"a": missing}, "not in the table"},
	}
	for _, tt := range tests {
		err := CheckPlanInvariants(tt.assignments, table)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}
