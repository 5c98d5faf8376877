// Package testkit holds invariant checks shared by package tests.
package testkit

import (
	"fmt"
	"slices"

	"chunkplan/internal/chunks"
)

// CheckPlanInvariants runs the invariants every finished plan must satisfy:
// 1) each composite name is the stable name of its member list
// 2) member lists are sorted, deduplicated and have at least two tags
// 3) every assignment is void, a plain tag or a composite present in the table
func CheckPlanInvariants(assignments map[string]string, table *chunks.CompositeTable) error {
	if table == nil {
		return fmt.Errorf("nil composite table")
	}
	for _, name := range table.Names() {
		members, _ := table.Lookup(name)
		if len(members) < 2 {
			return fmt.Errorf("composite %s has %d members", name, len(members))
		}
		if !slices.Equal(members, chunks.Members(members)) {
			return fmt.Errorf("composite %s members not normalized: %v", name, members)
		}
		if want := chunks.CompositeName(members); want != name {
			return fmt.Errorf("composite %s should be named %s", name, want)
		}
	}
	for id, name := range assignments {
		if name == "" {
			return fmt.Errorf("module %q has an empty assignment", id)
		}
		if name == chunks.Exclude {
			continue
		}
		if looksComposite(name) {
			if _, ok := table.Lookup(name); !ok {
				return fmt.Errorf("module %q assigned to %s which is not in the table", id, name)
			}
		}
	}
	return nil
}

// looksComposite matches the hex shape of synthesized names.
func looksComposite(name string) bool {
	if len(name) != len(chunks.CompositeName(nil)) {
		return false
	}
	for _, r := range name {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}
