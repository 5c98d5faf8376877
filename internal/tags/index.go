package tags

import (
	"fmt"

	"fortio.org/safecast"
)

// ModuleID is a dense identifier handed out in first-seen order.
type ModuleID uint32

// Index maps normalized module identities to dense IDs. Append-only.
type Index struct {
	NameToID map[string]ModuleID
	IDToName []string
}

func newIndex(capHint int) Index {
	return Index{
		NameToID: make(map[string]ModuleID, capHint),
		IDToName: make([]string, 0, capHint),
	}
}

// Lookup returns the ID of name, if known.
func (idx *Index) Lookup(name string) (ModuleID, bool) {
	id, ok := idx.NameToID[name]
	return id, ok
}

// Intern returns the ID of name, allocating the next one if needed.
func (idx *Index) Intern(name string) (ModuleID, bool, error) {
	if id, ok := idx.NameToID[name]; ok {
		return id, false, nil
	}
	id, err := safecast.Conv[ModuleID](len(idx.IDToName))
	if err != nil {
		return 0, false, fmt.Errorf("tags: too many module identities: %w", err)
	}
	idx.NameToID[name] = id
	idx.IDToName = append(idx.IDToName, name)
	return id, true, nil
}

// Len returns the number of interned identities.
func (idx *Index) Len() int { return len(idx.IDToName) }
