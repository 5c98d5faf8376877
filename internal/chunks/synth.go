// Package chunks decides the output chunk of every crawled module.
//
// A module needed by exactly one chunk is inlined into it. A module needed by
// several chunks goes to a composite chunk named after the hash of the sorted
// tag combination; the CompositeTable remembers which chunks each composite
// serves so the runtime can load it alongside any of them.
package chunks

import (
	"chunkplan/internal/tags"
)

// Exclude is the final-map value for modules left to default chunking.
const Exclude = tags.Exclude

// TagSource exposes the deduplicated tags accumulated for a module.
type TagSource interface {
	Unique(id string) ([]string, error)
}

// Synthesizer assigns modules to chunks. Safe for concurrent use once the
// tag source is finalized.
type Synthesizer struct {
	tags      TagSource
	composite *CompositeTable
}

// NewSynthesizer creates a Synthesizer that records composites in table.
// A nil table starts empty.
func NewSynthesizer(src TagSource, table *CompositeTable) *Synthesizer {
	if table == nil {
		table = NewCompositeTable()
	}
	return &Synthesizer{tags: src, composite: table}
}

// Composites returns the table composites are recorded in.
func (s *Synthesizer) Composites() *CompositeTable { return s.composite }

// Assign returns the chunk name for id: the explicit chunkName, Exclude for
// excluded entries, "" when the module has no tags, the single tag, or a
// composite name for two or more distinct tags. The client bootstrap is not
// named here; it only tags its imports.
func (s *Synthesizer) Assign(id string) (string, error) {
	tag, ok, err := ParseChunkName(id)
	if err != nil {
		return "", err
	}
	if ok {
		return tag, nil
	}

	uniq, err := s.tags.Unique(id)
	if err != nil {
		return "", err
	}
	switch len(uniq) {
	case 0:
		return "", nil
	case 1:
		return uniq[0], nil
	default:
		return s.composite.Intern(uniq)
	}
}
