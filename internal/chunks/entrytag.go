package chunks

import (
	"errors"
	"fmt"
	"strings"

	"chunkplan/internal/tags"
)

const chunkNameMarker = "chunkName"

// ErrMalformedEntryTag reports an id carrying an unparseable chunkName query.
var ErrMalformedEntryTag = errors.New("chunks: malformed entry tag")

// ParseEntryTag extracts the tag an entry module hands to its imports during
// discovery. Route modules carry "?chunkName=<tag>", which wins; the client
// bootstrap carries tags.ClientEntry. ok is false for ordinary modules.
func ParseEntryTag(id string) (tag string, ok bool, err error) {
	tag, ok, err = ParseChunkName(id)
	if err != nil || ok {
		return tag, ok, err
	}
	if strings.Contains(id, tags.ClientEntry) {
		return tags.ClientEntry, true, nil
	}
	return "", false, nil
}

// ParseChunkName extracts the explicit "?chunkName=<tag>" of a declared route
// module. The client bootstrap has no chunk name of its own.
func ParseChunkName(id string) (tag string, ok bool, err error) {
	idx := strings.Index(id, chunkNameMarker)
	if idx < 0 {
		return "", false, nil
	}
	rest := id[idx+len(chunkNameMarker):]
	if !strings.HasPrefix(rest, "=") {
		return "", false, fmt.Errorf("%w: %q has no chunkName value", ErrMalformedEntryTag, id)
	}
	value := rest[1:]
	if cut := strings.IndexAny(value, "&#"); cut >= 0 {
		value = value[:cut]
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false, fmt.Errorf("%w: %q has an empty chunkName", ErrMalformedEntryTag, id)
	}
	return value, true, nil
}
