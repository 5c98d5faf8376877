package chunks

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"chunkplan/internal/tags"
)

// Digest is a fixed 256-bit hash.
type Digest [32]byte

// nameBytes is how many digest bytes end up in a composite chunk name.
const nameBytes = 16

// Combine hashes the parts in order: H(len(p1) || p1 || len(p2) || p2 ...).
// Callers must pass the parts in a deterministic order.
func Combine(parts ...string) Digest {
	h := sha256.New()
	var lenBuf [4]byte
	for _, p := range parts {
		n := len(p)
		lenBuf[0] = byte(n >> 24)
		lenBuf[1] = byte(n >> 16)
		lenBuf[2] = byte(n >> 8)
		lenBuf[3] = byte(n)
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(p))
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Members returns the sorted, deduplicated form of a tag combination.
func Members(list []string) []string {
	out := tags.Dedup(list)
	slices.Sort(out)
	return out
}

// CompositeName returns the stable synthesized chunk name of a tag
// combination. Order and duplicates in list do not matter.
func CompositeName(list []string) string {
	d := Combine(Members(list)...)
	return hex.EncodeToString(d[:nameBytes])
}
