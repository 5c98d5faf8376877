package chunks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrCompositeCollision reports two different tag combinations hashing to the
// same composite name.
var ErrCompositeCollision = errors.New("chunks: composite name collision")

// CompositeTable maps synthesized chunk names to their member tags. It keeps
// insertion order, which is also the order of the persisted JSON object.
// Safe for concurrent use.
type CompositeTable struct {
	mu      sync.RWMutex
	order   []string
	members map[string][]string
}

// NewCompositeTable creates an empty table.
func NewCompositeTable() *CompositeTable {
	return &CompositeTable{members: make(map[string][]string)}
}

// Intern returns the composite name for the combination, adding it to the
// table on first use.
func (t *CompositeTable) Intern(list []string) (string, error) {
	members := Members(list)
	name := CompositeName(members)

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.members[name]; ok {
		if !slices.Equal(existing, members) {
			return "", fmt.Errorf("%w: %s is %v and %v", ErrCompositeCollision, name, existing, members)
		}
		return name, nil
	}
	t.members[name] = members
	t.order = append(t.order, name)
	return name, nil
}

// Lookup returns the members of a composite.
func (t *CompositeTable) Lookup(name string) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.members[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(m), true
}

// Names lists composite names in insertion order.
func (t *CompositeTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order)
}

// Len returns the number of composites.
func (t *CompositeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Containing lists, in table order, every composite whose members include at
// least one of the given tags.
func (t *CompositeTable) Containing(anyOf ...string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for _, name := range t.order {
		m := t.members[name]
		for _, tag := range anyOf {
			if slices.Contains(m, tag) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// MarshalJSON writes {"<name>": [tags...], ...} in insertion order.
func (t *CompositeTable) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.members[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the persisted object keeping key order. Member lists are
// taken verbatim.
func (t *CompositeTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("chunks: composite table must be a JSON object, got %v", tok)
	}
	order := make([]string, 0)
	members := make(map[string][]string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("chunks: unexpected key %v", keyTok)
		}
		var list []string
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("chunks: composite %q: %w", name, err)
		}
		if _, dup := members[name]; !dup {
			order = append(order, name)
		}
		members[name] = list
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	t.mu.Lock()
	t.order = order
	t.members = members
	t.mu.Unlock()
	return nil
}
