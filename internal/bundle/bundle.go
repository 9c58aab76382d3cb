// Package bundle is the read-only boundary snapshot shipped with the binary.
// It is keyed exactly like the boundary cache.
package bundle

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

//go:embed data/boundaries.json
var embedded []byte

type Bundle struct {
	entries map[string]string
}

// Load reads path, or the embedded snapshot when path is empty.
func Load(path string) (*Bundle, error) {
	raw := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read bundle %s: %w", path, err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Bundle, error) {
	entries := map[string]string{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &Bundle{entries: entries}, nil
}

// FromMap copies m.
func FromMap(m map[string]string) *Bundle {
	entries := make(map[string]string, len(m))
	for k, v := range m {
		entries[k] = v
	}
	return &Bundle{entries: entries}
}

// Lookup returns the serialized boundary under key. Blank values and empty
// objects are placeholders and read as absent.
func (b *Bundle) Lookup(key string) (string, bool) {
	if b == nil {
		return "", false
	}
	v, ok := b.entries[key]
	if !ok {
		return "", false
	}
	switch strings.TrimSpace(v) {
	case "", "{}", "null":
		return "", false
	}
	return v, true
}

// Keys lists every key with a usable value, sorted.
func (b *Bundle) Keys() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.entries))
	for k := range b.entries {
		if _, ok := b.Lookup(k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
