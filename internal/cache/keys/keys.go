// Package keys derives the storage addresses used for cached boundaries.
package keys

import "strings"

// Key is prefix + version + "_" + region name. The version tag is part of the
// key, so bumping it leaves previous entries unreachable.
func Key(prefix, version, region string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(version) + 1 + len(region))
	b.WriteString(prefix)
	b.WriteString(version)
	b.WriteByte('_')
	b.WriteString(region)
	return b.String()
}

// Scheme binds a prefix and version tag.
type Scheme struct {
	Prefix  string
	Version string
}

func (s Scheme) Key(region string) string {
	return Key(s.Prefix, s.Version, region)
}

// Region returns the region name for a key of this scheme, or false for keys
// written under another prefix or version.
func (s Scheme) Region(key string) (string, bool) {
	head := s.Prefix + s.Version + "_"
	if !strings.HasPrefix(key, head) {
		return "", false
	}
	return key[len(head):], true
}
