package domain

import (
	"sort"
	"strings"
)

// TagSet maps object tag names to values.
type TagSet map[string]string

// MarkerTags returns the fixed tag set tracked for directive and record files.
func MarkerTags() TagSet {
	return TagSet{"storage-class": "infrequent-access"}
}

func (t TagSet) Clone() TagSet {
	if t == nil {
		return TagSet{}
	}
	copy := make(TagSet, len(t))
	for k, v := range t {
		copy[k] = v
	}
	return copy
}

// Equal reports whether both sets hold the same keys and values. A nil set
// equals an empty one.
func (t TagSet) Equal(other TagSet) bool {
	if len(t) != len(other) {
		return false
	}
	for k, v := range t {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

func (t TagSet) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t TagSet) String() string {
	parts := make([]string, 0, len(t))
	for _, k := range t.Keys() {
		parts = append(parts, k+"="+t[k])
	}
	return strings.Join(parts, ";")
}
