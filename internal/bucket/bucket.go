// Package bucket holds the flat, path-keyed representation of a single record.
//
// Paths are dot-separated property names with bracket segments for collection
// indexes and map keys: address.city, tags.[0], scores.[k].
package bucket

import (
	"sort"
	"strings"
)

const (
	// TypeKey is the type-tag slot of the record itself.
	TypeKey = "_class"
	// RawKey holds an opaque whole-record encoding.
	RawKey = "_raw"
	// AllElements is the path marker for "every element of a collection".
	AllElements = "[*]"
)

// Bucket is an ordered path → bytes map for one record.
// A Bucket is not safe for concurrent mutation.
type Bucket struct {
	data map[string][]byte
}

// New creates an empty Bucket.
func New() *Bucket {
	return &Bucket{data: make(map[string][]byte)}
}

// FromMap builds a Bucket from hash fields as returned by a store.
func FromMap(m map[string]string) *Bucket {
	b := &Bucket{data: make(map[string][]byte, len(m))}
	for k, v := range m {
		b.data[k] = []byte(v)
	}
	return b
}

// FromBytes builds a Bucket from raw field values.
func FromBytes(m map[string][]byte) *Bucket {
	b := &Bucket{data: make(map[string][]byte, len(m))}
	for k, v := range m {
		b.data[k] = v
	}
	return b
}

// Put stores value at path, overwriting any previous value.
func (b *Bucket) Put(path string, value []byte) {
	b.data[path] = value
}

// Get returns the value at path.
func (b *Bucket) Get(path string) ([]byte, bool) {
	v, ok := b.data[path]
	return v, ok
}

// Has reports whether path has a direct value.
func (b *Bucket) Has(path string) bool {
	_, ok := b.data[path]
	return ok
}

// Remove deletes path.
func (b *Bucket) Remove(path string) {
	delete(b.data, path)
}

// Len returns the number of entries.
func (b *Bucket) Len() int {
	return len(b.data)
}

// IsEmpty reports whether the bucket has no entries.
func (b *Bucket) IsEmpty() bool {
	return len(b.data) == 0
}

// Keys returns all paths in natural order.
func (b *Bucket) Keys() []string {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	Sort(keys)
	return keys
}

// HasPrefix reports whether any path starts with prefix.
func (b *Bucket) HasPrefix(prefix string) bool {
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Extract returns the entries whose path starts with prefix.
// A "prefix." lookup strips the prefix from the returned paths so the result
// can be read as a standalone record; any other prefix keeps the full paths.
func (b *Bucket) Extract(prefix string) *Bucket {
	strip := strings.HasSuffix(prefix, ".")
	out := New()
	for k, v := range b.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if strip {
			out.data[k[len(prefix):]] = v
		} else {
			out.data[k] = v
		}
	}
	return out
}

// ExtractAllKeysFor returns the immediate children of path, that is every
// distinct "path.[x]" that prefixes a stored path, in natural order.
// An unterminated bracket segment is returned as the full stored path so the
// caller can reject it.
func (b *Bucket) ExtractAllKeysFor(path string) []string {
	prefix := path + ".["
	seen := make(map[string]struct{})
	for k := range b.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		end := closingBracket(k, len(prefix))
		child := k
		if end >= 0 {
			child = k[:end+1]
		}
		seen[child] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	Sort(out)
	return out
}

// Map returns a copy of the entries as hash fields.
func (b *Bucket) Map() map[string]string {
	out := make(map[string]string, len(b.data))
	for k, v := range b.data {
		out[k] = string(v)
	}
	return out
}

// Bytes returns a copy of the entries.
func (b *Bucket) Bytes() map[string][]byte {
	out := make(map[string][]byte, len(b.data))
	for k, v := range b.data {
		out[k] = v
	}
	return out
}

// Sort orders paths in place with the natural comparator.
func Sort(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return Compare(paths[i], paths[j]) < 0
	})
}
