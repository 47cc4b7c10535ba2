package mapping

import (
	"fmt"
	"strings"
	"time"
)

// CreationMode decides what index creation does when an index exists.
type CreationMode int

// Creation modes.
const (
	// SkipIfExist creates the index unless it already exists.
	SkipIfExist CreationMode = iota
	// DropAndRecreate drops an existing index before creating it.
	DropAndRecreate
	// SkipAlways never creates the index.
	SkipAlways
)

var creationModeNames = [...]string{"skip_if_exist", "drop_and_recreate", "skip_always"}

func (m CreationMode) String() string {
	if int(m) >= 0 && int(m) < len(creationModeNames) {
		return creationModeNames[m]
	}
	return "unknown"
}

// ParseCreationMode parses a mode name. The empty string is SkipIfExist.
func ParseCreationMode(s string) (CreationMode, error) {
	if s == "" {
		return SkipIfExist, nil
	}
	for i, name := range creationModeNames {
		if strings.EqualFold(s, name) {
			return CreationMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown creation mode %q", s)
}

// EntityOptions is the record-level metadata of a type.
type EntityOptions struct {
	Keyspace  string
	IndexName string
	// TTL is the default expiry applied on save. Zero means no expiry.
	TTL          time.Duration
	Language     string
	Filter       string
	CreationMode CreationMode
}

// Prefix returns the key prefix "keyspace:".
func (o EntityOptions) Prefix() string {
	return o.Keyspace + ":"
}

// Key returns the storage key of id.
func (o EntityOptions) Key(id string) string {
	return o.Keyspace + ":" + id
}

// EntityOption configures EntityOptions.
type EntityOption func(*EntityOptions)

// WithKeyspace overrides the keyspace.
func WithKeyspace(ks string) EntityOption {
	return func(o *EntityOptions) { o.Keyspace = ks }
}

// WithIndexName overrides the index name.
func WithIndexName(name string) EntityOption {
	return func(o *EntityOptions) { o.IndexName = name }
}

// WithTTL sets the default expiry.
func WithTTL(ttl time.Duration) EntityOption {
	return func(o *EntityOptions) { o.TTL = ttl }
}

// WithLanguage sets the index language.
func WithLanguage(lang string) EntityOption {
	return func(o *EntityOptions) { o.Language = lang }
}

// WithFilter sets the index filter expression.
func WithFilter(expr string) EntityOption {
	return func(o *EntityOptions) { o.Filter = expr }
}

// WithCreationMode sets the index creation mode.
func WithCreationMode(m CreationMode) EntityOption {
	return func(o *EntityOptions) { o.CreationMode = m }
}
