package bucket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPath is returned when a stored path does not follow the
// dot/bracket conventions.
var ErrMalformedPath = errors.New("malformed path")

// Join appends a property name to a path.
func Join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// TypeKeyFor returns the type-tag slot for path.
func TypeKeyFor(path string) string {
	if path == "" {
		return TypeKey
	}
	return path + "." + TypeKey
}

// IsTypeKey reports whether path is a type-tag slot.
func IsTypeKey(path string) bool {
	return path == TypeKey || strings.HasSuffix(path, "."+TypeKey)
}

// Index returns the path of the i-th collection element.
func Index(path string, i int) string {
	return path + ".[" + strconv.Itoa(i) + "]"
}

// MapEntry returns the path of a map entry. Brackets and backslashes inside
// the key are escaped.
func MapEntry(path, key string) string {
	return path + ".[" + escapeKey(key) + "]"
}

// MapKey parses the key out of a child path produced by MapEntry or Index.
func MapKey(path, child string) (string, error) {
	prefix := path + ".["
	if !strings.HasPrefix(child, prefix) {
		return "", fmt.Errorf("%w: %q is not an element of %q", ErrMalformedPath, child, path)
	}
	end := closingBracket(child, len(prefix))
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated key in %q", ErrMalformedPath, child)
	}
	return unescapeKey(child[len(prefix):end]), nil
}

// ElementIndex parses the collection index out of a child path.
func ElementIndex(path, child string) (int, error) {
	key, err := MapKey(path, child)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q has no collection index", ErrMalformedPath, child)
	}
	return i, nil
}

// Segments splits a path into its property names and bracket segments.
// Bracket segments keep their brackets: "m.[a.b].c" -> ["m", "[a.b]", "c"].
func Segments(path string) ([]string, error) {
	var out []string
	for path != "" {
		if path[0] == '[' {
			end := closingBracket(path, 1)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket in %q", ErrMalformedPath, path)
			}
			out = append(out, path[:end+1])
			path = path[end+1:]
		} else {
			dot := strings.IndexByte(path, '.')
			if dot < 0 {
				out = append(out, path)
				break
			}
			out = append(out, path[:dot])
			path = path[dot:]
		}
		if path == "" {
			break
		}
		if path[0] != '.' {
			return nil, fmt.Errorf("%w: expected '.' in %q", ErrMalformedPath, path)
		}
		path = path[1:]
		if path == "" {
			return nil, fmt.Errorf("%w: trailing '.'", ErrMalformedPath)
		}
	}
	return out, nil
}

// IsBracket reports whether a segment is a bracket segment.
func IsBracket(seg string) bool {
	return len(seg) >= 2 && seg[0] == '[' && seg[len(seg)-1] == ']'
}

// BracketKey returns the unescaped content of a bracket segment.
func BracketKey(seg string) string {
	return unescapeKey(seg[1 : len(seg)-1])
}

// closingBracket returns the index of the first unescaped ']' at or after
// from, or -1.
func closingBracket(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case ']':
			return i
		}
	}
	return -1
}

func escapeKey(key string) string {
	if !strings.ContainsAny(key, `\[]`) {
		return key
	}
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '\\' || c == '[' || c == ']' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func unescapeKey(key string) string {
	if !strings.Contains(key, `\`) {
		return key
	}
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		if key[i] == '\\' && i+1 < len(key) {
			i++
		}
		sb.WriteByte(key[i])
	}
	return sb.String()
}

// Match reports whether path matches pattern. An AllElements segment in the
// pattern matches any single bracket segment.
func Match(pattern, path string) bool {
	if !strings.Contains(pattern, AllElements) {
		return pattern == path
	}
	ps, err := Segments(pattern)
	if err != nil {
		return false
	}
	segs, err := Segments(path)
	if err != nil || len(segs) != len(ps) {
		return false
	}
	for i, p := range ps {
		if p == AllElements {
			if !IsBracket(segs[i]) {
				return false
			}
			continue
		}
		if p != segs[i] {
			return false
		}
	}
	return true
}
