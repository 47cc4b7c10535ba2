package bucket

import "strings"

// DefaultSeparator joins tag-style collection values.
const DefaultSeparator = "|"

// JoinTags encodes values as a single separated tag string. The separator and
// backslash are escaped inside each element.
func JoinTags(values []string, sep string) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(EscapeTag(v, sep))
	}
	return sb.String()
}

// SplitTags decodes a string produced by JoinTags. It always returns at least
// one element.
func SplitTags(s, sep string) []string {
	if sep == "" {
		return []string{s}
	}
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case strings.HasPrefix(s[i:], sep):
			out = append(out, cur.String())
			cur.Reset()
			i += len(sep) - 1
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(out, cur.String())
}

// EscapeTag escapes backslashes and sep inside a single tag value.
func EscapeTag(v, sep string) string {
	if !strings.Contains(v, `\`) && (sep == "" || !strings.Contains(v, sep)) {
		return v
	}
	var sb strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' || (sep != "" && strings.HasPrefix(v[i:], sep)) {
			sb.WriteByte('\\')
		}
		sb.WriteByte(v[i])
	}
	return sb.String()
}
