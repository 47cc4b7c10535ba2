package query

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/kailas-cloud/omhash/internal/geo"
)

// TagNode matches an exact tag value. Comparison is case-insensitive unless
// CaseSensitive is set.
type TagNode struct {
	Alias         string
	Value         string
	CaseSensitive bool
}

func (n *TagNode) String() string {
	return "@" + n.Alias + ":{" + EscapeTag(n.Value) + "}"
}

// Match implements Node.
func (n *TagNode) Match(doc Document) bool {
	for _, v := range doc.Values(n.Alias) {
		if v == n.Value || (!n.CaseSensitive && strings.EqualFold(v, n.Value)) {
			return true
		}
	}
	return false
}

// NumericNode matches numeric values within a range.
type NumericNode struct {
	Alias        string
	Min, Max     float64
	MinExclusive bool
	MaxExclusive bool
}

func (n *NumericNode) String() string {
	return "@" + n.Alias + ":[" + bound(n.Min, n.MinExclusive) + " " + bound(n.Max, n.MaxExclusive) + "]"
}

// Match implements Node.
func (n *NumericNode) Match(doc Document) bool {
	for _, raw := range doc.Values(n.Alias) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if v < n.Min || (n.MinExclusive && v == n.Min) {
			continue
		}
		if v > n.Max || (n.MaxExclusive && v == n.Max) {
			continue
		}
		return true
	}
	return false
}

func bound(v float64, exclusive bool) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if exclusive {
		return "(" + s
	}
	return s
}

// TextMode selects how a text value is matched.
type TextMode int

// Text match modes.
const (
	// Phrase matches the exact token sequence.
	Phrase TextMode = iota
	// Prefix matches tokens starting with the value.
	Prefix
	// Contains matches tokens containing the value.
	Contains
	// Fuzzy matches tokens within Levenshtein distance 1.
	Fuzzy
)

// TextNode matches full-text values.
type TextNode struct {
	Alias string
	Mode  TextMode
	Value string
}

func (n *TextNode) String() string {
	var term string
	switch n.Mode {
	case Prefix:
		term = EscapeQuery(n.Value) + "*"
	case Contains:
		term = "*" + EscapeQuery(n.Value) + "*"
	case Fuzzy:
		term = "%" + EscapeQuery(n.Value) + "%"
	default:
		term = `"` + phraseEscaper.Replace(n.Value) + `"`
	}
	return "@" + n.Alias + ":" + term
}

// Match implements Node.
func (n *TextNode) Match(doc Document) bool {
	needle := strings.ToLower(n.Value)
	for _, raw := range doc.Values(n.Alias) {
		tokens := Tokenize(raw)
		switch n.Mode {
		case Phrase:
			if containsSequence(tokens, Tokenize(n.Value)) {
				return true
			}
		case Prefix:
			for _, t := range tokens {
				if strings.HasPrefix(t, needle) {
					return true
				}
			}
		case Contains:
			for _, t := range tokens {
				if strings.Contains(t, needle) {
					return true
				}
			}
		case Fuzzy:
			for _, t := range tokens {
				if withinOneEdit(t, needle) {
					return true
				}
			}
		}
	}
	return false
}

// Tokenize lower-cases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSequence(tokens, seq []string) bool {
	if len(seq) == 0 {
		return false
	}
	for i := 0; i+len(seq) <= len(tokens); i++ {
		match := true
		for j := range seq {
			if tokens[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func withinOneEdit(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(ra)-len(rb) > 1 {
		return false
	}
	edits := 0
	for i, j := 0, 0; i < len(ra); {
		if j < len(rb) && ra[i] == rb[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(ra) == len(rb) {
			j++
		}
		i++
	}
	return true
}

// GeoNode matches points within a radius of a center.
type GeoNode struct {
	Alias  string
	Center geo.Point
	Radius float64
	Unit   geo.Unit
}

func (n *GeoNode) String() string {
	return "@" + n.Alias + ":[" +
		strconv.FormatFloat(n.Center.Lon, 'f', -1, 64) + " " +
		strconv.FormatFloat(n.Center.Lat, 'f', -1, 64) + " " +
		strconv.FormatFloat(n.Radius, 'f', -1, 64) + " " + string(n.Unit) + "]"
}

// Match implements Node.
func (n *GeoNode) Match(doc Document) bool {
	limit := n.Unit.Meters(n.Radius)
	for _, raw := range doc.Values(n.Alias) {
		p, err := geo.ParsePoint(raw)
		if err != nil {
			continue
		}
		if geo.Distance(n.Center, p) <= limit {
			return true
		}
	}
	return false
}
