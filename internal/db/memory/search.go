package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/query"
)

// defaultTagSeparator is the TAG separator FT.CREATE assumes when none is set.
const defaultTagSeparator = ","

// document exposes a stored hash through an index definition.
type document struct {
	key    string
	fields map[string]string
	def    *db.IndexDefinition
}

// Values implements query.Document.
func (d *document) Values(alias string) []string {
	f, ok := d.def.Field(alias)
	if !ok {
		return nil
	}
	raw := d.raw(f.Name)
	if f.Type != db.IndexFieldTag {
		return raw
	}
	sep := f.TagSeparator
	if sep == "" {
		sep = defaultTagSeparator
	}
	var out []string
	for _, v := range raw {
		out = append(out, bucket.SplitTags(v, sep)...)
	}
	return out
}

// raw returns the stored values of a field path, expanding all-elements
// segments in natural key order.
func (d *document) raw(path string) []string {
	if !strings.Contains(path, bucket.AllElements) {
		if v, ok := d.fields[path]; ok {
			return []string{v}
		}
		return nil
	}
	var keys []string
	for k := range d.fields {
		if bucket.Match(path, k) {
			keys = append(keys, k)
		}
	}
	bucket.Sort(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = d.fields[k]
	}
	return out
}

type hit struct {
	doc   *document
	score float64
}

// Search evaluates q against every live hash under the index prefixes.
func (s *Store) Search(_ context.Context, index string, q *query.Query) (*db.SearchResult, error) {
	if index == "" {
		return nil, errors.New("index name is required")
	}

	s.mu.RLock()
	def, ok := s.indexes[index]
	if !ok {
		s.mu.RUnlock()
		return nil, &db.Error{Op: db.OpSearch, Key: index, Err: db.ErrIndexNotFound}
	}
	hashes := make(map[string]map[string]string)
	for key, h := range s.hashes {
		if s.expired(key) || !hasAnyPrefix(key, def.Prefixes) {
			continue
		}
		cp := make(map[string]string, len(h))
		for k, v := range h {
			cp[k] = v
		}
		hashes[key] = cp
	}
	s.mu.RUnlock()

	return Evaluate(def, hashes, q)
}

// Evaluate runs q over hashes indexed by def. The hashes must already be
// restricted to def's prefixes and must not be mutated concurrently.
func Evaluate(def *db.IndexDefinition, hashes map[string]map[string]string, q *query.Query) (*db.SearchResult, error) {
	if q == nil {
		return nil, errors.New("query is required")
	}

	docs := make([]*document, 0, len(hashes))
	for key, h := range hashes {
		docs = append(docs, &document{key: key, fields: h, def: def})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].key < docs[j].key })

	// documents the FILTER excludes are not in the index at all
	keep, err := compileFilter(def.Filter)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: def.Name, Err: err}
	}
	root := q.Root
	if root == nil {
		root = query.All
	}
	var hits []hit
	for _, d := range docs {
		if keep != nil && !keep.eval(d.fields).truthy() {
			continue
		}
		if root.Match(d) {
			hits = append(hits, hit{doc: d})
		}
	}

	if q.KNN != nil {
		if hits, err = nearest(hits, def, q.KNN); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Key: def.Name, Err: err}
		}
	}
	if q.SortBy != "" {
		sortHits(hits, q)
	}

	result := &db.SearchResult{Total: len(hits)}
	for _, h := range page(hits, q.Offset, q.Limit) {
		result.Entries = append(result.Entries, db.SearchEntry{
			Key:    h.doc.key,
			Score:  h.score,
			Fields: project(h.doc, q.Return),
		})
	}
	return result, nil
}

// hasAnyPrefix reports whether key starts with one of prefixes. No prefixes
// matches every key.
func hasAnyPrefix(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// nearest keeps the k hits closest to the query vector, nearest first.
func nearest(hits []hit, def *db.IndexDefinition, knn *query.KNN) ([]hit, error) {
	f, ok := def.Field(knn.Alias)
	if !ok || f.Type != db.IndexFieldVector {
		return nil, errors.New("unknown vector field " + knn.Alias)
	}
	scored := hits[:0]
	for _, h := range hits {
		raw, ok := h.doc.fields[f.Name]
		if !ok {
			continue
		}
		vec, err := codec.BytesToVector([]byte(raw))
		if err != nil || len(vec) != len(knn.Vector) {
			continue
		}
		h.score = distance(f.VectorDistance, knn.Vector, vec)
		scored = append(scored, h)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score < scored[j].score })
	if len(scored) > knn.K {
		scored = scored[:knn.K]
	}
	return scored, nil
}

// distance follows the FT.SEARCH conventions: squared Euclidean for L2,
// 1-dot for IP and 1-cosine similarity for COSINE.
func distance(metric db.DistanceMetric, a, b []float32) float64 {
	var dot, na, nb, l2 float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		l2 += (x - y) * (x - y)
	}
	switch metric {
	case db.DistanceL2:
		return l2
	case db.DistanceIP:
		return 1 - dot
	default:
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}

func sortHits(hits []hit, q *query.Query) {
	if q.KNN != nil && q.SortBy == q.KNN.ScoreAlias {
		sort.SliceStable(hits, func(i, j int) bool {
			if q.Desc {
				return hits[i].score > hits[j].score
			}
			return hits[i].score < hits[j].score
		})
		return
	}
	key := func(h hit) (string, bool) {
		vs := h.doc.Values(q.SortBy)
		if len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, okA := key(hits[i])
		b, okB := key(hits[j])
		if okA != okB {
			return okA // missing values sort last
		}
		c := compareValues(a, b)
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func page(hits []hit, offset, limit int) []hit {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}

// project returns the requested fields, resolving index aliases to stored
// paths. No fields requested means the whole hash.
func project(d *document, fields []string) map[string]string {
	if len(fields) == 0 {
		return d.fields
	}
	out := make(map[string]string, len(fields))
	for _, name := range fields {
		path := name
		if f, ok := d.def.Field(name); ok {
			path = f.Name
		}
		if v, ok := d.fields[path]; ok {
			out[name] = v
		}
	}
	return out
}
