package omhash

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newSearchFixture(t *testing.T) *Repository[Company] {
	t.Helper()
	c := newTestClient(t, WithEmbedder(&countingEmbedder{}), WithAutoIndex())
	r := registerCompanies(t, c)
	seedCompanies(t, r)
	return r
}

func ids[T any](res *Result[T]) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.ID
	}
	return out
}

func TestSearch(t *testing.T) {
	r := newSearchFixture(t)

	tests := []struct {
		name      string
		build     func(*SearchBuilder[Company]) *SearchBuilder[Company]
		want      []string
		wantTotal int
	}{
		{
			name: "tag sorted desc",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Where(Tag("hq.city").Eq("Berlin")).SortBy("employees", true)
			},
			want:      []string{"acme", "globex"},
			wantTotal: 2,
		},
		{
			name: "numeric range",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Where(Numeric("employees").Lt(20)).SortBy("employees", false)
			},
			want:      []string{"initech", "globex"},
			wantTotal: 2,
		},
		{
			name: "or",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Where(Or(Tag("tags").Eq("saas"), Numeric("employees").Gt(100))).SortBy("employees", false)
			},
			want:      []string{"initech", "acme"},
			wantTotal: 2,
		},
		{
			name: "geo radius",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Where(Geo("hq.point").Near(NewPoint(13.4, 52.52), 10, Kilometers)).SortBy("employees", true)
			},
			want:      []string{"acme", "globex"},
			wantTotal: 2,
		},
		{
			name: "page",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.SortBy("employees", false).Page(1, 1)
			},
			want:      []string{"globex"},
			wantTotal: 3,
		},
		{
			name: "knn",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.KNN("embedding", 1, []float32{6, 1})
			},
			want:      []string{"acme"},
			wantTotal: 1,
		},
		{
			name: "similar text",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Similar("embedding", 2, "ab")
			},
			want:      []string{"globex", "acme"},
			wantTotal: 2,
		},
		{
			name: "nearest",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Nearest(Vector("embedding").KNN(2, []float32{9, 1}))
			},
			want:      []string{"initech", "acme"},
			wantTotal: 2,
		},
		{
			name: "post filter",
			build: func(b *SearchBuilder[Company]) *SearchBuilder[Company] {
				return b.Where(Tag("tags").Eq("b2b")).
					SortBy("employees", false).
					Filter(func(c *Company) bool { return c.HQ != nil && c.HQ.City == "Austin" })
			},
			want:      []string{"initech"},
			wantTotal: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.build(r.Search()).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := ids(res)
			if len(got) != len(tt.want) {
				t.Fatalf("hits = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("hits = %v, want %v", got, tt.want)
				}
			}
			if res.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", res.Total, tt.wantTotal)
			}
			for i, item := range res.Items() {
				if item == nil || item.ID != got[i] {
					t.Errorf("item %d = %+v", i, item)
				}
			}
		})
	}
}

func TestSearch_KNNScore(t *testing.T) {
	r := newSearchFixture(t)
	res, err := r.Search().KNN("embedding", 1, []float32{6, 1}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Score != 1 {
		t.Errorf("hits = %+v, want acme at squared distance 1", res.Hits)
	}
}

func TestSearch_Query(t *testing.T) {
	r := newSearchFixture(t)
	got, err := r.Search().
		Where(Tag("hq.city").Eq("Berlin"), Numeric("employees").Gt(10)).
		Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want := "(@hq_city:{Berlin} @employees:[(10 +inf])"; got != want {
		t.Errorf("query = %q, want %q", got, want)
	}

	_, err = r.Search().Where(Numeric("hq.city").Eq(1)).Query()
	if !errors.Is(err, ErrFieldKind) {
		t.Errorf("err = %v, want ErrFieldKind", err)
	}
}

func TestSearch_First(t *testing.T) {
	r := newSearchFixture(t)
	ctx := context.Background()

	got, err := r.Search().Where(Tag("hq.city").Eq("Austin")).First(ctx)
	if err != nil || got.ID != "initech" {
		t.Errorf("First = %+v, %v", got, err)
	}
	if _, err := r.Search().Where(Tag("hq.city").Eq("Paris")).First(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("First without match: %v", err)
	}
}

func TestSearch_SimilarWithoutEmbedder(t *testing.T) {
	c := newTestClient(t, WithAutoIndex())
	r := registerCompanies(t, c)
	_, err := r.Search().Similar("embedding", 1, "text").Run(context.Background())
	if !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("err = %v, want ErrNoEmbedder", err)
	}
}

func TestSearch_NoIndex(t *testing.T) {
	c := newTestClient(t, WithEmbedder(&countingEmbedder{}))
	r := registerCompanies(t, c)
	if _, err := r.Search().Run(context.Background()); err == nil {
		t.Error("expected error searching without an index")
	}
}

type Startup struct {
	ID          string              `om:"id,id"`
	Name        string              `om:"name,text"`
	YearFounded int                 `om:"yearFounded,indexed"`
	Tags        map[string]struct{} `om:"tags,indexed"`
}

func TestSearch_RangeAndMembership(t *testing.T) {
	c := newTestClient(t, WithAutoIndex())
	r, err := Register[Startup](c)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()
	startups := []*Startup{
		{ID: "s1", Name: "Micro", YearFounded: 1975, Tags: map[string]struct{}{"a": {}, "c": {}}},
		{ID: "s2", Name: "Middle", YearFounded: 2003, Tags: map[string]struct{}{"d": {}}},
		{ID: "s3", Name: "Late", YearFounded: 2011, Tags: map[string]struct{}{"e": {}}},
	}
	if _, err := r.SaveAll(ctx, startups); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	res, err := r.Search().Where(Numeric("yearFounded").Between(1976, 2010)).Run(ctx)
	if err != nil {
		t.Fatalf("between: %v", err)
	}
	if got := res.Items(); len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("between = %v, want [s2]", got)
	}

	res, err = r.Search().Where(Tag("tags").In("a", "b")).Run(ctx)
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	if got := res.Items(); len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("in = %v, want [s1]", got)
	}
}

type Event struct {
	ID string    `om:"id,id"`
	At time.Time `om:"at,indexed,sortable"`
}

func TestSearch_FractionalTime(t *testing.T) {
	c := newTestClient(t, WithAutoIndex())
	r, err := Register[Event](c)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.UTC)
	if _, err := r.SaveAll(ctx, []*Event{{ID: "e1", At: at}, {ID: "e2", At: at.Add(-400 * time.Millisecond)}}); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	tests := []struct {
		name string
		pred Predicate
		want []string
	}{
		{"eq", Numeric("at").Eq(at), []string{"e1"}},
		{"lt", Numeric("at").Lt(at), []string{"e2"}},
		{"between", Numeric("at").Between(at.Add(-time.Second), at), []string{"e1", "e2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Search().Where(tt.pred).SortBy("at", true).Run(ctx)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := ids(res)
			if len(got) != len(tt.want) {
				t.Fatalf("hits = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("hits = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
