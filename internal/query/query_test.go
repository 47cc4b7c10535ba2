package query

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/geo"
)

type fieldMap map[string]Field

func (m fieldMap) Lookup(name string) (Field, bool) {
	f, ok := m[name]
	return f, ok
}

type doc map[string][]string

func (d doc) Values(alias string) []string { return d[alias] }

var testFields = fieldMap{
	"name":              {Alias: "name", Kind: KindTag},
	"code":              {Alias: "code", Kind: KindTag, CaseSensitive: true},
	"employees":         {Alias: "employees", Kind: KindNumeric},
	"founded":           {Alias: "founded", Kind: KindNumeric},
	"description":       {Alias: "description", Kind: KindText},
	"location":          {Alias: "location", Kind: KindGeo},
	"address.city":      {Alias: "address_city", Kind: KindTag},
	"embedding":         {Alias: "embedding", Kind: KindVector},
	"tags":              {Alias: "tags", Kind: KindTag},
	"metrics.[*].score": {Alias: "metrics_score", Kind: KindNumeric},
}

func build(t *testing.T, ps ...Predicate) *Query {
	t.Helper()
	q, err := NewBuilder(Scope{Fields: testFields}).Where(ps...).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return q
}

func TestRender(t *testing.T) {
	founded := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sf := geo.NewPoint(-122.4194, 37.7749)

	tests := []struct {
		name string
		pred Predicate
		want string
	}{
		{"tag eq", Tag("name").Eq("RedisInc"), "@name:{RedisInc}"},
		{"tag eq escapes", Tag("name").Eq("Redis Inc."), `@name:{Redis\ Inc\.}`},
		{"tag not eq", Tag("name").NotEq("x"), "-@name:{x}"},
		{"tag in", Tag("name").In("a", "b"), "(@name:{a} | @name:{b})"},
		{"tag not in", Tag("name").NotIn("a", "b"), "-(@name:{a} | @name:{b})"},
		{"tag contains all", Tag("tags").ContainsAll("x", "y"), "(@tags:{x} @tags:{y})"},
		{"nested alias", Tag("address.city").Eq("Paris"), "@address_city:{Paris}"},
		{"numeric eq", Numeric("employees").Eq(100), "@employees:[100 100]"},
		{"numeric gt", Numeric("employees").Gt(10), "@employees:[(10 +inf]"},
		{"numeric ge", Numeric("employees").Ge(10), "@employees:[10 +inf]"},
		{"numeric lt", Numeric("employees").Lt(10.5), "@employees:[-inf (10.5]"},
		{"numeric le", Numeric("employees").Le(uint8(7)), "@employees:[-inf 7]"},
		{"numeric between", Numeric("employees").Between(1, 5), "@employees:[1 5]"},
		{"numeric in", Numeric("employees").In(1, 2), "(@employees:[1 1] | @employees:[2 2])"},
		{"numeric time", Numeric("founded").Eq(founded), "@founded:[1577836800 1577836800]"},
		{"numeric fractional time", Numeric("founded").Eq(founded.Add(500 * time.Millisecond)), "@founded:[1577836800.5 1577836800.5]"},
		{"numeric multi value", Numeric("metrics.[*].score").Gt(3), "@metrics_score:[(3 +inf]"},
		{"text eq", Text("description").Eq("fast cache"), `@description:"fast cache"`},
		{"text prefix", Text("description").StartsWith("cach"), "@description:cach*"},
		{"text contains", Text("description").Containing("ach"), "@description:*ach*"},
		{"text like", Text("description").Like("cahce"), "@description:%cahce%"},
		{"text not like", Text("description").NotLike("x"), "-@description:%x%"},
		{"geo near", Geo("location").Near(sf, 10, geo.Kilometers), "@location:[-122.4194 37.7749 10 km]"},
		{"geo eq", Geo("location").Eq(sf), "@location:[-122.4194 37.7749 0.0001 mi]"},
		{"geo outside", Geo("location").OutsideOf(sf, 5, geo.Miles), "-@location:[-122.4194 37.7749 5 mi]"},
		{
			"and flattens",
			AllOf(Tag("name").Eq("a"), AllOf(Numeric("employees").Gt(1), Tag("code").Eq("X"))),
			"(@name:{a} @employees:[(1 +inf] @code:{X})",
		},
		{
			"or",
			AnyOf(Tag("name").Eq("a"), Tag("name").Eq("b")),
			"(@name:{a} | @name:{b})",
		},
		{
			"or inside and",
			AllOf(Numeric("employees").Gt(1), AnyOf(Tag("name").Eq("a"), Tag("name").Eq("b"))),
			"(@employees:[(1 +inf] (@name:{a} | @name:{b}))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := build(t, tt.pred).String()
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnknownFieldIsNoOp(t *testing.T) {
	q := build(t, Tag("missing").Eq("x"))
	if q.Root != All {
		t.Errorf("expected All, got %q", q.Root)
	}
	q = build(t, Tag("name").Eq("a"), Numeric("missing").Gt(1))
	if got := q.String(); got != "@name:{a}" {
		t.Errorf("got %q", got)
	}
	q = build(t, AnyOf(Tag("name").Eq("a"), Tag("missing").Eq("b")))
	if q.Root != All {
		t.Errorf("or with an unknown branch should match everything, got %q", q.Root)
	}
}

func TestKindMismatch(t *testing.T) {
	_, err := NewBuilder(Scope{Fields: testFields}).Where(Numeric("name").Gt(1)).Build()
	if !errors.Is(err, ErrFieldKind) {
		t.Fatalf("expected ErrFieldKind, got %v", err)
	}
	_, err = NewBuilder(Scope{Fields: testFields}).Nearest(Vector("name").KNN(3, []float32{1})).Build()
	if !errors.Is(err, ErrFieldKind) {
		t.Fatalf("expected ErrFieldKind, got %v", err)
	}
}

func TestBadOperand(t *testing.T) {
	_, err := NewBuilder(Scope{Fields: testFields}).Where(Numeric("employees").Eq("ten")).Build()
	if !errors.Is(err, ErrOperand) {
		t.Fatalf("expected ErrOperand, got %v", err)
	}
	_, err = NewBuilder(Scope{Fields: testFields}).
		Where(Geo("location").Near(geo.Point{Lon: 200}, 1, geo.Meters)).Build()
	if !errors.Is(err, geo.ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint, got %v", err)
	}
}

func TestNumber_Time(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	got, err := Number(at)
	if err != nil {
		t.Fatalf("Number: %v", err)
	}
	stored, err := strconv.ParseFloat(codec.FormatEpoch(at), 64)
	if err != nil {
		t.Fatalf("ParseFloat: %v", err)
	}
	if got != stored {
		t.Errorf("Number = %v, stored value parses to %v", got, stored)
	}
	if got, _ := Number(&at); got != stored {
		t.Errorf("Number(pointer) = %v, want %v", got, stored)
	}
	if _, err := Number((*time.Time)(nil)); !errors.Is(err, ErrOperand) {
		t.Errorf("Number(nil) err = %v, want ErrOperand", err)
	}
}

func TestGeoEqualityRadius(t *testing.T) {
	scope := Scope{Fields: testFields, GeoEquality: Distance{Value: 5, Unit: geo.Meters}}
	q, err := NewBuilder(scope).Where(Geo("location").Eq(geo.NewPoint(1, 2))).Build()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := q.String(), "@location:[1 2 5 m]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestKNN(t *testing.T) {
	vec := []float32{0.5, 1}
	q, err := NewBuilder(Scope{Fields: testFields}).
		Where(Tag("name").Eq("a")).
		Nearest(Vector("embedding").KNN(5, vec)).
		SortByScore().
		Build()
	if err != nil {
		t.Fatal(err)
	}
	want := "(@name:{a})=>[KNN 5 @embedding $BLOB AS __embedding_score]"
	if got := q.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if q.SortBy != "__embedding_score" {
		t.Errorf("sort by %q", q.SortBy)
	}
	params := q.Params()
	if len(params) != 2 || params[0] != "BLOB" {
		t.Fatalf("params %v", params)
	}
	got, err := codec.BytesToVector([]byte(params[1]))
	if err != nil || len(got) != 2 || got[0] != 0.5 || got[1] != 1 {
		t.Errorf("blob decodes to %v (%v)", got, err)
	}

	q, err = NewBuilder(Scope{Fields: testFields}).Nearest(Vector("embedding").KNN(2, vec)).Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := q.String(); !strings.HasPrefix(got, "*=>[KNN 2 ") {
		t.Errorf("got %q", got)
	}

	q, err = NewBuilder(Scope{Fields: testFields}).Nearest(Vector("unknown").KNN(2, vec)).Build()
	if err != nil {
		t.Fatal(err)
	}
	if q.KNN != nil {
		t.Error("KNN on unknown field should be dropped")
	}
}

func TestBuilderSortAndPage(t *testing.T) {
	q, err := NewBuilder(Scope{Fields: testFields}).SortBy("address.city", true).Page(20, 5).Build()
	if err != nil {
		t.Fatal(err)
	}
	if q.SortBy != "address_city" || !q.Desc || q.Offset != 20 || q.Limit != 5 {
		t.Errorf("unexpected query %+v", q)
	}
	if _, err := NewBuilder(Scope{Fields: testFields}).SortBy("missing", false).Build(); err == nil {
		t.Error("expected error for unknown sort field")
	}
	if _, err := NewBuilder(Scope{Fields: testFields}).Page(-1, 5).Build(); err == nil {
		t.Error("expected error for negative offset")
	}
	q, _ = NewBuilder(Scope{Fields: testFields}).Build()
	if q.Limit != DefaultLimit {
		t.Errorf("default limit %d", q.Limit)
	}
}

func TestMatch(t *testing.T) {
	d := doc{
		"name":        {"Redis"},
		"code":        {"RDS"},
		"employees":   {"120"},
		"description": {"An in-memory data store and cache"},
		"location":    {"-122.4194,37.7749"},
		"tags":        {"db", "cache"},
	}
	oakland := geo.NewPoint(-122.2711, 37.8044)

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"tag case insensitive", Tag("name").Eq("redis"), true},
		{"tag case sensitive", Tag("code").Eq("rds"), false},
		{"tag multi value", Tag("tags").Eq("cache"), true},
		{"tag contains all", Tag("tags").ContainsAll("db", "cache"), true},
		{"tag contains all miss", Tag("tags").ContainsAll("db", "queue"), false},
		{"tag not in", Tag("name").NotIn("Mongo", "Postgres"), true},
		{"numeric range", Numeric("employees").Between(100, 200), true},
		{"numeric exclusive", Numeric("employees").Gt(120), false},
		{"numeric inclusive", Numeric("employees").Le(120), true},
		{"text phrase", Text("description").Eq("data store"), true},
		{"text phrase order", Text("description").Eq("store data"), false},
		{"text prefix", Text("description").StartsWith("mem"), true},
		{"text contains", Text("description").Containing("ach"), true},
		{"text fuzzy", Text("description").Like("cahe"), true},
		{"text fuzzy miss", Text("description").Like("cxxe"), false},
		{"geo near", Geo("location").Near(oakland, 20, geo.Kilometers), true},
		{"geo too far", Geo("location").Near(oakland, 5, geo.Kilometers), false},
		{"geo eq", Geo("location").Eq(geo.NewPoint(-122.4194, 37.7749)), true},
		{"or", AnyOf(Tag("name").Eq("x"), Numeric("employees").Gt(100)), true},
		{"and", AllOf(Tag("name").Eq("x"), Numeric("employees").Gt(100)), false},
		{"missing value", Tag("address.city").Eq("Paris"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := build(t, tt.pred)
			if got := q.Root.Match(d); got != tt.want {
				t.Errorf("Match(%s) = %v, want %v", q.Root, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! in-memory 42")
	want := []string{"hello", "world", "in", "memory", "42"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("got %v, want %v", got, want)
	}
}
