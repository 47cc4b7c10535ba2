package convert

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/geo"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/metrics"
)

type Address struct {
	Street string `om:"street"`
	City   string `om:"city,indexed"`
}

type Person struct {
	Name string `om:"name"`
}

type Company struct {
	ID        string              `om:"id,id"`
	Name      string              `om:"name,indexed"`
	Founded   time.Time           `om:"founded"`
	Location  geo.Point           `om:"location"`
	Ref       uuid.UUID           `om:"ref"`
	Employees int                 `om:"employees"`
	Public    bool                `om:"public"`
	HQ        *Address            `om:"hq"`
	Offices   []Address           `om:"offices"`
	Tags      []string            `om:"tags,tag"`
	Aliases   []string            `om:"aliases"`
	Scores    []int               `om:"scores"`
	Labels    map[string]string   `om:"labels"`
	Codes     map[string]struct{} `om:"codes"`
	Owner     any                 `om:"owner"`
	Parent    *Company            `om:"parent,ref"`
	Partners  []*Company          `om:"partners,ref"`
	Embedding []float32           `om:"embedding,vector,dim=2"`
}

type node struct {
	ID   string `om:"id,id"`
	Next *node  `om:"next"`
}

type blob struct {
	A int
	B []string
}

func newConverter(opts ...Option) *Converter {
	return New(mapping.NewRegistry(codec.NewRegistry()), opts...)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	c := newConverter()
	in := Company{
		ID:        "acme",
		Name:      "Acme",
		Founded:   time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		Location:  geo.NewPoint(13.4, 52.5),
		Ref:       uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Employees: 42,
		Public:    true,
		HQ:        &Address{Street: "Main 1", City: "Berlin"},
		Offices:   []Address{{City: "Paris"}, {City: "Rome"}},
		Tags:      []string{"a|b", "c"},
		Aliases:   []string{"x", "y"},
		Scores:    []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		Labels:    map[string]string{"plain": "1", "a[b]": "2", `c\d`: "3"},
		Codes:     map[string]struct{}{"z": {}, "a": {}},
		Owner:     Person{Name: "Ann"},
		Embedding: []float32{0.5, -1},
	}

	b, err := c.Write(&in)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	wants := map[string]string{
		"_class":            "Company",
		"id":                "acme",
		"founded":           "1577934245",
		"location":          "13.4,52.5",
		"hq.city":           "Berlin",
		"offices.[1].city":  "Rome",
		"tags":              `a\|b|c`,
		"scores.[10]":       "10",
		"labels.[a\\[b\\]]": "2",
		"codes.[0]":         "a",
		"codes.[1]":         "z",
		"owner._class":      "Person",
		"owner.name":        "Ann",
	}
	for path, want := range wants {
		got, ok := b.Get(path)
		if !ok || string(got) != want {
			t.Errorf("%s = %q (present %v), want %q", path, got, ok, want)
		}
	}
	if b.Has("parent") || b.HasPrefix("partners") {
		t.Error("nil references must not be written")
	}

	var out Company
	if err := c.ReadInto(context.Background(), &out, bucket.FromMap(b.Map())); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if !out.Founded.Equal(in.Founded) {
		t.Errorf("founded = %v, want %v", out.Founded, in.Founded)
	}
	out.Founded, in.Founded = time.Time{}, time.Time{}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestRead_ReturnsPointerForPointerType(t *testing.T) {
	c := newConverter()
	b, err := c.Write(Address{City: "Oslo"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := c.Read(context.Background(), reflect.TypeFor[*Address](), b)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	a, ok := v.Interface().(*Address)
	if !ok || a.City != "Oslo" {
		t.Errorf("got %#v", v.Interface())
	}
}

func TestWrite_Errors(t *testing.T) {
	type withChan struct {
		ID string `om:"id,id"`
		C  chan int
	}
	type withFunc struct {
		ID string `om:"id,id"`
		F  func()
	}
	type anyString struct {
		ID string `om:"id,id"`
		V  any
	}

	cyclic := &node{ID: "a"}
	cyclic.Next = cyclic

	tests := []struct {
		name string
		in   any
		path string
		want error
	}{
		{"nil", (*Company)(nil), "", ErrTypeMismatch},
		{"not a struct", 42, "", ErrTypeMismatch},
		{"chan", withChan{ID: "1", C: make(chan int)}, "C", ErrTypeMismatch},
		{"func", withFunc{ID: "1", F: func() {}}, "F", ErrTypeMismatch},
		{"unregistered interface value", anyString{ID: "1", V: make(chan int)}, "V", ErrTypeMismatch},
		{"cycle", cyclic, "", ErrMaxDepth},
		{"reference without id", Company{ID: "1", Parent: &Company{}}, "parent", ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newConverter().Write(tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("err %T is not *Error", err)
			}
			if tt.path != "" && ce.Path != tt.path {
				t.Errorf("path = %q, want %q", ce.Path, tt.path)
			}
		})
	}
}

type Level int

func TestWriteRead_InterfaceScalars(t *testing.T) {
	type record struct {
		ID    string         `om:"id,id"`
		Attrs map[string]any `om:"attrs"`
		Any   any            `om:"any"`
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := record{
		ID: "r1",
		Attrs: map[string]any{
			"n": 3, "s": "x", "b": true, "f": 1.5, "u": uint16(9), "at": at, "lvl": Level(2),
		},
		Any: int64(-7),
	}

	c := newConverter()
	b, err := c.Write(in)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	for path, want := range map[string]string{
		"attrs.[n]":          "3",
		"attrs.[n]._class":   "int",
		"attrs.[at]._class":  "time.Time",
		"attrs.[lvl]._class": "convert.Level",
		"any._class":         "int64",
	} {
		if got, _ := b.Get(path); string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	var out record
	if err := c.ReadInto(context.Background(), &out, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestWithMaxDepth(t *testing.T) {
	n := &node{ID: "a", Next: &node{ID: "b", Next: &node{ID: "c"}}}
	if _, err := newConverter(WithMaxDepth(1)).Write(n); !errors.Is(err, ErrMaxDepth) {
		t.Errorf("err = %v, want ErrMaxDepth", err)
	}
	if _, err := newConverter(WithMaxDepth(4)).Write(n); err != nil {
		t.Errorf("Write: %v", err)
	}
}

func TestRead_MalformedMapKey(t *testing.T) {
	b := bucket.FromMap(map[string]string{"id": "1", "labels.[abc": "x"})
	var out Company
	err := newConverter().ReadInto(context.Background(), &out, b)
	if !errors.Is(err, ErrMalformedPath) {
		t.Fatalf("err = %v, want ErrMalformedPath", err)
	}
}

func TestRead_UnknownTypeHint(t *testing.T) {
	b := bucket.FromMap(map[string]string{"id": "1", "owner._class": "Ghost"})
	var out Company
	err := newConverter().ReadInto(context.Background(), &out, b)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestRaw(t *testing.T) {
	codecs := codec.NewRegistry()
	codecs.RegisterRaw(reflect.TypeFor[blob]())
	c := New(mapping.NewRegistry(codecs))

	in := blob{A: 7, B: []string{"x", "y"}}
	b, err := c.Write(in)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if keys := b.Keys(); len(keys) != 1 || keys[0] != bucket.RawKey {
		t.Fatalf("keys = %v, want only %s", keys, bucket.RawKey)
	}

	var out blob
	if err := c.ReadInto(context.Background(), &out, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

// memResolver serves records written by the converter from a map.
type memResolver struct {
	c     *Converter
	data  map[string]map[string][]byte
	calls int
}

func (r *memResolver) put(t *testing.T, v *Company) {
	t.Helper()
	b, err := r.c.Write(v)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.data[FormatReference("Company", v.ID)] = b.Bytes()
}

func (r *memResolver) Resolve(_ context.Context, id, keyspace string) (map[string][]byte, error) {
	r.calls++
	return r.data[FormatReference(keyspace, id)], nil
}

func TestReferences(t *testing.T) {
	r := &memResolver{data: make(map[string]map[string][]byte)}
	c := newConverter(WithResolver(r))
	r.c = c

	parent := &Company{ID: "holding", Name: "Holding"}
	partner := &Company{ID: "p1", Name: "Partner"}
	r.put(t, parent)
	r.put(t, partner)

	in := &Company{
		ID:       "acme",
		Parent:   parent,
		Partners: []*Company{partner, {ID: "gone"}},
	}
	b, err := c.Write(in)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	for path, want := range map[string]string{
		"parent":       "Company:holding",
		"partners.[0]": "Company:p1",
		"partners.[1]": "Company:gone",
	} {
		if got, _ := b.Get(path); string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	before := testutil.ToFloat64(metrics.UnresolvedReferencesTotal.WithLabelValues("Company"))
	var out Company
	if err := c.ReadInto(context.Background(), &out, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out.Parent == nil || out.Parent.Name != "Holding" {
		t.Errorf("parent = %+v", out.Parent)
	}
	if len(out.Partners) != 1 || out.Partners[0].Name != "Partner" {
		t.Errorf("partners = %+v, want only the resolvable one", out.Partners)
	}
	after := testutil.ToFloat64(metrics.UnresolvedReferencesTotal.WithLabelValues("Company"))
	if after-before != 1 {
		t.Errorf("unresolved counter moved by %v, want 1", after-before)
	}
}

func TestReferences_Set(t *testing.T) {
	type group struct {
		ID      string                `om:"id,id"`
		Members map[*Company]struct{} `om:"members,ref"`
	}
	r := &memResolver{data: make(map[string]map[string][]byte)}
	c := newConverter(WithResolver(r))
	r.c = c

	a, z := &Company{ID: "a", Name: "A"}, &Company{ID: "z", Name: "Z"}
	r.put(t, a)
	r.put(t, z)

	b, err := c.Write(group{ID: "g1", Members: map[*Company]struct{}{z: {}, a: {}}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	for path, want := range map[string]string{
		"members.[0]": "Company:a",
		"members.[1]": "Company:z",
	} {
		if got, _ := b.Get(path); string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	var out group
	if err := c.ReadInto(context.Background(), &out, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	names := make(map[string]bool)
	for m := range out.Members {
		names[m.Name] = true
	}
	if len(out.Members) != 2 || !names["A"] || !names["Z"] {
		t.Errorf("members = %v", names)
	}
}

func TestReferences_PhantomAndNoResolver(t *testing.T) {
	r := &memResolver{data: make(map[string]map[string][]byte)}
	c := newConverter(WithResolver(r))
	b := bucket.FromMap(map[string]string{"id": "1", "parent": "Company:gone" + PhantomSuffix})

	var out Company
	if err := c.ReadInto(context.Background(), &out, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out.Parent != nil || r.calls != 0 {
		t.Errorf("phantom reference resolved: parent=%v calls=%d", out.Parent, r.calls)
	}

	b = bucket.FromMap(map[string]string{"id": "1", "parent": "Company:x"})
	out = Company{}
	if err := newConverter().ReadInto(context.Background(), &out, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out.Parent != nil {
		t.Errorf("parent = %v without a resolver", out.Parent)
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		stored, hint    string
		ks, id          string
		phantom, failed bool
	}{
		{stored: "Company:1", hint: "Company", ks: "Company", id: "1"},
		{stored: "app:Company:1", hint: "app:Company", ks: "app:Company", id: "1"},
		{stored: "Company:1:phantom", hint: "Company", ks: "Company", id: "1", phantom: true},
		{stored: "Other:9", hint: "Company", ks: "Other", id: "9"},
		{stored: "nocolon", failed: true},
		{stored: ":1", failed: true},
	}
	for _, tt := range tests {
		ks, id, phantom, err := ParseReference(tt.stored, tt.hint)
		if tt.failed {
			if err == nil {
				t.Errorf("%q: expected error", tt.stored)
			}
			continue
		}
		if err != nil || ks != tt.ks || id != tt.id || phantom != tt.phantom {
			t.Errorf("%q: got (%q, %q, %v, %v)", tt.stored, ks, id, phantom, err)
		}
	}
}

// apply executes a plan against stored fields the way a store does.
func apply(stored map[string]string, plan *UpdatePlan) map[string]string {
	existing := make([]string, 0, len(stored))
	for k := range stored {
		existing = append(existing, k)
	}
	for _, f := range plan.Deletes(existing) {
		delete(stored, f)
	}
	for k, v := range plan.Set.Map() {
		stored[k] = v
	}
	return stored
}

func TestPartialUpdate_RemoveElement(t *testing.T) {
	c := newConverter()
	typ := reflect.TypeFor[Company]()
	tests := []struct {
		name   string
		change Change
	}{
		{"delete element", Change{Path: "aliases.[0]", Delete: true}},
		{"replace collection", Change{Path: "aliases", Value: []string{"y", "z"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := c.Write(&Company{ID: "1", Aliases: []string{"x", "y", "z"}})
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			plan, err := c.PartialUpdate(typ, []Change{tt.change})
			if err != nil {
				t.Fatalf("PartialUpdate: %v", err)
			}
			stored := apply(b.Map(), plan)

			var out Company
			if err := c.ReadInto(context.Background(), &out, bucket.FromMap(stored)); err != nil {
				t.Fatalf("ReadInto: %v", err)
			}
			if !reflect.DeepEqual(out.Aliases, []string{"y", "z"}) {
				t.Errorf("aliases = %v, want [y z]", out.Aliases)
			}
		})
	}
}

func TestPartialUpdate(t *testing.T) {
	c := newConverter()
	plan, err := c.PartialUpdate(reflect.TypeFor[*Company](), []Change{
		{Path: "name", Value: "Acme 2"},
		{Path: "hq.city", Value: "Paris"},
		{Path: "offices.[1]", Value: Address{City: "Rome"}},
		{Path: "labels.[k]", Value: "v"},
		{Path: "tags", Value: []string{"y", "z"}},
		{Path: "owner", Value: Person{Name: "Bob"}},
		{Path: "partners.[0]", Value: &Company{ID: "p9"}},
		{Path: "hq", Value: nil},
	})
	if err != nil {
		t.Fatalf("PartialUpdate: %v", err)
	}

	for path, want := range map[string]string{
		"name":             "Acme 2",
		"hq.city":          "Paris",
		"offices.[1].city": "Rome",
		"labels.[k]":       "v",
		"tags":             "y|z",
		"owner._class":     "Person",
		"owner.name":       "Bob",
		"partners.[0]":     "Company:p9",
	} {
		if got, ok := plan.Set.Get(path); !ok || string(got) != want {
			t.Errorf("set %s = %q (present %v), want %q", path, got, ok, want)
		}
	}
	wantClear := []string{"offices.[1]", "owner", "hq"}
	if !reflect.DeepEqual(plan.Clear, wantClear) {
		t.Errorf("clear = %v, want %v", plan.Clear, wantClear)
	}
	if !plan.Touches("hq") || !plan.Touches("name") || plan.Touches("scores") {
		t.Error("Touches disagrees with the plan")
	}
}

func TestPartialUpdate_EmptyValueClears(t *testing.T) {
	c := newConverter()
	b, err := c.Write(&Company{ID: "c1", Tags: []string{"x", "y"}, HQ: &Address{City: "Oslo"}, Scores: []int{1}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	plan, err := c.PartialUpdate(reflect.TypeFor[Company](), []Change{
		{Path: "tags", Value: []string{}},
		{Path: "hq", Value: (*Address)(nil)},
		{Path: "scores", Value: []int(nil)},
	})
	if err != nil {
		t.Fatalf("PartialUpdate: %v", err)
	}
	wantClear := []string{"tags", "hq", "scores"}
	if !reflect.DeepEqual(plan.Clear, wantClear) {
		t.Errorf("clear = %v, want %v", plan.Clear, wantClear)
	}

	for _, f := range plan.Deletes(b.Keys()) {
		b.Remove(f)
	}
	for _, k := range plan.Set.Keys() {
		v, _ := plan.Set.Get(k)
		b.Put(k, v)
	}
	var got Company
	if err := c.ReadInto(context.Background(), &got, b); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if len(got.Tags) != 0 || got.HQ != nil || len(got.Scores) != 0 {
		t.Errorf("after update tags=%q hq=%+v scores=%v", got.Tags, got.HQ, got.Scores)
	}
}

func TestPartialUpdate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		change Change
		want   error
	}{
		{"unknown property", Change{Path: "nope", Value: 1}, ErrMalformedPath},
		{"empty path", Change{Path: "", Value: 1}, ErrMalformedPath},
		{"tag element", Change{Path: "tags.[0]", Value: "x"}, ErrMalformedPath},
		{"vector element", Change{Path: "embedding.[0]", Value: float32(1)}, ErrMalformedPath},
		{"set element", Change{Path: "codes.[0]", Value: "x"}, ErrMalformedPath},
		{"bad index", Change{Path: "aliases.[x]", Value: "x"}, ErrMalformedPath},
		{"through reference", Change{Path: "parent.name", Value: "x"}, ErrMalformedPath},
		{"scalar has no property", Change{Path: "name.first", Value: "x"}, ErrMalformedPath},
		{"wrong type", Change{Path: "employees", Value: "many"}, ErrTypeMismatch},
		{"wrong element type", Change{Path: "scores.[0]", Value: "x"}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newConverter().PartialUpdate(reflect.TypeFor[Company](), []Change{tt.change})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdatePlan_Deletes(t *testing.T) {
	plan := &UpdatePlan{
		Set:   bucket.New(),
		Clear: []string{"hq", "offices.[1]", "tags", "missing", "hq"},
	}
	existing := []string{
		"name", "tags", "hq.city", "hq.street", "hqx",
		"offices.[0].city", "offices.[1].city", "offices.[10].city",
	}
	got := plan.Deletes(existing)
	want := []string{"hq.city", "hq.street", "offices.[1].city", "tags"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Deletes = %v, want %v", got, want)
	}

	if (&UpdatePlan{Set: bucket.New()}).Deletes(existing) != nil {
		t.Error("empty plan must delete nothing")
	}
}

func TestIDOf(t *testing.T) {
	c := newConverter()
	id, err := c.IDOf(reflect.ValueOf(&Company{ID: "acme"}))
	if err != nil || id != "acme" {
		t.Errorf("IDOf = %q, %v", id, err)
	}
	if _, err := c.IDOf(reflect.ValueOf(Address{})); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("IDOf without id property: err = %v", err)
	}
}
