package bucket

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func TestCompare_NaturalOrder(t *testing.T) {
	var want []string
	for i := 0; i <= 11; i++ {
		want = append(want, fmt.Sprintf("elt.[%d]", i))
	}

	got := append([]string(nil), want...)
	rand.New(rand.NewSource(1)).Shuffle(len(got), func(i, j int) { got[i], got[j] = got[j], got[i] })
	Sort(got)

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sort() = %v, want %v", got, want)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"elt.[9]", "elt.[10]", -1},
		{"elt.[10]", "elt.[9]", 1},
		{"elt.[2]", "elt.[2]", 0},
		{"a", "b", -1},
		{"a2b", "a10a", -1},
		{"a.[1].x", "a.[1].y", -1},
		{"a", "a.[0]", -1},
		{"x7", "x07", -1},
		{"tags.[1]", "tags.[1].name", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); sign(got) != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestBucket_PutGet(t *testing.T) {
	b := New()
	b.Put("name", []byte("acme"))
	b.Put("name", []byte("globex"))

	v, ok := b.Get("name")
	if !ok || string(v) != "globex" {
		t.Errorf("Get(name) = %q, %v; want globex, true", v, ok)
	}
	if _, ok := b.Get("missing"); ok {
		t.Error("Get(missing) should be absent")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	b.Remove("name")
	if !b.IsEmpty() {
		t.Error("bucket should be empty after Remove")
	}
}

func TestBucket_ExtractStripsDotPrefix(t *testing.T) {
	b := FromMap(map[string]string{
		"address.city":   "Paris",
		"address.zip":    "75001",
		"addressBook":    "x",
		"name":           "acme",
		"tags.[0]":       "a",
		"tags.[1]":       "b",
		"address._class": "Address",
	})

	sub := b.Extract("address.")
	want := map[string]string{"city": "Paris", "zip": "75001", "_class": "Address"}
	if got := sub.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("Extract(address.) = %v, want %v", got, want)
	}

	tags := b.Extract("tags.[")
	wantTags := map[string]string{"tags.[0]": "a", "tags.[1]": "b"}
	if got := tags.Map(); !reflect.DeepEqual(got, wantTags) {
		t.Errorf("Extract(tags.[) = %v, want %v", got, wantTags)
	}
}

func TestBucket_ExtractAllKeysFor(t *testing.T) {
	b := FromMap(map[string]string{
		"employees.[10].name":  "j",
		"employees.[2].name":   "k",
		"employees.[2].age":    "30",
		"employees.[0]._class": "Person",
		"employees.[0].name":   "l",
		"employeesCount":       "3",
		"m.[a\\]b].x":          "1",
	})

	got := b.ExtractAllKeysFor("employees")
	want := []string{"employees.[0]", "employees.[2]", "employees.[10]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractAllKeysFor(employees) = %v, want %v", got, want)
	}

	got = b.ExtractAllKeysFor("m")
	want = []string{`m.[a\]b]`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractAllKeysFor(m) = %v, want %v", got, want)
	}

	if got := b.ExtractAllKeysFor("none"); len(got) != 0 {
		t.Errorf("ExtractAllKeysFor(none) = %v, want empty", got)
	}
}

func TestMapKey_RoundTrip(t *testing.T) {
	keys := []string{"plain", "with.dot", "br[ack]et", `back\slash`, "", "[]"}
	for _, k := range keys {
		child := MapEntry("m", k)
		got, err := MapKey("m", child)
		if err != nil {
			t.Fatalf("MapKey(%q): %v", child, err)
		}
		if got != k {
			t.Errorf("MapKey(MapEntry(%q)) = %q", k, got)
		}
	}
}

func TestMapKey_Malformed(t *testing.T) {
	tests := []string{"m.[open", "other.[k]", "m.k"}
	for _, child := range tests {
		if _, err := MapKey("m", child); !errors.Is(err, ErrMalformedPath) {
			t.Errorf("MapKey(m, %q) error = %v, want ErrMalformedPath", child, err)
		}
	}
}

func TestElementIndex(t *testing.T) {
	i, err := ElementIndex("tags", "tags.[12]")
	if err != nil || i != 12 {
		t.Errorf("ElementIndex = %d, %v; want 12, nil", i, err)
	}
	if _, err := ElementIndex("tags", "tags.[x]"); !errors.Is(err, ErrMalformedPath) {
		t.Errorf("ElementIndex(tags.[x]) error = %v, want ErrMalformedPath", err)
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		path    string
		want    []string
		wantErr bool
	}{
		{"name", []string{"name"}, false},
		{"address.city", []string{"address", "city"}, false},
		{"tags.[0]", []string{"tags", "[0]"}, false},
		{"m.[a.b].city", []string{"m", "[a.b]", "city"}, false},
		{"m.[a", nil, true},
		{"a.", nil, true},
		{"m.[k]x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Segments(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Segments(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestTypeKeys(t *testing.T) {
	if TypeKeyFor("") != "_class" {
		t.Errorf("TypeKeyFor(\"\") = %q", TypeKeyFor(""))
	}
	if TypeKeyFor("owner") != "owner._class" {
		t.Errorf("TypeKeyFor(owner) = %q", TypeKeyFor("owner"))
	}
	if !IsTypeKey("a.[0]._class") || IsTypeKey("my_class") {
		t.Error("IsTypeKey mismatch")
	}
}

func TestTags_RoundTripWithEscaping(t *testing.T) {
	values := []string{"plain", "a|b", `c\d`, "", "end|"}
	joined := JoinTags(values, "|")
	got := SplitTags(joined, "|")
	if !reflect.DeepEqual(got, values) {
		t.Errorf("SplitTags(JoinTags(%q)) = %q (joined %q)", values, got, joined)
	}
}

func TestTags_CustomSeparator(t *testing.T) {
	values := []string{"x,y", "z"}
	joined := JoinTags(values, ",")
	if joined != `x\,y,z` {
		t.Errorf("JoinTags = %q", joined)
	}
	if got := SplitTags(joined, ","); !reflect.DeepEqual(got, values) {
		t.Errorf("SplitTags = %q, want %q", got, values)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"name", "name", true},
		{"name", "other", false},
		{"tags.[*]", "tags.[0]", true},
		{"tags.[*]", "tags.[12]", true},
		{"tags.[*]", "tags", false},
		{"metrics.[*].score", "metrics.[3].score", true},
		{"metrics.[*].score", "metrics.[3].label", false},
		{"metrics.[*].score", "metrics.[a.b].score", true},
		{"metrics.[*].score", "metrics.[3].score.x", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.path); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
