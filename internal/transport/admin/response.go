package admin

import (
	"github.com/kailas-cloud/omhash/internal/schema"
)

// SchemaView is the JSON form of a schema.
type SchemaView struct {
	Type         string      `json:"type"`
	Keyspace     string      `json:"keyspace"`
	Index        string      `json:"index"`
	Prefix       string      `json:"prefix"`
	TTLSeconds   int64       `json:"ttl_seconds,omitempty"`
	Language     string      `json:"language,omitempty"`
	Filter       string      `json:"filter,omitempty"`
	CreationMode string      `json:"creation_mode"`
	Fields       []FieldView `json:"fields"`
}

// FieldView is the JSON form of an indexed field.
type FieldView struct {
	Property  string `json:"property"`
	Path      string `json:"path"`
	Alias     string `json:"alias"`
	Type      string `json:"type"`
	Sortable  bool   `json:"sortable,omitempty"`
	Separator string `json:"separator,omitempty"`
	Dim       int    `json:"dim,omitempty"`
	Distance  string `json:"distance,omitempty"`
}

type indexResponse struct {
	Index   string `json:"index"`
	Outcome string `json:"outcome"`
}

// NewSchemaView renders s for output.
func NewSchemaView(s *schema.Schema) SchemaView {
	fields := make([]FieldView, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		fields[i] = FieldView{
			Property:  f.Property,
			Path:      f.Name,
			Alias:     f.Alias,
			Type:      f.Type.String(),
			Sortable:  f.Sortable,
			Separator: f.TagSeparator,
			Dim:       f.VectorDim,
			Distance:  string(f.VectorDistance),
		}
	}
	return SchemaView{
		Type:         s.Type.String(),
		Keyspace:     s.Keyspace(),
		Index:        s.IndexName(),
		Prefix:       s.Options.Prefix(),
		TTLSeconds:   int64(s.Options.TTL.Seconds()),
		Language:     s.Options.Language,
		Filter:       s.Options.Filter,
		CreationMode: s.Options.CreationMode.String(),
		Fields:       fields,
	}
}
