package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kailas-cloud/omhash/internal/convert"
	"github.com/kailas-cloud/omhash/internal/mapping"
)

// vectorize embeds the source text of every vectorize= property of rec.
func (r *Repository) vectorize(ctx context.Context, rec reflect.Value) error {
	for _, p := range r.entity.Properties {
		if p.Options.Vectorize == "" {
			continue
		}
		src, ok := r.entity.Property(p.Options.Vectorize)
		if !ok {
			return fmt.Errorf("vectorize %s: unknown source property %q", p.Name, p.Options.Vectorize)
		}
		text := textOf(rec.FieldByIndex(src.Index))
		if text == "" {
			continue
		}
		vec, err := r.embed(ctx, p, text)
		if err != nil {
			return err
		}
		if err := setVector(rec.FieldByIndex(p.Index), vec); err != nil {
			return fmt.Errorf("vectorize %s: %w", p.Name, err)
		}
	}
	return nil
}

// vectorizeChanges appends a vector change for every changed source text
// unless the caller already sets that vector.
func (r *Repository) vectorizeChanges(ctx context.Context, changes []convert.Change) ([]convert.Change, error) {
	explicit := make(map[string]bool, len(changes))
	for _, c := range changes {
		explicit[c.Path] = true
	}
	out := changes
	for _, p := range r.entity.Properties {
		if p.Options.Vectorize == "" || explicit[p.Name] {
			continue
		}
		for _, c := range changes {
			if c.Path != p.Options.Vectorize || c.Delete || c.Value == nil {
				continue
			}
			text := textOf(reflect.ValueOf(c.Value))
			if text == "" {
				continue
			}
			vec, err := r.embed(ctx, p, text)
			if err != nil {
				return nil, err
			}
			v := reflect.New(p.Type).Elem()
			if err := setVector(v, vec); err != nil {
				return nil, fmt.Errorf("vectorize %s: %w", p.Name, err)
			}
			out = append(out, convert.Change{Path: p.Name, Value: v.Interface()})
		}
	}
	return out, nil
}

func (r *Repository) embed(ctx context.Context, p *mapping.Property, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("vectorize %s: %w", p.Name, ErrNoEmbedder)
	}
	res, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize %s: %w", p.Name, err)
	}
	if dim := p.Options.Vector.Dim; dim > 0 && len(res.Embedding) != dim {
		return nil, fmt.Errorf("vectorize %s: embedding has %d dimensions, index expects %d",
			p.Name, len(res.Embedding), dim)
	}
	return res.Embedding, nil
}

func textOf(v reflect.Value) string {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.String {
		return v.String()
	}
	return ""
}

// setVector stores vec into a float slice or array, allocating pointers.
func setVector(fv reflect.Value, vec []float32) error {
	for fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.Slice:
		fv.Set(reflect.MakeSlice(fv.Type(), len(vec), len(vec)))
	case reflect.Array:
		if fv.Len() != len(vec) {
			return fmt.Errorf("array of %d cannot hold %d dimensions", fv.Len(), len(vec))
		}
	default:
		return fmt.Errorf("cannot store a vector in %s", fv.Type())
	}
	for i, f := range vec {
		fv.Index(i).SetFloat(float64(f))
	}
	return nil
}
