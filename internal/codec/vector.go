package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// VectorCodec stores float slices and arrays as little-endian float32 blobs,
// the layout expected by VECTOR index fields.
type VectorCodec struct{}

// Encode implements Codec.
func (VectorCodec) Encode(v reflect.Value) ([]byte, error) {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, fmt.Errorf("%w: vector of %s", ErrNoCodec, v.Type())
	}
	switch v.Type().Elem().Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return nil, fmt.Errorf("%w: vector of %s", ErrNoCodec, v.Type())
	}
	buf := make([]byte, v.Len()*4)
	for i := range v.Len() {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v.Index(i).Float())))
	}
	return buf, nil
}

// Decode implements Codec.
func (VectorCodec) Decode(data []byte, v reflect.Value) error {
	vec, err := BytesToVector(data)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case reflect.Slice:
		v.Set(reflect.MakeSlice(v.Type(), len(vec), len(vec)))
	case reflect.Array:
		if v.Len() != len(vec) {
			return fmt.Errorf("vector has %d dimensions, want %d", len(vec), v.Len())
		}
	default:
		return fmt.Errorf("%w: vector of %s", ErrNoCodec, v.Type())
	}
	for i, f := range vec {
		v.Index(i).SetFloat(float64(f))
	}
	return nil
}

// VectorToBytes encodes a float32 vector as a little-endian blob.
func VectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToVector decodes a little-endian float32 blob.
func BytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
