package codec

import (
	"bytes"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kailas-cloud/omhash/internal/geo"
)

type stringCodec struct{}

func (stringCodec) Encode(v reflect.Value) ([]byte, error) { return []byte(v.String()), nil }

func (stringCodec) Decode(data []byte, v reflect.Value) error {
	v.SetString(string(data))
	return nil
}

type bytesCodec struct{}

func (bytesCodec) Encode(v reflect.Value) ([]byte, error) {
	return bytes.Clone(v.Bytes()), nil
}

func (bytesCodec) Decode(data []byte, v reflect.Value) error {
	v.SetBytes(bytes.Clone(data))
	return nil
}

type boolCodec struct{}

func (boolCodec) Encode(v reflect.Value) ([]byte, error) {
	return []byte(strconv.FormatBool(v.Bool())), nil
}

func (boolCodec) Decode(data []byte, v reflect.Value) error {
	b, err := strconv.ParseBool(string(data))
	if err != nil {
		return fmt.Errorf("parse bool %q: %w", data, err)
	}
	v.SetBool(b)
	return nil
}

type intCodec struct{}

func (intCodec) Encode(v reflect.Value) ([]byte, error) {
	return strconv.AppendInt(nil, v.Int(), 10), nil
}

func (intCodec) Decode(data []byte, v reflect.Value) error {
	n, err := strconv.ParseInt(string(data), 10, v.Type().Bits())
	if err != nil {
		return fmt.Errorf("parse int %q: %w", data, err)
	}
	v.SetInt(n)
	return nil
}

type uintCodec struct{}

func (uintCodec) Encode(v reflect.Value) ([]byte, error) {
	return strconv.AppendUint(nil, v.Uint(), 10), nil
}

func (uintCodec) Decode(data []byte, v reflect.Value) error {
	n, err := strconv.ParseUint(string(data), 10, v.Type().Bits())
	if err != nil {
		return fmt.Errorf("parse uint %q: %w", data, err)
	}
	v.SetUint(n)
	return nil
}

type floatCodec struct{}

func (floatCodec) Encode(v reflect.Value) ([]byte, error) {
	return strconv.AppendFloat(nil, v.Float(), 'f', -1, v.Type().Bits()), nil
}

func (floatCodec) Decode(data []byte, v reflect.Value) error {
	f, err := strconv.ParseFloat(string(data), v.Type().Bits())
	if err != nil {
		return fmt.Errorf("parse float %q: %w", data, err)
	}
	v.SetFloat(f)
	return nil
}

// timeCodec stores epoch seconds with an optional fractional part so that
// numeric range queries work on the stored value. Decoded times are UTC.
type timeCodec struct{}

func (timeCodec) Encode(v reflect.Value) ([]byte, error) {
	t, _ := v.Interface().(time.Time)
	return []byte(FormatEpoch(t)), nil
}

func (timeCodec) Decode(data []byte, v reflect.Value) error {
	t, err := ParseEpoch(string(data))
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(t))
	return nil
}

// FormatEpoch renders t as decimal epoch seconds.
func FormatEpoch(t time.Time) string {
	sec, ns := t.Unix(), int64(t.Nanosecond())
	if ns == 0 {
		return strconv.FormatInt(sec, 10)
	}
	neg := sec < 0
	if neg {
		sec, ns = -(sec + 1), 1e9-ns
	}
	s := strconv.FormatInt(sec, 10) + "." + strings.TrimRight(fmt.Sprintf("%09d", ns), "0")
	if neg {
		s = "-" + s
	}
	return s
}

// ParseEpoch parses the output of FormatEpoch.
func ParseEpoch(s string) (time.Time, error) {
	neg := strings.HasPrefix(s, "-")
	intPart, frac, hasFrac := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	sec, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch %q: %w", s, err)
	}
	var ns int64
	if hasFrac {
		if frac == "" || len(frac) > 9 {
			return time.Time{}, fmt.Errorf("parse epoch %q: bad fraction", s)
		}
		ns, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse epoch %q: %w", s, err)
		}
	}
	if neg {
		sec, ns = -sec, -ns
	}
	return time.Unix(sec, ns).UTC(), nil
}

type pointCodec struct{}

func (pointCodec) Encode(v reflect.Value) ([]byte, error) {
	p, _ := v.Interface().(geo.Point)
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %v", geo.ErrInvalidPoint, p)
	}
	return []byte(p.String()), nil
}

func (pointCodec) Decode(data []byte, v reflect.Value) error {
	p, err := geo.ParsePoint(string(data))
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(p))
	return nil
}

// textCodec stores enums by name and identifier types through
// encoding.TextMarshaler.
type textCodec struct{}

func (textCodec) Encode(v reflect.Value) ([]byte, error) {
	m, ok := v.Interface().(encoding.TextMarshaler)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCodec, v.Type())
	}
	b, err := m.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", v.Type(), err)
	}
	return b, nil
}

func (textCodec) Decode(data []byte, v reflect.Value) error {
	u, ok := v.Addr().Interface().(encoding.TextUnmarshaler)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCodec, v.Type())
	}
	if err := u.UnmarshalText(data); err != nil {
		return fmt.Errorf("unmarshal %s: %w", v.Type(), err)
	}
	return nil
}

// rawCodec stores a whole record as msgpack.
type rawCodec struct{}

func (rawCodec) Encode(v reflect.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.EncodeValue(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode %s: %w", v.Type(), err)
	}
	return buf.Bytes(), nil
}

func (rawCodec) Decode(data []byte, v reflect.Value) error {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data))
	err := dec.Decode(v.Addr().Interface())
	msgpack.PutDecoder(dec)
	if err != nil {
		return fmt.Errorf("msgpack decode %s: %w", v.Type(), err)
	}
	return nil
}
