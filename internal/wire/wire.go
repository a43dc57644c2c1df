// Package wire is a small declarative type system for little-endian binary
// frame layouts. A frame payload is described by a Schema, an ordered list of
// named fields, each carrying one of a closed set of Type descriptors.
package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTruncated is returned when fewer bytes remain than a type requires.
var ErrTruncated = errors.New("wire: truncated data")

// Value is a decoded field value. Integers decode to the Go unsigned or signed
// type of the field width, lists to []Value, records to Record, addresses to
// EUI64 and absent optional fields to Absent.
type Value = interface{}

// Type describes how one field is laid out on the wire.
//
// Decode returns the decoded value and the bytes left after it. On failure the
// returned remainder is the input unchanged.
type Type interface {
	Encode(v Value) ([]byte, error)
	Decode(data []byte) (Value, []byte, error)
	String() string

	wireType()
}

// Absent is the value of an optional field that was not present on the wire.
type Absent struct{}

// IsAbsent reports whether v stands for a missing optional field.
func IsAbsent(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Absent)
	return ok
}

// Field is one named entry of a Schema.
type Field struct {
	Name string
	Type Type
}

// Schema is the ordered field layout of a frame payload.
type Schema []Field

// Names returns the field names in wire order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Encode serializes one value per field, in schema order.
func (s Schema) Encode(values []Value) ([]byte, error) {
	if len(values) != len(s) {
		return nil, fmt.Errorf("wire: schema has %d fields, got %d values", len(s), len(values))
	}
	var out []byte
	for i, f := range s {
		b, err := f.Type.Encode(values[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// Decode consumes the fields in order and returns their values together with
// whatever bytes follow the last field.
func (s Schema) Decode(data []byte) ([]Value, []byte, error) {
	values := make([]Value, 0, len(s))
	rest := data
	for _, f := range s {
		v, r, err := f.Type.Decode(rest)
		if err != nil {
			return nil, data, fmt.Errorf("field %s: %w", f.Name, err)
		}
		values = append(values, v)
		rest = r
	}
	return values, rest, nil
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
