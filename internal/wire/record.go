package wire

import "fmt"

// Record is the decoded value of a Struct: one value per field, in order.
type Record []Value

// Struct is a composite type laid out as its fields back to back.
type Struct struct {
	Name   string
	Fields Schema
}

func (Struct) wireType() {}

func (s Struct) String() string { return s.Name }

func (s Struct) Encode(v Value) ([]byte, error) {
	var values []Value
	switch r := v.(type) {
	case Record:
		values = r
	case []Value:
		values = r
	default:
		return nil, fmt.Errorf("wire: cannot convert %T to %s", v, s.Name)
	}
	return s.Fields.Encode(values)
}

func (s Struct) Decode(data []byte) (Value, []byte, error) {
	values, rest, err := s.Fields.Decode(data)
	if err != nil {
		return nil, data, err
	}
	return Record(values), rest, nil
}

// Get returns the value of the named field of r, decoded by s.
func (s Struct) Get(r Record, name string) (Value, bool) {
	for i, f := range s.Fields {
		if f.Name == name && i < len(r) {
			return r[i], true
		}
	}
	return nil, false
}
