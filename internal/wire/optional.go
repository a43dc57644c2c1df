package wire

import (
	"errors"
	"fmt"
)

// Optional wraps a type whose field is present only in some frame variants.
// A truncated inner decode yields Absent and treats the rest of the frame as
// empty; any other error still propagates.
type Optional struct {
	Inner Type
}

// absentEncoder is implemented by types that have a wire form for "no value".
type absentEncoder interface {
	encodeAbsent() []byte
}

func (Optional) wireType() {}

func (o Optional) String() string { return "optional<" + o.Inner.String() + ">" }

func (o Optional) Encode(v Value) ([]byte, error) {
	if IsAbsent(v) {
		if ae, ok := o.Inner.(absentEncoder); ok {
			return ae.encodeAbsent(), nil
		}
		return []byte{}, nil
	}
	return o.Inner.Encode(v)
}

func (o Optional) Decode(data []byte) (Value, []byte, error) {
	v, rest, err := o.Inner.Decode(data)
	if errors.Is(err, ErrTruncated) {
		return Absent{}, nil, nil
	}
	if err != nil {
		return nil, data, err
	}
	return v, rest, nil
}

// SizePrefixed frames its inner value with a 1-byte byte-length. A zero length
// (or no bytes at all) means the value is absent.
type SizePrefixed struct {
	Inner Type
}

func (SizePrefixed) wireType() {}

func (s SizePrefixed) String() string { return "sized<" + s.Inner.String() + ">" }

func (SizePrefixed) encodeAbsent() []byte { return []byte{0} }

func (s SizePrefixed) Encode(v Value) ([]byte, error) {
	if IsAbsent(v) {
		return s.encodeAbsent(), nil
	}
	body, err := s.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(body) > 0xFF {
		return nil, fmt.Errorf("wire: %s body is %d bytes, max 255", s, len(body))
	}
	return append([]byte{byte(len(body))}, body...), nil
}

// Decode reads the inner value from the declared window. Bytes inside the
// window that the inner type does not consume are skipped.
func (s SizePrefixed) Decode(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Absent{}, data, nil
	}
	n := int(data[0])
	if n == 0 {
		return Absent{}, data[1:], nil
	}
	if len(data)-1 < n {
		return nil, data, fmt.Errorf("%w: %s declares %d bytes, have %d", ErrTruncated, s, n, len(data)-1)
	}
	v, _, err := s.Inner.Decode(data[1 : 1+n])
	if err != nil {
		return nil, data, err
	}
	return v, data[1+n:], nil
}
