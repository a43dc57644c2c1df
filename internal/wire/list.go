package wire

import (
	"encoding/binary"
	"fmt"
)

// LengthPolicy selects how a List finds its item count.
type LengthPolicy uint8

const (
	// Unbounded lists consume every remaining byte. Only valid as the last
	// field of a schema.
	Unbounded LengthPolicy = iota
	// Prefixed lists carry an N-byte little-endian item count.
	Prefixed
	// Fixed lists hold exactly N items with no count on the wire.
	Fixed
)

// List is a homogeneous sequence of Item values.
type List struct {
	Item   Type
	Policy LengthPolicy
	N      int // prefix width for Prefixed, item count for Fixed
}

// ListOf returns an unbounded list of item.
func ListOf(item Type) List {
	return List{Item: item, Policy: Unbounded}
}

// LVList returns a list whose item count precedes it in prefixWidth bytes.
func LVList(item Type, prefixWidth int) List {
	return List{Item: item, Policy: Prefixed, N: prefixWidth}
}

// FixedList returns a list of exactly n items.
func FixedList(n int, item Type) List {
	return List{Item: item, Policy: Fixed, N: n}
}

func (List) wireType() {}

func (l List) String() string {
	switch l.Policy {
	case Prefixed:
		return fmt.Sprintf("lvlist%d<%s>", l.N*8, l.Item)
	case Fixed:
		return fmt.Sprintf("list[%d]<%s>", l.N, l.Item)
	}
	return fmt.Sprintf("list<%s>", l.Item)
}

func (l List) Encode(v Value) ([]byte, error) {
	items, ok := toItems(v)
	if !ok {
		return nil, fmt.Errorf("wire: cannot convert %T to %s", v, l)
	}

	var out []byte
	switch l.Policy {
	case Prefixed:
		prefix := Uint{Width: l.N}
		head, err := prefix.Encode(len(items))
		if err != nil {
			return nil, fmt.Errorf("wire: %d items do not fit a %d-byte count", len(items), l.N)
		}
		out = head
	case Fixed:
		if len(items) != l.N {
			return nil, fmt.Errorf("wire: %s needs %d items, got %d", l, l.N, len(items))
		}
	}

	for i, item := range items {
		b, err := l.Item.Encode(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, b...)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func (l List) Decode(data []byte) (Value, []byte, error) {
	rest := data

	var count uint64
	switch l.Policy {
	case Unbounded:
		return l.decodeRemainder(data)
	case Prefixed:
		if len(rest) < l.N {
			return nil, data, fmt.Errorf("%w: %s count needs %d bytes, have %d", ErrTruncated, l, l.N, len(rest))
		}
		count = readUint(rest[:l.N])
		rest = rest[l.N:]
	case Fixed:
		count = uint64(l.N)
	}

	// Each item takes at least one byte, so a count above the remaining
	// length cannot be satisfied.
	if count > uint64(len(rest)) {
		return nil, data, fmt.Errorf("%w: %s announces %d items, %d bytes left", ErrTruncated, l, count, len(rest))
	}

	items := make([]Value, 0, int(count))
	for i := uint64(0); i < count; i++ {
		item, r, err := l.Item.Decode(rest)
		if err != nil {
			return nil, data, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
		rest = r
	}
	return items, rest, nil
}

// decodeRemainder decodes items until the buffer is exhausted.
func (l List) decodeRemainder(data []byte) (Value, []byte, error) {
	rest := data
	items := make([]Value, 0, len(rest))
	for i := 0; len(rest) > 0; i++ {
		item, r, err := l.Item.Decode(rest)
		if err != nil {
			return nil, data, fmt.Errorf("item %d: %w", i, err)
		}
		if len(r) >= len(rest) {
			return nil, data, fmt.Errorf("wire: %s item %d consumed no bytes", l, i)
		}
		items = append(items, item)
		rest = r
	}
	return items, rest, nil
}

func readUint(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// toItems accepts []Value and the common typed integer slices.
func toItems(v Value) ([]Value, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []Value:
		return s, true
	case []uint8:
		return convertItems(s), true
	case []uint16:
		return convertItems(s), true
	case []uint32:
		return convertItems(s), true
	case []uint64:
		return convertItems(s), true
	case []int:
		return convertItems(s), true
	case EUI64:
		return convertItems(s[:]), true
	}
	return nil, false
}

func convertItems[T any](s []T) []Value {
	out := make([]Value, len(s))
	for i, item := range s {
		out[i] = item
	}
	return out
}
