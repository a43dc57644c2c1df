package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Uint is an unsigned little-endian integer of Width bytes (1, 2, 4 or 8).
type Uint struct {
	Width int
}

// Int is a two's complement little-endian integer of Width bytes (1, 2, 4 or 8).
type Int struct {
	Width int
}

var (
	Uint8  = Uint{Width: 1}
	Uint16 = Uint{Width: 2}
	Uint32 = Uint{Width: 4}
	Uint64 = Uint{Width: 8}

	Int8  = Int{Width: 1}
	Int16 = Int{Width: 2}
	Int32 = Int{Width: 4}
	Int64 = Int{Width: 8}
)

func (Uint) wireType() {}
func (Int) wireType()  {}

func (u Uint) String() string { return fmt.Sprintf("uint%d", u.Width*8) }
func (i Int) String() string  { return fmt.Sprintf("int%d", i.Width*8) }

func (u Uint) max() uint64 {
	if u.Width >= 8 {
		return math.MaxUint64
	}
	return 1<<(uint(u.Width)*8) - 1
}

// Encode always emits exactly Width bytes.
func (u Uint) Encode(v Value) ([]byte, error) {
	n, ok := toUint64(v)
	if !ok {
		return nil, fmt.Errorf("wire: cannot convert %T to %s", v, u)
	}
	if n > u.max() {
		return nil, fmt.Errorf("wire: value %d overflows %s", n, u)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, n)
	return buf[:u.Width], nil
}

func (u Uint) Decode(data []byte) (Value, []byte, error) {
	if len(data) < u.Width {
		return nil, data, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrTruncated, u, u.Width, len(data))
	}
	rest := data[u.Width:]
	switch u.Width {
	case 1:
		return data[0], rest, nil
	case 2:
		return binary.LittleEndian.Uint16(data), rest, nil
	case 4:
		return binary.LittleEndian.Uint32(data), rest, nil
	case 8:
		return binary.LittleEndian.Uint64(data), rest, nil
	}
	return nil, data, fmt.Errorf("wire: unsupported width %d", u.Width)
}

func (i Int) Encode(v Value) ([]byte, error) {
	n, ok := toInt64(v)
	if !ok {
		return nil, fmt.Errorf("wire: cannot convert %T to %s", v, i)
	}
	bits := uint(i.Width) * 8
	if bits < 64 {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return nil, fmt.Errorf("wire: value %d overflows %s (range %d..%d)", n, i, lo, hi)
		}
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf[:i.Width], nil
}

func (i Int) Decode(data []byte) (Value, []byte, error) {
	if len(data) < i.Width {
		return nil, data, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrTruncated, i, i.Width, len(data))
	}
	rest := data[i.Width:]
	switch i.Width {
	case 1:
		return int8(data[0]), rest, nil
	case 2:
		return int16(binary.LittleEndian.Uint16(data)), rest, nil
	case 4:
		return int32(binary.LittleEndian.Uint32(data)), rest, nil
	case 8:
		return int64(binary.LittleEndian.Uint64(data)), rest, nil
	}
	return nil, data, fmt.Errorf("wire: unsupported width %d", i.Width)
}

func toUint64(v Value) (uint64, bool) {
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case uint:
		return uint64(val), true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case int64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt64(v Value) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}
