package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// EUI64 is an IEEE 64-bit device address held in wire (little-endian) order.
type EUI64 [8]byte

// EUI64FromUint64 returns the address whose numeric value is n.
func EUI64FromUint64(n uint64) EUI64 {
	var a EUI64
	binary.LittleEndian.PutUint64(a[:], n)
	return a
}

// Uint64 returns the numeric value of the address.
func (a EUI64) Uint64() uint64 {
	return binary.LittleEndian.Uint64(a[:])
}

// String formats the address most significant byte first, colon separated,
// e.g. "00:13:a2:00:41:b7:6e:0c".
func (a EUI64) String() string {
	var sb strings.Builder
	for i := len(a) - 1; i >= 0; i-- {
		if i != len(a)-1 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", a[i])
	}
	return sb.String()
}

// ParseEUI64 parses the String form. Colons are optional.
func ParseEUI64(s string) (EUI64, error) {
	var a EUI64
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return a, fmt.Errorf("parse eui64 %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("parse eui64 %q: need 8 bytes, got %d", s, len(b))
	}
	for i := range b {
		a[len(a)-1-i] = b[i]
	}
	return a, nil
}

// Address is the field type of an EUI64.
var Address = eui64Type{}

type eui64Type struct{}

func (eui64Type) wireType() {}

func (eui64Type) String() string { return "eui64" }

func (eui64Type) Encode(v Value) ([]byte, error) {
	switch a := v.(type) {
	case EUI64:
		return append([]byte(nil), a[:]...), nil
	case [8]byte:
		return append([]byte(nil), a[:]...), nil
	case []byte:
		if len(a) != 8 {
			return nil, fmt.Errorf("wire: eui64 needs 8 bytes, got %d", len(a))
		}
		return append([]byte(nil), a...), nil
	case string:
		p, err := ParseEUI64(a)
		if err != nil {
			return nil, err
		}
		return p[:], nil
	}
	return nil, fmt.Errorf("wire: cannot convert %T to eui64", v)
}

func (eui64Type) Decode(data []byte) (Value, []byte, error) {
	if len(data) < 8 {
		return nil, data, fmt.Errorf("%w: eui64 needs 8 bytes, have %d", ErrTruncated, len(data))
	}
	var a EUI64
	copy(a[:], data[:8])
	return a, data[8:], nil
}
