package zcl

import "fmt"

// ZCL data type IDs used in attribute records.
const (
	TypeNoData  uint8 = 0x00
	TypeBool    uint8 = 0x10
	TypeBitmap8 uint8 = 0x18
	TypeUint8   uint8 = 0x20
	TypeUint16  uint8 = 0x21
	TypeEnum8   uint8 = 0x30
)

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeBool:
		return "bool"
	case TypeBitmap8:
		return "map8"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeEnum8:
		return "enum8"
	default:
		return fmt.Sprintf("0x%02X", typeID)
	}
}
