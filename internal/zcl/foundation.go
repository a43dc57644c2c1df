package zcl

import (
	"fmt"

	"zigbee-relay/internal/wire"
)

// Foundation ZCL command IDs (global, not cluster-specific).
const (
	FoundationReadAttributes         uint8 = 0x00
	FoundationReadAttributesResponse uint8 = 0x01
	FoundationReportAttributes       uint8 = 0x0A
	FoundationDefaultResponse        uint8 = 0x0B
)

// Status is a ZCL status code.
type Status uint8

// ZCL status codes
const (
	StatusSuccess         Status = 0x00
	StatusFailure         Status = 0x01
	StatusUnsupportedAttr Status = 0x86
	StatusInvalidValue    Status = 0x87
	StatusReadOnly        Status = 0x88
	StatusNotFound        Status = 0x8B
	StatusUnreportable    Status = 0x8C
	StatusInvalidDataType Status = 0x8D
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusUnsupportedAttr:
		return "UNSUPPORTED_ATTRIBUTE"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnreportable:
		return "UNREPORTABLE_ATTRIBUTE"
	case StatusInvalidDataType:
		return "INVALID_DATA_TYPE"
	}
	return fmt.Sprintf("0x%02X", uint8(s))
}

// globalCommands maps the implemented foundation commands a server accepts
// to their argument schemas.
var globalCommands = map[uint8]CommandDef{
	FoundationReadAttributes: {
		ID:   FoundationReadAttributes,
		Name: "read_attributes",
		Args: wire.Schema{{Name: "AttributeIDs", Type: wire.ListOf(wire.Uint16)}},
	},
	FoundationDefaultResponse: {
		ID:   FoundationDefaultResponse,
		Name: "default_response",
		Args: wire.Schema{
			{Name: "CommandID", Type: wire.Uint8},
			{Name: "Status", Type: wire.Uint8},
		},
	},
}

// GlobalCommand returns the definition of an implemented foundation command.
func GlobalCommand(id uint8) (CommandDef, bool) {
	c, ok := globalCommands[id]
	return c, ok
}
