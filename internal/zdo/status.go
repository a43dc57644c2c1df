package zdo

import "fmt"

// Status is the one-byte result code carried by discovery responses.
type Status uint8

const (
	StatusSuccess           Status = 0x00
	StatusInvRequestType    Status = 0x80
	StatusDeviceNotFound    Status = 0x81
	StatusInvalidEP         Status = 0x82 // endpoint 0x00 or 0xF1..0xFF
	StatusNotActive         Status = 0x83 // endpoint has no simple descriptor
	StatusNotSupported      Status = 0x84
	StatusTimeout           Status = 0x85
	StatusNoMatch           Status = 0x86
	StatusNoEntry           Status = 0x88
	StatusNoDescriptor      Status = 0x89
	StatusInsufficientSpace Status = 0x8A
	StatusNotPermitted      Status = 0x8B
	StatusTableFull         Status = 0x8C
	StatusNotAuthorized     Status = 0x8D
)

var statusNames = map[Status]string{
	StatusSuccess:           "SUCCESS",
	StatusInvRequestType:    "INV_REQUESTTYPE",
	StatusDeviceNotFound:    "DEVICE_NOT_FOUND",
	StatusInvalidEP:         "INVALID_EP",
	StatusNotActive:         "NOT_ACTIVE",
	StatusNotSupported:      "NOT_SUPPORTED",
	StatusTimeout:           "TIMEOUT",
	StatusNoMatch:           "NO_MATCH",
	StatusNoEntry:           "NO_ENTRY",
	StatusNoDescriptor:      "NO_DESCRIPTOR",
	StatusInsufficientSpace: "INSUFFICIENT_SPACE",
	StatusNotPermitted:      "NOT_PERMITTED",
	StatusTableFull:         "TABLE_FULL",
	StatusNotAuthorized:     "NOT_AUTHORIZED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint8(s))
}
