package zcl

import "fmt"

// FrameType is the 2-bit frame type of the frame control field.
type FrameType uint8

const (
	FrameTypeGlobal    FrameType = 0b00
	FrameTypeCluster   FrameType = 0b01
	FrameTypeReserved2 FrameType = 0b10
	FrameTypeReserved3 FrameType = 0b11
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeGlobal:
		return "global"
	case FrameTypeCluster:
		return "cluster"
	}
	return fmt.Sprintf("reserved(%d)", uint8(t))
}

// Frame control bits.
const (
	fcFrameTypeMask          = 0b00000011
	fcManufacturerSpecific   = 0b00000100
	fcDirection              = 0b00001000
	fcDisableDefaultResponse = 0b00010000
	fcReservedMask           = 0b11100000
)

// FrameControl is the first byte of every ZCL frame. It is an immutable value;
// the With methods return modified copies.
type FrameControl uint8

// NewFrameControl returns a frame control of type t with every flag clear.
func NewFrameControl(t FrameType) FrameControl {
	return FrameControl(uint8(t) & fcFrameTypeMask)
}

// ForRequest returns a client-to-server frame control of type t.
func ForRequest(t FrameType) FrameControl {
	return NewFrameControl(t)
}

// ForReply returns a server-to-client frame control of type t with the
// default response disabled.
func ForReply(t FrameType) FrameControl {
	return NewFrameControl(t).WithReply(true).WithDisableDefaultResponse(true)
}

func (fc FrameControl) FrameType() FrameType { return FrameType(fc & fcFrameTypeMask) }

// IsCluster reports a cluster-specific command.
func (fc FrameControl) IsCluster() bool { return fc.FrameType() == FrameTypeCluster }

// IsGlobal reports a foundation command.
func (fc FrameControl) IsGlobal() bool { return fc.FrameType() == FrameTypeGlobal }

// ManufacturerSpecific reports whether a manufacturer code follows.
func (fc FrameControl) ManufacturerSpecific() bool { return fc&fcManufacturerSpecific != 0 }

// IsReply reports the server-to-client direction.
func (fc FrameControl) IsReply() bool { return fc&fcDirection != 0 }

func (fc FrameControl) DisableDefaultResponse() bool { return fc&fcDisableDefaultResponse != 0 }

func (fc FrameControl) WithFrameType(t FrameType) FrameControl {
	return fc&^fcFrameTypeMask | FrameControl(uint8(t)&fcFrameTypeMask)
}

func (fc FrameControl) WithManufacturerSpecific(v bool) FrameControl {
	return fc.with(fcManufacturerSpecific, v)
}

func (fc FrameControl) WithReply(v bool) FrameControl {
	return fc.with(fcDirection, v)
}

func (fc FrameControl) WithDisableDefaultResponse(v bool) FrameControl {
	return fc.with(fcDisableDefaultResponse, v)
}

func (fc FrameControl) with(bit FrameControl, v bool) FrameControl {
	if v {
		return fc | bit
	}
	return fc &^ bit
}

func (fc FrameControl) String() string {
	return fmt.Sprintf("<FrameControl frame_type=%s manufacturer_specific=%t is_reply=%t disable_default_response=%t>",
		fc.FrameType(), fc.ManufacturerSpecific(), fc.IsReply(), fc.DisableDefaultResponse())
}
