// Package zcl encodes and decodes application-profile command frames for the
// on/off cluster and the attribute read/report foundation commands.
package zcl

import (
	"errors"
	"fmt"

	"zigbee-relay/internal/wire"
)

// ProfileHomeAutomation is the application profile served by the relay node.
const ProfileHomeAutomation uint16 = 0x0104

// Diagnostics attached to frames that decoded but could not be interpreted.
var (
	ErrReservedFrameType = errors.New("zcl: reserved frame type")
	ErrUnknownCommand    = errors.New("zcl: command not implemented")
	ErrClientCommand     = errors.New("zcl: client commands not implemented")
)

// Header is the fixed part of a ZCL frame.
type Header struct {
	Control          FrameControl
	ManufacturerCode uint16 // only on the wire when Control.ManufacturerSpecific()
	TSN              uint8
	CommandID        uint8
}

// Frame is a decoded ZCL frame.
type Frame struct {
	Header
	ClusterID uint16
	Args      []wire.Value

	// Leftover holds bytes that followed the last schema field.
	Leftover []byte
	// Diagnostic is set when no schema applies to the command; Args is then
	// empty and Leftover holds the unparsed payload.
	Diagnostic error
}

// CommandName returns a readable name for the frame's command.
func (f Frame) CommandName() string {
	if f.Control.IsGlobal() {
		if c, ok := globalCommands[f.CommandID]; ok {
			return c.Name
		}
	} else if c, ok := clusters[f.ClusterID]; ok {
		if cmd := c.FindCommand(f.CommandID); cmd != nil {
			return cmd.Name
		}
	}
	return fmt.Sprintf("0x%02X", f.CommandID)
}

// argSchema selects the argument layout for a frame header. A nil schema with
// a non-nil error means no layout is known.
func argSchema(clusterID uint16, h Header) (wire.Schema, error) {
	switch h.Control.FrameType() {
	case FrameTypeCluster:
		if h.Control.IsReply() {
			return nil, fmt.Errorf("%w: cluster 0x%04X command 0x%02X", ErrClientCommand, clusterID, h.CommandID)
		}
		c, ok := clusters[clusterID]
		if !ok {
			return nil, fmt.Errorf("%w: cluster 0x%04X", ErrUnknownCommand, clusterID)
		}
		cmd := c.FindCommand(h.CommandID)
		if cmd == nil {
			return nil, fmt.Errorf("%w: %s command 0x%02X", ErrUnknownCommand, c.Name, h.CommandID)
		}
		return cmd.Args, nil
	case FrameTypeGlobal:
		cmd, ok := globalCommands[h.CommandID]
		if !ok {
			return nil, fmt.Errorf("%w: general command 0x%02X", ErrUnknownCommand, h.CommandID)
		}
		return cmd.Args, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrReservedFrameType, uint8(h.Control.FrameType()))
}

// DecodeHeader reads the frame control, optional manufacturer code, sequence
// number and command id.
func DecodeHeader(payload []byte) (Header, []byte, error) {
	var h Header
	fc, rest, err := wire.Uint8.Decode(payload)
	if err != nil {
		return h, payload, fmt.Errorf("zcl frame control: %w", err)
	}
	h.Control = FrameControl(fc.(uint8))

	if h.Control.ManufacturerSpecific() {
		mc, r, err := wire.Uint16.Decode(rest)
		if err != nil {
			return h, payload, fmt.Errorf("zcl manufacturer code: %w", err)
		}
		h.ManufacturerCode = mc.(uint16)
		rest = r
	}

	tsn, rest, err := wire.Uint8.Decode(rest)
	if err != nil {
		return h, payload, fmt.Errorf("zcl tsn: %w", err)
	}
	h.TSN = tsn.(uint8)

	cmd, rest, err := wire.Uint8.Decode(rest)
	if err != nil {
		return h, payload, fmt.Errorf("zcl command id: %w", err)
	}
	h.CommandID = cmd.(uint8)
	return h, rest, nil
}

// Decode parses a ZCL frame received on clusterID. Commands without a known
// schema still decode, with a Diagnostic and no arguments. The returned error
// is always a wire.ErrTruncated.
func Decode(clusterID uint16, payload []byte) (Frame, error) {
	h, rest, err := DecodeHeader(payload)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Header: h, ClusterID: clusterID}

	schema, diag := argSchema(clusterID, h)
	if diag != nil {
		f.Diagnostic = diag
		if len(rest) > 0 {
			f.Leftover = rest
		}
		return f, nil
	}

	args, rest, err := schema.Decode(rest)
	if err != nil {
		return Frame{}, fmt.Errorf("zcl %s: %w", f.CommandName(), err)
	}
	f.Args = args
	if len(rest) > 0 {
		f.Leftover = rest
	}
	return f, nil
}

func encodeHeader(h Header) []byte {
	fc := h.Control &^ fcReservedMask
	out := []byte{byte(fc)}
	if fc.ManufacturerSpecific() {
		out = append(out, byte(h.ManufacturerCode), byte(h.ManufacturerCode>>8))
	}
	return append(out, h.TSN, h.CommandID)
}

// EncodeFrame serializes a header followed by args laid out per the schema
// Decode would select for the same header.
func EncodeFrame(clusterID uint16, h Header, args ...wire.Value) ([]byte, error) {
	schema, err := argSchema(clusterID, h)
	if err != nil {
		return nil, err
	}
	body, err := schema.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("zcl command 0x%02X: %w", h.CommandID, err)
	}
	return append(encodeHeader(h), body...), nil
}

// Attribute record layouts.
var (
	readAttrSuccess = wire.Schema{
		{Name: "AttributeID", Type: wire.Uint16},
		{Name: "Status", Type: wire.Uint8},
		{Name: "DataType", Type: wire.Uint8},
		{Name: "Value", Type: wire.Uint8},
	}
	readAttrFailure = wire.Schema{
		{Name: "AttributeID", Type: wire.Uint16},
		{Name: "Status", Type: wire.Uint8},
	}
	reportRecord = wire.Schema{
		{Name: "AttributeID", Type: wire.Uint16},
		{Name: "DataType", Type: wire.Uint8},
		{Name: "Value", Type: wire.Uint8},
	}
)

func boolByte(on bool) uint8 {
	if on {
		return 1
	}
	return 0
}

// EncodeAttributeResponse builds a read attributes response for the on/off
// cluster. The on/off attribute reports on; every other requested id is
// answered as unsupported. Records follow the request order.
func EncodeAttributeResponse(tsn uint8, on bool, attrIDs []uint16) ([]byte, error) {
	out := encodeHeader(Header{
		Control:   NewFrameControl(FrameTypeGlobal),
		TSN:       tsn,
		CommandID: FoundationReadAttributesResponse,
	})
	for _, id := range attrIDs {
		var (
			rec []byte
			err error
		)
		if id == AttrOnOff {
			rec, err = readAttrSuccess.Encode([]wire.Value{id, uint8(StatusSuccess), TypeBool, boolByte(on)})
		} else {
			rec, err = readAttrFailure.Encode([]wire.Value{id, uint8(StatusUnsupportedAttr)})
		}
		if err != nil {
			return nil, fmt.Errorf("zcl attribute 0x%04X: %w", id, err)
		}
		out = append(out, rec...)
	}
	return out, nil
}

// EncodeOnOffReport builds a report attributes frame carrying the on/off
// attribute, with the default response disabled.
func EncodeOnOffReport(tsn uint8, on bool) ([]byte, error) {
	out := encodeHeader(Header{
		Control:   NewFrameControl(FrameTypeGlobal).WithDisableDefaultResponse(true),
		TSN:       tsn,
		CommandID: FoundationReportAttributes,
	})
	rec, err := reportRecord.Encode([]wire.Value{AttrOnOff, TypeBool, boolByte(on)})
	if err != nil {
		return nil, fmt.Errorf("zcl on/off report: %w", err)
	}
	return append(out, rec...), nil
}

// AttributeIDs extracts the requested ids from a decoded read attributes frame.
func AttributeIDs(f Frame) []uint16 {
	if len(f.Args) == 0 {
		return nil
	}
	items, _ := f.Args[0].([]wire.Value)
	ids := make([]uint16, 0, len(items))
	for _, v := range items {
		if id, ok := v.(uint16); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
