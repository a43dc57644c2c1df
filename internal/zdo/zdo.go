// Package zdo encodes and decodes the subset of device/service discovery
// frames a relay node answers: active endpoint and simple descriptor
// requests, plus the device announcement it sends on its own.
package zdo

import (
	"errors"
	"fmt"

	"zigbee-relay/internal/wire"
)

// Discovery frames travel on profile 0 to endpoint 0.
const (
	ProfileID uint16 = 0x0000
	Endpoint  uint8  = 0x00
)

// Cluster identifiers of the implemented discovery commands.
const (
	SimpleDescReq uint16 = 0x0004
	ActiveEPReq   uint16 = 0x0005
	DeviceAnnce   uint16 = 0x0013
	SimpleDescRsp uint16 = 0x8004
	ActiveEPRsp   uint16 = 0x8005
)

// ErrUnknownCluster marks a discovery cluster with no registered schema.
var ErrUnknownCluster = errors.New("zdo: unknown cluster")

// Shared fields.
var (
	fieldStatus = wire.Field{Name: "Status", Type: wire.Uint8}
	fieldNWK    = wire.Field{Name: "NWKAddr", Type: wire.Uint16}
	fieldNWKI   = wire.Field{Name: "NWKAddrOfInterest", Type: wire.Uint16}
	fieldIEEE   = wire.Field{Name: "IEEEAddr", Type: wire.Address}
)

// SimpleDescriptor describes one endpoint.
var SimpleDescriptor = wire.Struct{
	Name: "SimpleDescriptor",
	Fields: wire.Schema{
		{Name: "Endpoint", Type: wire.Uint8},
		{Name: "Profile", Type: wire.Uint16},
		{Name: "DeviceType", Type: wire.Uint16},
		{Name: "DeviceVersion", Type: wire.Uint8},
		{Name: "InputClusters", Type: wire.LVList(wire.Uint16, 1)},
		{Name: "OutputClusters", Type: wire.LVList(wire.Uint16, 1)},
	},
}

// Command is a registered discovery command.
type Command struct {
	Name   string
	Schema wire.Schema
}

var commands = map[uint16]Command{
	SimpleDescReq: {"Simple_Desc_req", wire.Schema{fieldNWKI, {Name: "EndPoint", Type: wire.Uint8}}},
	ActiveEPReq:   {"Active_EP_req", wire.Schema{fieldNWKI}},
	DeviceAnnce:   {"Device_annce", wire.Schema{fieldNWK, fieldIEEE, {Name: "Capability", Type: wire.Uint8}}},
	SimpleDescRsp: {"Simple_Desc_rsp", wire.Schema{
		fieldStatus,
		fieldNWKI,
		{Name: "SimpleDescriptor", Type: wire.Optional{Inner: wire.SizePrefixed{Inner: SimpleDescriptor}}},
	}},
	ActiveEPRsp: {"Active_EP_rsp", wire.Schema{fieldStatus, fieldNWKI, {Name: "ActiveEPList", Type: wire.LVList(wire.Uint8, 1)}}},
}

// Lookup returns the registered command for clusterID.
func Lookup(clusterID uint16) (Command, bool) {
	c, ok := commands[clusterID]
	return c, ok
}

// Clusters returns every registered cluster id.
func Clusters() []uint16 {
	ids := make([]uint16, 0, len(commands))
	for id := range commands {
		ids = append(ids, id)
	}
	return ids
}

// CommandName returns a readable name for clusterID.
func CommandName(clusterID uint16) string {
	if c, ok := commands[clusterID]; ok {
		return c.Name
	}
	return fmt.Sprintf("0x%04X", clusterID)
}

// Frame is a decoded discovery frame.
type Frame struct {
	TSN       uint8
	ClusterID uint16
	Args      []wire.Value

	// Leftover holds bytes that followed the last schema field.
	Leftover []byte
	// Diagnostic is set when the frame decoded but could not be fully
	// interpreted (unknown cluster).
	Diagnostic error
}

// Decode reads the transaction sequence number and then the arguments
// registered for clusterID. An unknown cluster yields only the sequence number
// and a Diagnostic. The returned error is always a wire.ErrTruncated.
func Decode(clusterID uint16, payload []byte) (Frame, error) {
	tsn, rest, err := wire.Uint8.Decode(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("zdo %s tsn: %w", CommandName(clusterID), err)
	}
	f := Frame{TSN: tsn.(uint8), ClusterID: clusterID}

	cmd, ok := commands[clusterID]
	if !ok {
		f.Diagnostic = fmt.Errorf("%w: 0x%04X", ErrUnknownCluster, clusterID)
		f.Leftover = rest
		return f, nil
	}

	args, rest, err := cmd.Schema.Decode(rest)
	if err != nil {
		return Frame{}, fmt.Errorf("zdo %s: %w", cmd.Name, err)
	}
	f.Args = args
	if len(rest) > 0 {
		f.Leftover = rest
	}
	return f, nil
}

// Encode serializes tsn followed by args, laid out per clusterID's schema.
func Encode(tsn uint8, clusterID uint16, args ...wire.Value) ([]byte, error) {
	cmd, ok := commands[clusterID]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownCluster, clusterID)
	}
	body, err := cmd.Schema.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("zdo %s: %w", cmd.Name, err)
	}
	return append([]byte{tsn}, body...), nil
}

// NewSimpleDescriptor builds a SimpleDescriptor record.
func NewSimpleDescriptor(endpoint uint8, profile, deviceType uint16, version uint8, in, out []uint16) wire.Record {
	if in == nil {
		in = []uint16{}
	}
	if out == nil {
		out = []uint16{}
	}
	return wire.Record{endpoint, profile, deviceType, version, in, out}
}
