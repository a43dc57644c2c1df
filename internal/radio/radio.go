// Package radio defines the transport boundary between the relay node and its
// Zigbee radio module.
// Backend: Digi XBee in API mode 1 over a serial UART.
package radio

import (
	"context"
	"errors"

	"zigbee-relay/internal/wire"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("radio: transport closed")

// Well-known 16-bit network addresses.
const (
	ShortCoordinator uint16 = 0x0000
	ShortBroadcast   uint16 = 0xFFFD // all devices with receiver on when idle
	ShortUnknown     uint16 = 0xFFFE
)

// Transport is the radio as seen by the dispatcher.
type Transport interface {
	// Receive returns one pending inbound frame without blocking, or nil when
	// nothing is queued.
	Receive(ctx context.Context) (*Frame, error)
	// Transmit sends a frame. Delivery is best effort.
	Transmit(ctx context.Context, req TxRequest) error
	// AssociationStatus returns the module's join state; zero means joined.
	AssociationStatus(ctx context.Context) (uint8, error)
	// Identity returns the module's own addresses.
	Identity(ctx context.Context) (Identity, error)

	Close() error
}

// Identity holds the node's own network addresses.
type Identity struct {
	IEEE  wire.EUI64
	Short uint16
}

// Frame is an addressed application frame received over the air.
type Frame struct {
	Sender         wire.EUI64
	SenderShort    uint16
	SourceEndpoint uint8
	DestEndpoint   uint8
	ClusterID      uint16
	ProfileID      uint16
	Payload        []byte
	Broadcast      bool
}

// TxRequest is an outbound application frame.
type TxRequest struct {
	Dest           wire.EUI64
	DestShort      uint16
	SourceEndpoint uint8
	DestEndpoint   uint8
	ClusterID      uint16
	ProfileID      uint16
	Payload        []byte
}

// ToCoordinator addresses a frame to the network coordinator.
func ToCoordinator(srcEP, dstEP uint8, clusterID, profileID uint16, payload []byte) TxRequest {
	return TxRequest{
		DestShort:      ShortCoordinator,
		SourceEndpoint: srcEP,
		DestEndpoint:   dstEP,
		ClusterID:      clusterID,
		ProfileID:      profileID,
		Payload:        payload,
	}
}

// Broadcast64 is the 64-bit broadcast address.
var Broadcast64 = wire.EUI64FromUint64(0xFFFF)

// ToBroadcast addresses a frame to every router and always-on device.
func ToBroadcast(srcEP, dstEP uint8, clusterID, profileID uint16, payload []byte) TxRequest {
	return TxRequest{
		Dest:           Broadcast64,
		DestShort:      ShortBroadcast,
		SourceEndpoint: srcEP,
		DestEndpoint:   dstEP,
		ClusterID:      clusterID,
		ProfileID:      profileID,
		Payload:        payload,
	}
}

// ReplyTo addresses a response back to the sender of f. The endpoints are
// swapped so the reply leaves from the endpoint the request was sent to.
func ReplyTo(f *Frame, clusterID uint16, payload []byte) TxRequest {
	return TxRequest{
		Dest:           f.Sender,
		DestShort:      f.SenderShort,
		SourceEndpoint: f.DestEndpoint,
		DestEndpoint:   f.SourceEndpoint,
		ClusterID:      clusterID,
		ProfileID:      f.ProfileID,
		Payload:        payload,
	}
}
