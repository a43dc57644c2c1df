package radio

// XBee API mode 1 frame codec. Multi-byte fields are big-endian on this link,
// unlike the little-endian Zigbee payloads they carry.

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"zigbee-relay/internal/wire"
)

const apiStart = 0x7E

// API frame types.
const (
	apiATCommand     uint8 = 0x08
	apiExplicitTx    uint8 = 0x11
	apiATResponse    uint8 = 0x88
	apiModemStatus   uint8 = 0x8A
	apiTxStatus      uint8 = 0x8B
	apiExplicitRx    uint8 = 0x91
	maxAPIFrameBytes       = 512
)

// Receive option bits.
const rxOptBroadcast = 0x02

// errBadFrame marks a frame that was read completely but must be skipped.
var errBadFrame = errors.New("xbee: malformed frame")

func apiFrameName(t uint8) string {
	switch t {
	case apiATCommand:
		return "AT_COMMAND"
	case apiExplicitTx:
		return "EXPLICIT_TX"
	case apiATResponse:
		return "AT_RESPONSE"
	case apiModemStatus:
		return "MODEM_STATUS"
	case apiTxStatus:
		return "TX_STATUS"
	case apiExplicitRx:
		return "EXPLICIT_RX"
	}
	return fmt.Sprintf("0x%02X", t)
}

// checksum is 0xFF minus the low byte of the sum of the frame data.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 0xFF - sum
}

// encodeAPIFrame wraps frame data in start delimiter, length and checksum.
func encodeAPIFrame(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	out = append(out, apiStart, byte(len(data)>>8), byte(len(data)))
	out = append(out, data...)
	return append(out, checksum(data))
}

// readAPIFrame skips to the next start delimiter and returns the frame data of
// one complete frame.
func readAPIFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == apiStart {
			break
		}
	}

	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 || n > maxAPIFrameBytes {
		return nil, fmt.Errorf("%w: length %d", errBadFrame, n)
	}

	buf := make([]byte, n+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	data, sum := buf[:n], buf[n]
	if checksum(data) != sum {
		return nil, fmt.Errorf("%w: checksum 0x%02X, want 0x%02X", errBadFrame, sum, checksum(data))
	}
	return data, nil
}

func encodeATCommand(frameID uint8, cmd string, param []byte) []byte {
	data := make([]byte, 0, 4+len(param))
	data = append(data, apiATCommand, frameID, cmd[0], cmd[1])
	return append(data, param...)
}

type atResponse struct {
	FrameID uint8
	Command string
	Status  uint8
	Data    []byte
}

func decodeATResponse(data []byte) (atResponse, error) {
	if len(data) < 5 || data[0] != apiATResponse {
		return atResponse{}, fmt.Errorf("xbee at response: %w", wire.ErrTruncated)
	}
	return atResponse{
		FrameID: data[1],
		Command: string(data[2:4]),
		Status:  data[4],
		Data:    data[5:],
	}, nil
}

func atStatusName(s uint8) string {
	switch s {
	case 0:
		return "OK"
	case 1:
		return "ERROR"
	case 2:
		return "INVALID_COMMAND"
	case 3:
		return "INVALID_PARAMETER"
	case 4:
		return "TX_FAILURE"
	}
	return fmt.Sprintf("0x%02X", s)
}

func put64(b []byte, a wire.EUI64) {
	binary.BigEndian.PutUint64(b, a.Uint64())
}

// encodeExplicitTx builds an explicit addressing transmit request with
// default radius and options.
func encodeExplicitTx(frameID uint8, req TxRequest) []byte {
	data := make([]byte, 20, 20+len(req.Payload))
	data[0] = apiExplicitTx
	data[1] = frameID
	put64(data[2:10], req.Dest)
	binary.BigEndian.PutUint16(data[10:12], req.DestShort)
	data[12] = req.SourceEndpoint
	data[13] = req.DestEndpoint
	binary.BigEndian.PutUint16(data[14:16], req.ClusterID)
	binary.BigEndian.PutUint16(data[16:18], req.ProfileID)
	data[18] = 0 // broadcast radius: network maximum
	data[19] = 0 // transmit options
	return append(data, req.Payload...)
}

const explicitRxHeader = 18

func decodeExplicitRx(data []byte) (*Frame, error) {
	if len(data) < explicitRxHeader || data[0] != apiExplicitRx {
		return nil, fmt.Errorf("xbee explicit rx: %w", wire.ErrTruncated)
	}
	f := &Frame{
		Sender:         wire.EUI64FromUint64(binary.BigEndian.Uint64(data[1:9])),
		SenderShort:    binary.BigEndian.Uint16(data[9:11]),
		SourceEndpoint: data[11],
		DestEndpoint:   data[12],
		ClusterID:      binary.BigEndian.Uint16(data[13:15]),
		ProfileID:      binary.BigEndian.Uint16(data[15:17]),
		Broadcast:      data[17]&rxOptBroadcast != 0,
		Payload:        append([]byte(nil), data[explicitRxHeader:]...),
	}
	return f, nil
}

type txStatus struct {
	FrameID   uint8
	DestShort uint16
	Retries   uint8
	Delivery  uint8
	Discovery uint8
}

func decodeTxStatus(data []byte) (txStatus, error) {
	if len(data) < 7 || data[0] != apiTxStatus {
		return txStatus{}, fmt.Errorf("xbee tx status: %w", wire.ErrTruncated)
	}
	return txStatus{
		FrameID:   data[1],
		DestShort: binary.BigEndian.Uint16(data[2:4]),
		Retries:   data[4],
		Delivery:  data[5],
		Discovery: data[6],
	}, nil
}

func modemStatusName(s uint8) string {
	switch s {
	case 0x00:
		return "HARDWARE_RESET"
	case 0x01:
		return "WATCHDOG_RESET"
	case 0x02:
		return "JOINED"
	case 0x03:
		return "DISASSOCIATED"
	case 0x06:
		return "COORDINATOR_STARTED"
	}
	return fmt.Sprintf("0x%02X", s)
}

// beUint reads a big-endian unsigned integer of up to 8 bytes. AT responses
// may drop leading zero bytes.
func beUint(b []byte) uint64 {
	var n uint64
	for _, x := range b {
		n = n<<8 | uint64(x)
	}
	return n
}
