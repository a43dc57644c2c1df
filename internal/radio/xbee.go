package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"zigbee-relay/internal/wire"
)

const (
	defaultATTimeout = 2 * time.Second
	rxQueueSize      = 32
)

// XBee implements Transport for an XBee module in API mode 1.
type XBee struct {
	port      io.ReadWriteCloser
	reader    *bufio.Reader
	logger    *slog.Logger
	atTimeout time.Duration

	frameID atomic.Uint32
	writeMu sync.Mutex

	// AT command responses, keyed by frame id.
	pending   map[uint8]chan atResponse
	pendingMu sync.Mutex

	rx chan *Frame

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// OpenXBee opens the serial port an XBee module is attached to.
func OpenXBee(portName string, baudRate int, atTimeout time.Duration, logger *slog.Logger) (*XBee, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("xbee: open %s: %w", portName, err)
	}
	logger.Info("xbee port opened", "port", portName, "baud", baudRate)
	return newXBee(port, atTimeout, logger), nil
}

func newXBee(port io.ReadWriteCloser, atTimeout time.Duration, logger *slog.Logger) *XBee {
	if atTimeout <= 0 {
		atTimeout = defaultATTimeout
	}
	x := &XBee{
		port:      port,
		reader:    bufio.NewReader(port),
		logger:    logger,
		atTimeout: atTimeout,
		pending:   make(map[uint8]chan atResponse),
		rx:        make(chan *Frame, rxQueueSize),
		done:      make(chan struct{}),
	}
	x.wg.Add(1)
	go x.readLoop()
	return x
}

// nextFrameID allocates a non-zero frame id; zero suppresses the response.
func (x *XBee) nextFrameID() uint8 {
	for {
		if id := uint8(x.frameID.Add(1)); id != 0 {
			return id
		}
	}
}

func (x *XBee) write(data []byte) error {
	if x.closed.Load() {
		return ErrClosed
	}
	x.writeMu.Lock()
	_, err := x.port.Write(encodeAPIFrame(data))
	x.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// atCommand queries or sets a local AT parameter and waits for its response.
func (x *XBee) atCommand(ctx context.Context, cmd string, param []byte) ([]byte, error) {
	id := x.nextFrameID()
	ch := make(chan atResponse, 1)
	x.pendingMu.Lock()
	x.pending[id] = ch
	x.pendingMu.Unlock()
	defer func() {
		x.pendingMu.Lock()
		delete(x.pending, id)
		x.pendingMu.Unlock()
	}()

	if err := x.write(encodeATCommand(id, cmd, param)); err != nil {
		return nil, fmt.Errorf("xbee AT%s: %w", cmd, err)
	}

	ctx, cancel := context.WithTimeout(ctx, x.atTimeout)
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if resp.Status != 0 {
			return nil, fmt.Errorf("xbee AT%s: %s", cmd, atStatusName(resp.Status))
		}
		x.logger.Debug("xbee AT", "cmd", cmd, "data", fmt.Sprintf("%X", resp.Data))
		return resp.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("xbee AT%s: %w", cmd, ctx.Err())
	case <-x.done:
		return nil, ErrClosed
	}
}

// AssociationStatus returns the AI parameter.
func (x *XBee) AssociationStatus(ctx context.Context) (uint8, error) {
	data, err := x.atCommand(ctx, "AI", nil)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("xbee ATAI: %w", wire.ErrTruncated)
	}
	return data[len(data)-1], nil
}

// Identity reads the serial number (SH, SL) and network address (MY).
func (x *XBee) Identity(ctx context.Context) (Identity, error) {
	var id Identity
	sh, err := x.atCommand(ctx, "SH", nil)
	if err != nil {
		return id, err
	}
	sl, err := x.atCommand(ctx, "SL", nil)
	if err != nil {
		return id, err
	}
	my, err := x.atCommand(ctx, "MY", nil)
	if err != nil {
		return id, err
	}
	id.IEEE = wire.EUI64FromUint64(beUint(sh)<<32 | beUint(sl))
	id.Short = uint16(beUint(my))
	return id, nil
}

// Transmit sends an explicit addressing frame. The transmit status is only
// logged.
func (x *XBee) Transmit(ctx context.Context, req TxRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := x.nextFrameID()
	if err := x.write(encodeExplicitTx(id, req)); err != nil {
		return fmt.Errorf("xbee transmit cluster 0x%04X: %w", req.ClusterID, err)
	}
	x.logger.Debug("xbee TX",
		"frame_id", id,
		"dest", req.Dest.String(),
		"dest_short", fmt.Sprintf("0x%04X", req.DestShort),
		"cluster", fmt.Sprintf("0x%04X", req.ClusterID),
		"profile", fmt.Sprintf("0x%04X", req.ProfileID),
		"payload", fmt.Sprintf("%X", req.Payload))
	return nil
}

// Receive returns the oldest queued inbound frame, or nil when none is
// queued.
func (x *XBee) Receive(ctx context.Context) (*Frame, error) {
	select {
	case f := <-x.rx:
		return f, nil
	default:
	}
	select {
	case <-x.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, nil
	}
}

func (x *XBee) readLoop() {
	defer x.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-x.done:
			return
		default:
		}

		data, err := readAPIFrame(x.reader)
		if err != nil {
			select {
			case <-x.done:
				return
			default:
			}
			if errors.Is(err, errBadFrame) {
				x.logger.Warn("xbee frame dropped", "err", err)
				continue
			}
			if err != io.EOF && !strings.Contains(err.Error(), "closed") {
				x.logger.Error("xbee read error", "err", err)
			}
			select {
			case <-time.After(backoff):
			case <-x.done:
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 10 * time.Millisecond

		x.handleFrame(data)
	}
}

func (x *XBee) handleFrame(data []byte) {
	switch data[0] {
	case apiATResponse:
		resp, err := decodeATResponse(data)
		if err != nil {
			x.logger.Warn("xbee decode error", "type", apiFrameName(data[0]), "err", err)
			return
		}
		x.pendingMu.Lock()
		ch, ok := x.pending[resp.FrameID]
		x.pendingMu.Unlock()
		if !ok {
			x.logger.Warn("xbee orphaned AT response", "cmd", resp.Command, "frame_id", resp.FrameID)
			return
		}
		select {
		case ch <- resp:
		default:
		}

	case apiExplicitRx:
		f, err := decodeExplicitRx(data)
		if err != nil {
			x.logger.Warn("xbee decode error", "type", apiFrameName(data[0]), "err", err)
			return
		}
		x.logger.Debug("xbee RX",
			"sender", f.Sender.String(),
			"sender_short", fmt.Sprintf("0x%04X", f.SenderShort),
			"cluster", fmt.Sprintf("0x%04X", f.ClusterID),
			"profile", fmt.Sprintf("0x%04X", f.ProfileID),
			"src_ep", f.SourceEndpoint,
			"dst_ep", f.DestEndpoint,
			"broadcast", f.Broadcast,
			"payload", fmt.Sprintf("%X", f.Payload))
		x.enqueue(f)

	case apiTxStatus:
		st, err := decodeTxStatus(data)
		if err != nil {
			x.logger.Warn("xbee decode error", "type", apiFrameName(data[0]), "err", err)
			return
		}
		if st.Delivery != 0 {
			x.logger.Warn("xbee transmit failed",
				"frame_id", st.FrameID,
				"dest_short", fmt.Sprintf("0x%04X", st.DestShort),
				"retries", st.Retries,
				"delivery", fmt.Sprintf("0x%02X", st.Delivery))
		}

	case apiModemStatus:
		if len(data) > 1 {
			x.logger.Info("xbee modem status", "status", modemStatusName(data[1]))
		}

	default:
		x.logger.Debug("xbee frame ignored", "type", apiFrameName(data[0]), "len", len(data))
	}
}

// enqueue adds f to the receive queue, evicting the oldest frame when full.
func (x *XBee) enqueue(f *Frame) {
	for {
		select {
		case x.rx <- f:
			return
		default:
		}
		select {
		case old := <-x.rx:
			x.logger.Warn("xbee receive queue full, frame dropped",
				"cluster", fmt.Sprintf("0x%04X", old.ClusterID),
				"dst_ep", old.DestEndpoint)
		default:
		}
	}
}

// Close stops the reader and releases the port. Pending AT commands fail with
// ErrClosed.
func (x *XBee) Close() error {
	var err error
	x.closeOnce.Do(func() {
		x.closed.Store(true)
		close(x.done)
		err = x.port.Close()
		x.wg.Wait()

		x.pendingMu.Lock()
		for id, ch := range x.pending {
			close(ch)
			delete(x.pending, id)
		}
		x.pendingMu.Unlock()
	})
	return err
}
