package radio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeModule is the device side of a piped XBee link.
type fakeModule struct {
	conn net.Conn
	r    *bufio.Reader
}

func newTestXBee(t *testing.T, atTimeout time.Duration) (*XBee, *fakeModule) {
	t.Helper()
	host, dev := net.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	x := newXBee(host, atTimeout, logger)
	t.Cleanup(func() {
		x.Close()
		dev.Close()
	})
	return x, &fakeModule{conn: dev, r: bufio.NewReader(dev)}
}

func (m *fakeModule) send(t *testing.T, data []byte) {
	t.Helper()
	m.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := m.conn.Write(encodeAPIFrame(data)); err != nil {
		t.Fatalf("module write: %v", err)
	}
}

// serveAT answers AT commands from params until the link closes. Unknown
// commands get INVALID_COMMAND.
func (m *fakeModule) serveAT(params map[string][]byte) {
	go func() {
		for {
			data, err := readAPIFrame(m.r)
			if err != nil {
				return
			}
			if data[0] != apiATCommand {
				continue
			}
			val, ok := params[string(data[2:4])]
			status := byte(0)
			if !ok {
				status = 2
			}
			resp := append([]byte{apiATResponse, data[1], data[2], data[3], status}, val...)
			if _, err := m.conn.Write(encodeAPIFrame(resp)); err != nil {
				return
			}
		}
	}()
}

func waitFrame(t *testing.T, x *XBee) *Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := x.Receive(context.Background())
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if f != nil {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no frame received")
	return nil
}

func TestAssociationStatus(t *testing.T) {
	tests := []struct {
		name string
		ai   []byte
		want uint8
	}{
		{"joined", []byte{0x00}, 0x00},
		{"scanning", []byte{0xFF}, 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, m := newTestXBee(t, time.Second)
			m.serveAT(map[string][]byte{"AI": tt.ai})

			got, err := x.AssociationStatus(context.Background())
			if err != nil {
				t.Fatalf("AssociationStatus: %v", err)
			}
			if got != tt.want {
				t.Errorf("got 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	x, m := newTestXBee(t, time.Second)
	m.serveAT(map[string][]byte{
		"SH": {0x00, 0x13, 0xA2, 0x00},
		"SL": {0x41, 0x52, 0x63, 0x74},
		"MY": {0x12, 0x34},
	})

	id, err := x.Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if got := id.IEEE.String(); got != "00:13:a2:00:41:52:63:74" {
		t.Errorf("ieee: got %s", got)
	}
	if id.Short != 0x1234 {
		t.Errorf("short: got 0x%04X", id.Short)
	}
}

func TestATCommandError(t *testing.T) {
	x, m := newTestXBee(t, time.Second)
	m.serveAT(map[string][]byte{"SH": {0}, "SL": {0}})

	_, err := x.Identity(context.Background())
	if err == nil || !strings.Contains(err.Error(), "INVALID_COMMAND") {
		t.Errorf("err: got %v, want INVALID_COMMAND", err)
	}
}

func TestATCommandTimeout(t *testing.T) {
	x, m := newTestXBee(t, 50*time.Millisecond)
	go io.Copy(io.Discard, m.conn)

	_, err := x.AssociationStatus(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err: got %v, want deadline exceeded", err)
	}
	if len(x.pending) != 0 {
		t.Errorf("pending entries left: %d", len(x.pending))
	}
}

func TestReceiveEmpty(t *testing.T) {
	x, _ := newTestXBee(t, time.Second)
	f, err := x.Receive(context.Background())
	if err != nil || f != nil {
		t.Errorf("got %v, %v; want nil, nil", f, err)
	}
}

func TestReceiveExplicitRx(t *testing.T) {
	x, m := newTestXBee(t, time.Second)

	// A corrupt frame first; the reader must resync on the next delimiter.
	bad := encodeAPIFrame([]byte{0x91, 0x00})
	bad[len(bad)-1] ^= 0x55
	m.conn.Write(bad)

	m.send(t, []byte{
		0x91,
		0x00, 0x13, 0xA2, 0x00, 0x41, 0x52, 0x63, 0x74,
		0x00, 0x00,
		0x01, 0xC0,
		0x00, 0x06,
		0x01, 0x04,
		0x01,
		0x01, 0x10, 0x01,
	})

	f := waitFrame(t, x)
	if f.DestEndpoint != 0xC0 || f.ClusterID != 0x0006 {
		t.Errorf("got ep %d cluster 0x%04X", f.DestEndpoint, f.ClusterID)
	}
	if f.Broadcast {
		t.Error("unexpected broadcast flag")
	}
	if !bytes.Equal(f.Payload, []byte{0x01, 0x10, 0x01}) {
		t.Errorf("payload: got %X", f.Payload)
	}
}

func TestTransmit(t *testing.T) {
	x, m := newTestXBee(t, time.Second)
	req := ToCoordinator(0xC2, 0xC2, 0x0006, 0x0104, []byte{0x10, 0x01, 0x0A, 0x00, 0x00, 0x10, 0x01})

	errc := make(chan error, 1)
	go func() { errc <- x.Transmit(context.Background(), req) }()

	m.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := readAPIFrame(m.r)
	if err != nil {
		t.Fatalf("module read: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if data[0] != apiExplicitTx || data[1] == 0 {
		t.Errorf("header: got type 0x%02X frame id %d", data[0], data[1])
	}
	if want := encodeExplicitTx(data[1], req); !bytes.Equal(data, want) {
		t.Errorf("got  %X\nwant %X", data, want)
	}
}

func TestEnqueueDropsOldest(t *testing.T) {
	x, _ := newTestXBee(t, time.Second)
	for i := 0; i <= rxQueueSize; i++ {
		x.enqueue(&Frame{ClusterID: uint16(i)})
	}
	f, _ := x.Receive(context.Background())
	if f == nil || f.ClusterID != 1 {
		t.Fatalf("first frame: got %+v, want cluster 1", f)
	}
	for i := 2; i <= rxQueueSize; i++ {
		f, _ := x.Receive(context.Background())
		if f == nil || f.ClusterID != uint16(i) {
			t.Fatalf("frame %d: got %+v", i, f)
		}
	}
}

func TestNextFrameIDSkipsZero(t *testing.T) {
	x, _ := newTestXBee(t, time.Second)
	x.frameID.Store(254)
	if id := x.nextFrameID(); id != 255 {
		t.Errorf("got %d, want 255", id)
	}
	if id := x.nextFrameID(); id != 1 {
		t.Errorf("wrap: got %d, want 1", id)
	}
}

func TestClose(t *testing.T) {
	x, _ := newTestXBee(t, time.Second)
	if err := x.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := x.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after close: got %v", err)
	}
	if err := x.Transmit(context.Background(), TxRequest{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Transmit after close: got %v", err)
	}
	if err := x.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

var _ Transport = (*XBee)(nil)
