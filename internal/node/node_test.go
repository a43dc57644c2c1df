package node

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"zigbee-relay/internal/radio"
	"zigbee-relay/internal/relay"
	"zigbee-relay/internal/wire"
	"zigbee-relay/internal/zcl"
	"zigbee-relay/internal/zdo"
)

// fakeRadio is an in-memory radio.Transport.
type fakeRadio struct {
	mu      sync.Mutex
	inbound []*radio.Frame
	sent    []radio.TxRequest
	ai      uint8
	aiErr   error
	aiCalls int
	id      radio.Identity
	idCalls int
	txErr   error
	closed  bool
}

func (r *fakeRadio) Receive(ctx context.Context) (*radio.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, radio.ErrClosed
	}
	if len(r.inbound) == 0 {
		return nil, nil
	}
	f := r.inbound[0]
	r.inbound = r.inbound[1:]
	return f, nil
}

func (r *fakeRadio) Transmit(ctx context.Context, req radio.TxRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txErr != nil {
		return r.txErr
	}
	r.sent = append(r.sent, req)
	return nil
}

func (r *fakeRadio) AssociationStatus(ctx context.Context) (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aiCalls++
	return r.ai, r.aiErr
}

func (r *fakeRadio) Identity(ctx context.Context) (radio.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idCalls++
	return r.id, nil
}

func (r *fakeRadio) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRadio) push(f *radio.Frame) {
	r.mu.Lock()
	r.inbound = append(r.inbound, f)
	r.mu.Unlock()
}

func (r *fakeRadio) setAI(ai uint8) {
	r.mu.Lock()
	r.ai = ai
	r.mu.Unlock()
}

func (r *fakeRadio) takeSent() []radio.TxRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sent
	r.sent = nil
	return s
}

var testIEEE = wire.EUI64FromUint64(0x0013A20041526374)

type harness struct {
	node   *Node
	radio  *fakeRadio
	board  *relay.Recorder
	clock  time.Time
	events []Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		radio: &fakeRadio{id: radio.Identity{IEEE: testIEEE, Short: 0x1234}},
		board: &relay.Recorder{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := NewEventBus(logger)
	bus.OnAll(func(e Event) { h.events = append(h.events, e) })

	n, err := New(h.radio, h.board, bus, cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.now = func() time.Time { return h.clock }
	n.sleep = func(ctx context.Context, d time.Duration) { h.clock = h.clock.Add(d) }
	n.identity = h.radio.id
	h.node = n
	return h
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	if err := h.node.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func (h *harness) eventsOf(typ string) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) lastDrop(t *testing.T) Diagnostic {
	t.Helper()
	drops := h.eventsOf(EventFrameDropped)
	if len(drops) == 0 {
		t.Fatal("no frame_dropped event")
	}
	return drops[len(drops)-1].Data.(Diagnostic)
}

func onOffFrame(ep uint8, payload []byte) *radio.Frame {
	return &radio.Frame{
		Sender:         wire.EUI64FromUint64(0x00124B0001020304),
		SenderShort:    0x0000,
		SourceEndpoint: 0x01,
		DestEndpoint:   ep,
		ClusterID:      zcl.ClusterOnOff,
		ProfileID:      zcl.ProfileHomeAutomation,
		Payload:        payload,
	}
}

func zdoFrame(clusterID uint16, payload []byte) *radio.Frame {
	return &radio.Frame{
		Sender:      wire.EUI64FromUint64(0x00124B0001020304),
		SenderShort: 0x0000,
		ClusterID:   clusterID,
		ProfileID:   zdo.ProfileID,
		Payload:     payload,
	}
}

func TestOnCommandSetsRelayAndReports(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.push(onOffFrame(0xC2, []byte{0x01, 0x05, zcl.OnOffOn}))
	h.step(t)

	if !h.node.state.On(2) || h.node.state.Mask() != 0x04 {
		t.Fatalf("state: got %s, want channel 2 on", h.node.state)
	}
	ops := h.board.Ops()
	if len(ops) != 1 || ops[0] != (relay.Op{Command: 0x10, Mask: 0x04}) {
		t.Errorf("board writes: got %+v", ops)
	}
	sent := h.radio.takeSent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	rep := sent[0]
	if rep.DestShort != radio.ShortCoordinator || rep.Dest != (wire.EUI64{}) {
		t.Errorf("report dest: got %s/0x%04X", rep.Dest, rep.DestShort)
	}
	if rep.SourceEndpoint != 0xC2 || rep.DestEndpoint != 0xC2 {
		t.Errorf("report endpoints: got %d -> %d", rep.SourceEndpoint, rep.DestEndpoint)
	}
	if rep.ClusterID != zcl.ClusterOnOff || rep.ProfileID != zcl.ProfileHomeAutomation {
		t.Errorf("report cluster/profile: got 0x%04X/0x%04X", rep.ClusterID, rep.ProfileID)
	}
	want := []byte{0x10, 0x00, 0x0A, 0x00, 0x00, 0x10, 0x01}
	if !bytes.Equal(rep.Payload, want) {
		t.Errorf("report payload: got %X, want %X", rep.Payload, want)
	}
	if got := h.node.Snapshot(); got != h.node.state {
		t.Errorf("Snapshot: got %s", got)
	}

	changes := h.eventsOf(EventRelayChanged)
	if len(changes) != 1 {
		t.Fatalf("relay_changed events: %d", len(changes))
	}
	rc := changes[0].Data.(RelayChange)
	if rc.Channel != 2 || !rc.On || rc.Source != "radio" || rc.Command != "on" {
		t.Errorf("relay change: %+v", rc)
	}
}

func TestOffCommandClearsRelay(t *testing.T) {
	h := newHarness(t, Config{})
	h.node.state = relay.State(0x0F)
	h.radio.push(onOffFrame(0xC1, []byte{0x01, 0x06, zcl.OnOffOff}))
	h.step(t)

	if h.node.state.Mask() != 0x0D {
		t.Errorf("state: got %s, want 0b00001101", h.node.state)
	}
	sent := h.radio.takeSent()
	if len(sent) != 1 || sent[0].Payload[len(sent[0].Payload)-1] != 0x00 {
		t.Errorf("report: got %+v", sent)
	}
}

func TestOtherClusterCommandHasNoStateEffect(t *testing.T) {
	h := newHarness(t, Config{})
	h.node.state = relay.State(0x01)
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x07, zcl.OnOffToggle}))
	h.step(t)

	if h.node.state.Mask() != 0x01 {
		t.Errorf("state changed: %s", h.node.state)
	}
	if n := len(h.board.Ops()); n != 1 {
		t.Errorf("board writes: got %d, want 1", n)
	}
	if n := len(h.radio.takeSent()); n != 1 {
		t.Errorf("reports: got %d, want 1", n)
	}
	if n := len(h.eventsOf(EventRelayChanged)); n != 0 {
		t.Errorf("relay_changed events: %d", n)
	}
}

func TestUnassociatedDropsFrame(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.setAI(0xFF)
	h.radio.push(onOffFrame(0xC2, []byte{0x01, 0x05, zcl.OnOffOn}))
	h.step(t)

	if h.node.state != 0 {
		t.Errorf("state mutated: %s", h.node.state)
	}
	if n := len(h.board.Ops()); n != 0 {
		t.Errorf("board writes: %d", n)
	}
	if n := len(h.radio.takeSent()); n != 0 {
		t.Errorf("transmissions: %d", n)
	}
	if d := h.lastDrop(t); d.Kind != KindNotAssociated {
		t.Errorf("drop kind: %s", d.Kind)
	}
}

func TestAssociationQueryErrorDropsFrame(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.aiErr = errors.New("at timeout")
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x05, zcl.OnOffOn}))
	h.step(t)

	if h.node.state != 0 || len(h.radio.takeSent()) != 0 {
		t.Error("frame handled while association unknown")
	}
	if d := h.lastDrop(t); d.Kind != KindNotAssociated {
		t.Errorf("drop kind: %s", d.Kind)
	}
}

func TestActiveEndpointRequest(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.push(zdoFrame(zdo.ActiveEPReq, []byte{0x07, 0x34, 0x12}))
	h.step(t)

	sent := h.radio.takeSent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	want := []byte{0x07, 0x00, 0x34, 0x12, 0x04, 0xC0, 0xC1, 0xC2, 0xC3}
	if !bytes.Equal(sent[0].Payload, want) {
		t.Errorf("payload: got %X, want %X", sent[0].Payload, want)
	}
	if sent[0].ClusterID != zdo.ActiveEPRsp || sent[0].ProfileID != zdo.ProfileID {
		t.Errorf("cluster/profile: got 0x%04X/0x%04X", sent[0].ClusterID, sent[0].ProfileID)
	}
	if sent[0].Dest != wire.EUI64FromUint64(0x00124B0001020304) {
		t.Errorf("dest: got %s", sent[0].Dest)
	}
}

func TestActiveEndpointRequestForOtherNode(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.push(zdoFrame(zdo.ActiveEPReq, []byte{0x07, 0x78, 0x56}))
	h.step(t)

	if n := len(h.radio.takeSent()); n != 0 {
		t.Errorf("sent %d frames, want none", n)
	}
}

func TestSimpleDescriptorRequest(t *testing.T) {
	tests := []struct {
		name string
		ep   uint8
		want []byte
	}{
		{"relay endpoint", 0xC0, []byte{
			0x09, 0x00, 0x34, 0x12,
			0x0A, 0xC0, 0x04, 0x01, 0x00, 0x00, 0x00, 0x01, 0x06, 0x00, 0x00,
		}},
		{"inactive endpoint", 0x10, []byte{0x09, 0x83, 0x34, 0x12, 0x00}},
		{"endpoint zero", 0x00, []byte{0x09, 0x82, 0x34, 0x12, 0x00}},
		{"reserved endpoint", 0xF1, []byte{0x09, 0x82, 0x34, 0x12, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.radio.push(zdoFrame(zdo.SimpleDescReq, []byte{0x09, 0x34, 0x12, tt.ep}))
			h.step(t)

			sent := h.radio.takeSent()
			if len(sent) != 1 {
				t.Fatalf("sent %d frames, want 1", len(sent))
			}
			if sent[0].ClusterID != zdo.SimpleDescRsp {
				t.Errorf("cluster: got 0x%04X", sent[0].ClusterID)
			}
			if !bytes.Equal(sent[0].Payload, tt.want) {
				t.Errorf("payload: got %X, want %X", sent[0].Payload, tt.want)
			}
		})
	}
}

func TestReadAttributes(t *testing.T) {
	h := newHarness(t, Config{})
	h.node.state = relay.State(0).Set(0).Set(2)
	f := onOffFrame(0xC1, []byte{0x00, 0x11, 0x00, 0x00, 0x00, 0x99, 0x99})
	h.radio.push(f)
	h.step(t)

	sent := h.radio.takeSent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	want := []byte{
		0x00, 0x11, 0x01,
		0x00, 0x00, 0x00, 0x10, 0x00,
		0x99, 0x99, 0x86,
	}
	if !bytes.Equal(sent[0].Payload, want) {
		t.Errorf("payload: got %X, want %X", sent[0].Payload, want)
	}
	if sent[0].ClusterID != zcl.ClusterOnOff {
		t.Errorf("cluster: got 0x%04X, want on/off", sent[0].ClusterID)
	}
	if sent[0].SourceEndpoint != 0xC1 || sent[0].DestEndpoint != f.SourceEndpoint {
		t.Errorf("endpoints: got %d -> %d", sent[0].SourceEndpoint, sent[0].DestEndpoint)
	}
	if n := len(h.board.Ops()); n != 0 {
		t.Errorf("read wrote the board %d times", n)
	}
}

func TestDroppedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame *radio.Frame
		kind  string
	}{
		{"channel above range", onOffFrame(0xC4, []byte{0x01, 0x01, zcl.OnOffOn}), KindChannelRange},
		{"endpoint below base", onOffFrame(0x01, []byte{0x01, 0x01, zcl.OnOffOn}), KindChannelRange},
		{"truncated zcl", onOffFrame(0xC0, []byte{0x01}), KindTruncated},
		{"truncated zdo", zdoFrame(zdo.SimpleDescReq, []byte{0x01, 0x34}), KindTruncated},
		{"unknown zdo cluster", zdoFrame(0x0002, []byte{0x01, 0x00}), KindUnknownCluster},
		{"unknown command", onOffFrame(0xC0, []byte{0x01, 0x01, 0x77}), KindUnknownCommand},
		{"reserved frame type", onOffFrame(0xC0, []byte{0x03, 0x01, 0x01}), KindReservedFrame},
		{"client command", onOffFrame(0xC0, []byte{0x09, 0x01, 0x01}), KindClientCommand},
		{"other profile", &radio.Frame{ProfileID: 0xC105, DestEndpoint: 0xE8}, KindNoHandler},
		{"zdo profile off endpoint 0", &radio.Frame{ProfileID: 0, DestEndpoint: 0xC0}, KindNoHandler},
		{"device announce", zdoFrame(zdo.DeviceAnnce, []byte{
			0x01, 0x78, 0x56, 1, 2, 3, 4, 5, 6, 7, 8, 0x8E,
		}), KindNoHandler},
		{"other cluster", &radio.Frame{
			ClusterID: 0x0008, ProfileID: zcl.ProfileHomeAutomation, DestEndpoint: 0xC0,
			Payload: []byte{0x00, 0x01, 0x00, 0x00, 0x00},
		}, KindNoHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.radio.push(tt.frame)
			h.step(t)

			if d := h.lastDrop(t); d.Kind != tt.kind {
				t.Errorf("kind: got %s, want %s", d.Kind, tt.kind)
			}
			if h.node.state != 0 || len(h.board.Ops()) != 0 || len(h.radio.takeSent()) != 0 {
				t.Error("dropped frame had side effects")
			}
		})
	}
}

func TestTrailingDataStillHandled(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.push(onOffFrame(0xC3, []byte{0x01, 0x01, zcl.OnOffOn, 0xAA}))
	h.step(t)

	if !h.node.state.On(3) {
		t.Error("command with trailing data not applied")
	}
	diags := h.eventsOf(EventDiagnostic)
	if len(diags) != 1 || diags[0].Data.(Diagnostic).Kind != KindTrailingData {
		t.Errorf("diagnostics: %+v", diags)
	}
}

func TestDefaultResponseIsLogged(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.push(onOffFrame(0xC0, []byte{0x00, 0x02, 0x0B, 0x0A, 0x00}))
	h.step(t)

	if n := len(h.radio.takeSent()); n != 0 {
		t.Errorf("sent %d frames", n)
	}
	diags := h.eventsOf(EventDiagnostic)
	if len(diags) != 1 || diags[0].Data.(Diagnostic).Kind != KindDefaultResponse {
		t.Errorf("diagnostics: %+v", diags)
	}
}

func TestStart(t *testing.T) {
	h := newHarness(t, Config{AnnounceOnStart: true})
	h.node.state = 0
	if err := h.node.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if id := h.node.Identity(); id.Short != 0x1234 || id.IEEE != testIEEE {
		t.Errorf("Identity: got %+v", id)
	}
	ops := h.board.Ops()
	if len(ops) != 1 || ops[0] != (relay.Op{Command: 0x10, Mask: 0x00}) {
		t.Errorf("initial write: got %+v", ops)
	}
	sent := h.radio.takeSent()
	if len(sent) != 5 {
		t.Fatalf("sent %d frames, want 4 reports + announce", len(sent))
	}
	for i := 0; i < 4; i++ {
		if sent[i].SourceEndpoint != uint8(0xC0+i) {
			t.Errorf("report %d: endpoint %d", i, sent[i].SourceEndpoint)
		}
		if sent[i].Payload[1] != uint8(i) {
			t.Errorf("report %d: tsn %d", i, sent[i].Payload[1])
		}
	}
	annce := sent[4]
	if annce.ClusterID != zdo.DeviceAnnce || annce.DestShort != radio.ShortBroadcast {
		t.Errorf("announce: cluster 0x%04X dest 0x%04X", annce.ClusterID, annce.DestShort)
	}
	want := []byte{0x00, 0x34, 0x12, 0x74, 0x63, 0x52, 0x41, 0x00, 0xA2, 0x13, 0x00, 0x8E}
	if !bytes.Equal(annce.Payload, want) {
		t.Errorf("announce payload: got %X, want %X", annce.Payload, want)
	}
}

func TestStartUnassociated(t *testing.T) {
	h := newHarness(t, Config{AnnounceOnStart: true})
	h.radio.setAI(0x22)
	if err := h.node.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := len(h.board.Ops()); n != 1 {
		t.Errorf("initial write count: %d", n)
	}
	if n := len(h.radio.takeSent()); n != 0 {
		t.Errorf("sent %d frames while unassociated", n)
	}
	// Association is re-queried before every publish.
	if h.radio.aiCalls < 5 {
		t.Errorf("association queried %d times", h.radio.aiCalls)
	}
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.node.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.radio.takeSent()
	start := h.clock

	h.clock = start.Add(DefaultHeartbeat - time.Millisecond)
	h.step(t)
	if n := len(h.radio.takeSent()); n != 0 {
		t.Fatalf("heartbeat fired early: %d frames", n)
	}

	// The idle sleep has moved the clock past the interval.
	h.step(t)
	if n := len(h.radio.takeSent()); n != 4 {
		t.Fatalf("heartbeat reports: got %d, want 4", n)
	}

	h.step(t)
	if n := len(h.radio.takeSent()); n != 0 {
		t.Errorf("heartbeat did not reset: %d frames", n)
	}
	reports := h.eventsOf(EventReportSent)
	if r := reports[len(reports)-1].Data.(Report); r.Reason != "heartbeat" {
		t.Errorf("reason: %s", r.Reason)
	}
}

func TestInboundFrameSkipsIdle(t *testing.T) {
	h := newHarness(t, Config{})
	before := h.clock
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x01, zcl.OnOffOn}))
	h.step(t)
	if !h.clock.Equal(before) {
		t.Error("slept after handling a frame")
	}
	h.step(t)
	if h.clock.Sub(before) != DefaultIdleSleep {
		t.Errorf("idle sleep: %v", h.clock.Sub(before))
	}
}

func TestReportTSNWraps(t *testing.T) {
	h := newHarness(t, Config{})
	h.node.reportTSN = 0xFF
	h.node.publishReport(context.Background(), 0, "test")
	h.node.publishReport(context.Background(), 0, "test")

	sent := h.radio.takeSent()
	if len(sent) != 2 || sent[0].Payload[1] != 0xFF || sent[1].Payload[1] != 0x00 {
		t.Errorf("tsn sequence: %+v", sent)
	}
}

func TestSetRelay(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.node.SetRelay(1, true); err != nil {
		t.Fatalf("SetRelay: %v", err)
	}
	if h.node.state != 0 {
		t.Fatal("state changed before dispatch")
	}
	h.step(t)

	if !h.node.state.On(1) {
		t.Errorf("state: %s", h.node.state)
	}
	changes := h.eventsOf(EventRelayChanged)
	if len(changes) != 1 || changes[0].Data.(RelayChange).Source != "local" {
		t.Errorf("relay change: %+v", changes)
	}
	if n := len(h.radio.takeSent()); n != 1 {
		t.Errorf("reports: %d", n)
	}

	if err := h.node.SetRelay(4, true); !errors.Is(err, ErrChannelRange) {
		t.Errorf("out of range: got %v", err)
	}
	if err := h.node.SetRelay(-1, false); !errors.Is(err, ErrChannelRange) {
		t.Errorf("negative: got %v", err)
	}
}

func TestSetRelayQueueFull(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 0; i < localQueueSize; i++ {
		if err := h.node.SetRelay(0, true); err != nil {
			t.Fatalf("SetRelay %d: %v", i, err)
		}
	}
	if err := h.node.SetRelay(0, true); !errors.Is(err, ErrQueueFull) {
		t.Errorf("got %v, want ErrQueueFull", err)
	}
}

func TestLocalCommandNeedsAssociation(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.setAI(0x21)
	if err := h.node.SetRelay(0, true); err != nil {
		t.Fatal(err)
	}
	h.step(t)
	if h.node.state != 0 {
		t.Error("local command applied while unassociated")
	}
}

func TestDriverFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.board.FailWith(errors.New("nack"))
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x01, zcl.OnOffOn}))
	h.step(t)

	if h.node.Snapshot() != 0 {
		t.Errorf("Snapshot reflects an unwritten mask: %s", h.node.Snapshot())
	}
	var found bool
	for _, e := range h.eventsOf(EventDiagnostic) {
		if e.Data.(Diagnostic).Kind == KindDriverFailed {
			found = true
		}
	}
	if !found {
		t.Error("no driver_failed diagnostic")
	}
}

func TestTransmitFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.txErr = errors.New("serial write")
	h.node.publishReport(context.Background(), 0, "test")

	if n := len(h.eventsOf(EventReportSent)); n != 0 {
		t.Errorf("report_sent after failure: %d", n)
	}
	diags := h.eventsOf(EventDiagnostic)
	if len(diags) != 1 || diags[0].Data.(Diagnostic).Kind != KindTransmitFailed {
		t.Errorf("diagnostics: %+v", diags)
	}
}

func TestAssociationEvents(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.setAI(0xFF)
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x01, zcl.OnOffOn}))
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x02, zcl.OnOffOn}))
	h.step(t)
	h.step(t)

	h.radio.id.Short = 0x4321
	h.radio.setAI(0x00)
	h.radio.push(onOffFrame(0xC0, []byte{0x01, 0x03, zcl.OnOffOn}))
	h.step(t)

	evs := h.eventsOf(EventAssociation)
	if len(evs) != 2 {
		t.Fatalf("association events: got %d, want 2", len(evs))
	}
	if a := evs[1].Data.(Association); !a.Associated {
		t.Errorf("second event: %+v", a)
	}
	if h.node.Identity().Short != 0x4321 {
		t.Errorf("identity not refreshed on join: 0x%04X", h.node.identity.Short)
	}
}

func TestRunStops(t *testing.T) {
	h := newHarness(t, Config{})
	h.radio.Close()
	if err := h.node.Run(context.Background()); !errors.Is(err, radio.ErrClosed) {
		t.Errorf("closed transport: got %v", err)
	}

	h = newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.node.Run(ctx); err != nil {
		t.Errorf("cancelled: got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"eight relays", Config{RelayCount: 8}, false},
		{"nine relays", Config{RelayCount: 9}, true},
		{"negative", Config{RelayCount: -1}, true},
		{"endpoints past 0xF0", Config{RelayCount: 4, BaseEndpoint: 0xEE}, true},
		{"last endpoint 0xF0", Config{RelayCount: 4, BaseEndpoint: 0xED}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
