// Package node is the relay node's dispatcher: it polls the radio, decodes
// discovery and application frames, drives the relay bank and publishes the
// relay state back onto the network.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"zigbee-relay/internal/radio"
	"zigbee-relay/internal/relay"
	"zigbee-relay/internal/zcl"
)

var (
	ErrNotAssociated = errors.New("node: not associated")
	ErrChannelRange  = errors.New("node: relay channel out of range")
	ErrQueueFull     = errors.New("node: local command queue full")
)

// Defaults for Config fields left zero.
const (
	DefaultHeartbeat    = 300000 * time.Millisecond
	DefaultIdleSleep    = 100 * time.Millisecond
	DefaultBaseEndpoint = 0xC0
	DefaultRelayCount   = 4
	DefaultRelayCommand = 0x10
	DefaultCapability   = 0x8E

	localQueueSize = 16
)

// Config holds dispatcher configuration.
type Config struct {
	RelayCount      int
	BaseEndpoint    uint8
	RelayCommand    byte
	Heartbeat       time.Duration
	IdleSleep       time.Duration
	AnnounceOnStart bool
	Capability      uint8
}

func (c *Config) applyDefaults() {
	if c.RelayCount == 0 {
		c.RelayCount = DefaultRelayCount
	}
	if c.BaseEndpoint == 0 {
		c.BaseEndpoint = DefaultBaseEndpoint
	}
	if c.RelayCommand == 0 {
		c.RelayCommand = DefaultRelayCommand
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = DefaultIdleSleep
	}
	if c.Capability == 0 {
		c.Capability = DefaultCapability
	}
}

// Validate checks the relay bank fits the mask byte and the endpoint range.
func (c Config) Validate() error {
	if c.RelayCount < 1 || c.RelayCount > relay.MaxChannels {
		return fmt.Errorf("relay count %d: must be 1..%d", c.RelayCount, relay.MaxChannels)
	}
	if c.BaseEndpoint == 0 || int(c.BaseEndpoint)+c.RelayCount-1 > 0xF0 {
		return fmt.Errorf("relay endpoints 0x%02X..0x%02X: must lie within 0x01..0xF0",
			c.BaseEndpoint, int(c.BaseEndpoint)+c.RelayCount-1)
	}
	return nil
}

// Endpoint returns the endpoint serving relay channel ch.
func (c Config) Endpoint(ch int) uint8 { return c.BaseEndpoint + uint8(ch) }

// channel maps an endpoint to its relay channel.
func (c Config) channel(ep uint8) (int, bool) {
	if ep < c.BaseEndpoint {
		return 0, false
	}
	ch := int(ep - c.BaseEndpoint)
	return ch, ch < c.RelayCount
}

// Node dispatches inbound frames and owns the relay state. Everything except
// Inject, SetRelay, Snapshot and Events runs on the goroutine calling Run.
type Node struct {
	radio  radio.Transport
	driver relay.Driver
	events *EventBus
	logger *slog.Logger
	cfg    Config

	state         relay.State
	identity      radio.Identity
	reportTSN     uint8
	zdoTSN        uint8
	lastHeartbeat time.Time
	lastAI        int // -1 until the first association query

	local     chan *radio.Frame
	localTSN  atomic.Uint32
	published atomic.Uint32
	ident     atomic.Pointer[radio.Identity]

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a dispatcher. Config fields left zero take their defaults.
func New(transport radio.Transport, driver relay.Driver, events *EventBus, cfg Config, logger *slog.Logger) (*Node, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Node{
		radio:  transport,
		driver: driver,
		events: events,
		logger: logger,
		cfg:    cfg,
		lastAI: -1,
		local:  make(chan *radio.Frame, localQueueSize),
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Config returns the effective configuration.
func (n *Node) Config() Config { return n.cfg }

// Events returns the event bus.
func (n *Node) Events() *EventBus { return n.events }

// Snapshot returns the relay mask last written to the board. Safe for
// concurrent use.
func (n *Node) Snapshot() relay.State {
	return relay.State(n.published.Load())
}

// Identity returns the node's addresses as last queried from the radio. Safe
// for concurrent use.
func (n *Node) Identity() radio.Identity {
	if id := n.ident.Load(); id != nil {
		return *id
	}
	return radio.Identity{}
}

func (n *Node) setIdentity(id radio.Identity) {
	n.identity = id
	n.ident.Store(&id)
}

// Start queries the node's identity, writes the initial relay mask, publishes
// one report per channel and optionally announces the device.
func (n *Node) Start(ctx context.Context) error {
	id, err := n.radio.Identity(ctx)
	if err != nil {
		return fmt.Errorf("query identity: %w", err)
	}
	n.setIdentity(id)
	n.logger.Info("node identity", "ieee", id.IEEE.String(), "short", fmt.Sprintf("0x%04X", id.Short))

	n.writeRelays()
	n.publishAll(ctx, "startup")
	n.lastHeartbeat = n.now()

	if n.cfg.AnnounceOnStart {
		n.announce(ctx)
	}
	return nil
}

// Run polls until ctx is cancelled or the transport closes.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("dispatcher running",
		"relays", n.cfg.RelayCount,
		"base_endpoint", fmt.Sprintf("0x%02X", n.cfg.BaseEndpoint),
		"heartbeat", n.cfg.Heartbeat)
	for {
		if err := n.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Step performs one loop iteration: handle one pending frame, or run the
// heartbeat check and sleep for the idle interval.
func (n *Node) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, source, err := n.next(ctx)
	if err != nil {
		return err
	}
	if f != nil {
		n.handle(ctx, f, source)
		return nil
	}

	if now := n.now(); now.Sub(n.lastHeartbeat) >= n.cfg.Heartbeat {
		n.lastHeartbeat = now
		n.logger.Debug("heartbeat")
		n.publishAll(ctx, "heartbeat")
	}
	n.sleep(ctx, n.cfg.IdleSleep)
	return nil
}

// next returns a locally injected frame if one is queued, else a radio frame.
func (n *Node) next(ctx context.Context) (*radio.Frame, string, error) {
	select {
	case f := <-n.local:
		return f, "local", nil
	default:
	}

	f, err := n.radio.Receive(ctx)
	if err != nil {
		if errors.Is(err, radio.ErrClosed) || ctx.Err() != nil {
			return nil, "", err
		}
		n.logger.Warn("radio receive failed", "err", err)
		return nil, "", nil
	}
	return f, "radio", nil
}

// Inject queues a frame for dispatch as if it had been received.
func (n *Node) Inject(f *radio.Frame) error {
	select {
	case n.local <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// SetRelay queues an on/off cluster command for channel ch. The state changes
// once the dispatcher handles it.
func (n *Node) SetRelay(ch int, on bool) error {
	if ch < 0 || ch >= n.cfg.RelayCount {
		return fmt.Errorf("%w: %d", ErrChannelRange, ch)
	}
	cmd := zcl.OnOffOff
	if on {
		cmd = zcl.OnOffOn
	}
	payload, err := zcl.EncodeFrame(zcl.ClusterOnOff, zcl.Header{
		Control:   zcl.ForRequest(zcl.FrameTypeCluster).WithDisableDefaultResponse(true),
		TSN:       uint8(n.localTSN.Add(1)),
		CommandID: cmd,
	})
	if err != nil {
		return err
	}
	ep := n.cfg.Endpoint(ch)
	return n.Inject(&radio.Frame{
		SenderShort:    radio.ShortCoordinator,
		SourceEndpoint: ep,
		DestEndpoint:   ep,
		ClusterID:      zcl.ClusterOnOff,
		ProfileID:      zcl.ProfileHomeAutomation,
		Payload:        payload,
	})
}
