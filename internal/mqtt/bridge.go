//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-relay/internal/node"
	"zigbee-relay/internal/relay"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// RelayNode is the part of the dispatcher the bridge drives.
type RelayNode interface {
	Events() *node.EventBus
	SetRelay(ch int, on bool) error
	Snapshot() relay.State
	Config() node.Config
}

// Bridge mirrors relay state to MQTT with HA autodiscovery and accepts
// ON/OFF commands per channel.
type Bridge struct {
	client pahomqtt.Client
	node   RelayNode
	prefix string
	nodeID string
	logger *slog.Logger
	unsub  func()
}

// NewBridge creates and connects an MQTT bridge. deviceID identifies the
// node in HA discovery, usually its IEEE address.
func NewBridge(n RelayNode, deviceID string, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(nil, n, deviceID, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("zigbee-relay-" + b.nodeID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(client pahomqtt.Client, n RelayNode, deviceID string, cfg Config, logger *slog.Logger) *Bridge {
	return &Bridge{
		client: client,
		node:   n,
		prefix: cfg.TopicPrefix,
		nodeID: sanitizeID(deviceID),
		logger: logger.With("component", "mqtt"),
	}
}

// Start subscribes to dispatcher events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.node.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	cfg := b.node.Config()
	for _, msg := range buildDiscovery(b.nodeID, b.prefix, cfg.RelayCount, cfg.BaseEndpoint) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	for _, msg := range buildRemoveDiscovery(b.nodeID, cfg.RelayCount, relay.MaxChannels) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.publishAllStates()
	b.subscribeCommands()
}

func (b *Bridge) handleEvent(event node.Event) {
	switch event.Type {
	case node.EventRelayChanged:
		rc, ok := event.Data.(node.RelayChange)
		if !ok {
			return
		}
		b.publishState(rc.Channel, rc.On)
	case node.EventReportSent:
		// Command reports follow a relay_changed event that already published.
		r, ok := event.Data.(node.Report)
		if !ok || r.Reason == "command" {
			return
		}
		b.publishState(r.Channel, r.On)
	case node.EventAssociation:
		a, ok := event.Data.(node.Association)
		if !ok {
			return
		}
		b.publish(b.prefix+"/bridge/association", []byte(strconv.FormatBool(a.Associated)), true)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAllStates() {
	s := b.node.Snapshot()
	for ch := 0; ch < b.node.Config().RelayCount; ch++ {
		b.publishState(ch, s.On(ch))
	}
}

func (b *Bridge) publishState(ch int, on bool) {
	b.publish(stateTopic(b.prefix, ch), statePayload(on), true)
}

func (b *Bridge) subscribeCommands() {
	topic := b.prefix + "/relay/+/set"
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	ch, ok := commandChannel(b.prefix, topic)
	if !ok {
		b.logger.Warn("command on unexpected topic", "topic", topic)
		return
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		b.logger.Warn("invalid relay command", "topic", topic, "err", err)
		return
	}

	var on bool
	switch cmd {
	case "ON":
		on = true
	case "OFF":
		on = false
	case "TOGGLE":
		on = !b.node.Snapshot().On(ch)
	}
	if err := b.node.SetRelay(ch, on); err != nil {
		b.logger.Warn("relay command rejected", "channel", ch, "err", err)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func stateTopic(prefix string, ch int) string {
	return fmt.Sprintf("%s/relay/%d", prefix, ch)
}

func statePayload(on bool) []byte {
	if on {
		return []byte("ON")
	}
	return []byte("OFF")
}

// commandChannel extracts the channel from "<prefix>/relay/<n>/set".
func commandChannel(prefix, topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/relay/")
	if !ok {
		return 0, false
	}
	n, ok := strings.CutSuffix(rest, "/set")
	if !ok {
		return 0, false
	}
	ch, err := strconv.Atoi(n)
	if err != nil || ch < 0 {
		return 0, false
	}
	return ch, true
}

// parseCommand accepts a bare ON/OFF/TOGGLE payload or {"state": "..."}.
func parseCommand(payload []byte) (string, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var cmd struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return "", fmt.Errorf("invalid command JSON: %w", err)
		}
		s = cmd.State
	}
	switch u := strings.ToUpper(s); u {
	case "ON", "OFF", "TOGGLE":
		return u, nil
	}
	return "", fmt.Errorf("unknown state %q", s)
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
