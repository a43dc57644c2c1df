//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/switch/zigbee_relay_0013a20041526374/relay_0/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a HA switch discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	StateOn           string   `json:"state_on,omitempty"`
	StateOff          string   `json:"state_off,omitempty"`
	Device            haDevice `json:"device"`
}

// sanitizeID keeps only characters HA accepts in object ids.
func sanitizeID(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, s)
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(nodeID string) string {
	return "zigbee_relay_" + nodeID
}

// buildDiscovery generates one HA switch per relay channel.
func buildDiscovery(nodeID, prefix string, count int, baseEndpoint uint8) []discoveryMsg {
	devID := deviceIdentifier(nodeID)
	haDev := haDevice{
		Identifiers:  []string{devID},
		Manufacturer: "zigbee-relay",
		Model:        fmt.Sprintf("%d-channel relay", count),
		Name:         "Zigbee Relay " + nodeID,
	}
	avail := prefix + "/bridge/state"

	msgs := make([]discoveryMsg, 0, count)
	for ch := 0; ch < count; ch++ {
		objectID := fmt.Sprintf("relay_%d", ch)
		payload := haDiscovery{
			Name:              fmt.Sprintf("Relay %d (ep 0x%02X)", ch, int(baseEndpoint)+ch),
			UniqueID:          devID + "_" + objectID,
			StateTopic:        stateTopic(prefix, ch),
			CommandTopic:      stateTopic(prefix, ch) + "/set",
			AvailabilityTopic: avail,
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			StateOn:           "ON",
			StateOff:          "OFF",
			Device:            haDev,
		}
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/switch/%s/%s/config", devID, objectID),
			Payload: mustJSON(payload),
		})
	}
	return msgs
}

// buildRemoveDiscovery generates empty retained messages removing channels
// from..to-1 from HA, e.g. after the relay count was lowered.
func buildRemoveDiscovery(nodeID string, from, to int) []discoveryMsg {
	devID := deviceIdentifier(nodeID)
	var msgs []discoveryMsg
	for ch := from; ch < to; ch++ {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/switch/%s/relay_%d/config", devID, ch),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
