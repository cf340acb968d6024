//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"zigbee-bridge/internal/codec"
)

// Cluster ids that make an endpoint a dimmable light.
const (
	clusterOnOff        = 0x0006
	clusterLevelControl = 0x0008
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/zigbee_00158d.../ep1/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

// haLight is an HA light discovery payload using the JSON schema.
type haLight struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	Schema            string   `json:"schema"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	Brightness        bool     `json:"brightness"`
	BrightnessScale   int      `json:"brightness_scale"`
	Device            haDevice `json:"device"`
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(eui64 string) string {
	return "zigbee_" + strings.ToLower(eui64)
}

// lightTopic is the base topic of one endpoint's light entity.
func lightTopic(prefix, eui64 string, endpointID int32) string {
	return fmt.Sprintf("%s/device/%s/%d", prefix, strings.ToLower(eui64), endpointID)
}

func hasServerCluster(ep codec.EndpointDoc, cluster int16) bool {
	for _, c := range ep.ServerCluster {
		if c == cluster {
			return true
		}
	}
	return false
}

// lightEndpoints returns the endpoints serving both on/off and level control.
func lightEndpoints(dev codec.DeviceDoc) []codec.EndpointDoc {
	var out []codec.EndpointDoc
	for _, ep := range dev.Endpoints {
		if hasServerCluster(ep, clusterOnOff) && hasServerCluster(ep, clusterLevelControl) {
			out = append(out, ep)
		}
	}
	return out
}

func discoveryTopic(eui64 string, endpointID int32) string {
	return fmt.Sprintf("homeassistant/light/%s/ep%d/config", deviceIdentifier(eui64), endpointID)
}

// buildDiscovery creates HA light entities for every level-capable endpoint.
func buildDiscovery(dev codec.DeviceDoc, prefix string) []discoveryMsg {
	var msgs []discoveryMsg
	for _, ep := range lightEndpoints(dev) {
		base := lightTopic(prefix, dev.EUI64, ep.EndpointID)
		cfg := haLight{
			Name:              fmt.Sprintf("%s ep%d", dev.EUI64, ep.EndpointID),
			UniqueID:          fmt.Sprintf("%s_ep%d_light", deviceIdentifier(dev.EUI64), ep.EndpointID),
			Schema:            "json",
			StateTopic:        base + "/state",
			CommandTopic:      base + "/set",
			AvailabilityTopic: prefix + "/bridge/state",
			Brightness:        true,
			BrightnessScale:   254,
			Device: haDevice{
				Identifiers: []string{deviceIdentifier(dev.EUI64)},
				Name:        dev.EUI64,
			},
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			continue
		}
		msgs = append(msgs, discoveryMsg{Topic: discoveryTopic(dev.EUI64, ep.EndpointID), Payload: payload})
	}
	return msgs
}

// buildRemoveDiscovery creates empty payloads that delete the entities.
func buildRemoveDiscovery(dev codec.DeviceDoc) []discoveryMsg {
	var msgs []discoveryMsg
	for _, ep := range lightEndpoints(dev) {
		msgs = append(msgs, discoveryMsg{Topic: discoveryTopic(dev.EUI64, ep.EndpointID)})
	}
	return msgs
}

// haCommand is the JSON-schema light command sent by HA.
type haCommand struct {
	State      string `json:"state"`
	Brightness *int   `json:"brightness"`
}

// haState is published back on the entity's state topic.
type haState struct {
	State      string `json:"state"`
	Brightness int    `json:"brightness,omitempty"`
}

const haTransition = 5 // tenths of a second

// levelDocument translates an HA light command into a level control
// document. Brightness wins over state; OFF moves to level 0 with auto
// on/off so the light switches off at the end of the transition.
func levelDocument(cmd haCommand) (codec.Document, haState, error) {
	if cmd.Brightness != nil {
		level := *cmd.Brightness
		if level < 0 {
			level = 0
		}
		if level > 254 {
			level = 254
		}
		doc := codec.Document{"type": codec.LevelTypeMoveTo, "value": level, "transition_time": haTransition, "auto_onoff": true}
		st := haState{State: "ON", Brightness: level}
		if level == 0 {
			st = haState{State: "OFF"}
		}
		return doc, st, nil
	}
	switch strings.ToUpper(cmd.State) {
	case "ON":
		doc := codec.Document{"type": codec.LevelTypeMoveTo, "value": 254, "transition_time": haTransition, "auto_onoff": true}
		return doc, haState{State: "ON", Brightness: 254}, nil
	case "OFF":
		doc := codec.Document{"type": codec.LevelTypeMoveTo, "value": 0, "transition_time": haTransition, "auto_onoff": true}
		return doc, haState{State: "OFF"}, nil
	default:
		return nil, haState{}, fmt.Errorf("%w: unsupported light command %q", codec.ErrInvalidInput, cmd.State)
	}
}
