//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/dispatch"
	"zigbee-bridge/internal/ncp"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeClient records publishes and routes injected messages to subscribers.
type fakeClient struct {
	pahomqtt.Client

	mu           sync.Mutex
	published    []published
	subs         map[string]pahomqtt.MessageHandler
	unsubscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]pahomqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, payload: payload.([]byte), retained: retained})
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = cb
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {}

// deliver hands a message to the handler subscribed with filter.
func (c *fakeClient) deliver(t *testing.T, filter, topic string, payload []byte) {
	t.Helper()
	c.mu.Lock()
	cb, ok := c.subs[filter]
	c.mu.Unlock()
	require.True(t, ok, "no subscription for %s", filter)
	cb(c, message{topic: topic, payload: payload})
}

func (c *fakeClient) find(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type levelCall struct {
	node, ep int32
	doc      codec.Document
}

type fakeCommander struct {
	mu      sync.Mutex
	levels  []levelCall
	devices []codec.DeviceDoc
	err     error
}

func (f *fakeCommander) LevelControl(_ context.Context, node, ep int32, doc codec.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := codec.DecodeLevelControl(doc); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.levels = append(f.levels, levelCall{node, ep, doc})
	return nil
}

func (f *fakeCommander) RegisterEndpoint(_ context.Context, doc codec.Document) (codec.EndpointDoc, error) {
	ep, err := codec.DecodeEndpoint(doc)
	if err != nil {
		return codec.EndpointDoc{}, err
	}
	return codec.EncodeEndpoint(ep), f.err
}

func (f *fakeCommander) Devices() ([]codec.DeviceDoc, error) {
	return f.devices, nil
}

func newTestBridge(t *testing.T, cmd Commander, format codec.Format) (*Bridge, *fakeClient) {
	t.Helper()
	b := newBridge(cmd, Config{TopicPrefix: "zb", Encoding: format}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := newFakeClient()
	b.client = client
	t.Cleanup(b.cancel)
	return b, client
}

func lightDevice() codec.DeviceDoc {
	ep := ncp.NewEndpoint(0x4a11, 1)
	ep.ServerClusters[0] = clusterOnOff
	ep.ServerClusters[1] = clusterLevelControl
	return codec.EncodeDevice(ncp.Device{
		EUI64:     [8]byte{0x00, 0x17, 0x88, 0x01, 0x02, 0x03, 0x04, 0x05},
		NodeID:    0x4a11,
		Endpoints: []ncp.Endpoint{ep, ncp.NewEndpoint(0x4a11, 2)},
	})
}

func TestEnvelopePublishedPerType(t *testing.T) {
	b, client := newTestBridge(t, &fakeCommander{}, codec.FormatJSON)
	bus := dispatch.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.Start(bus)

	bus.Publish(codec.StatusEnvelope{Header: codec.Header{Kind: codec.TypeNetworkNotification}, Status: "network_up"})

	msgs := client.find("zb/event/network_notification")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].retained)
	assert.JSONEq(t, `{"type":"network_notification","status":"network_up"}`, string(msgs[0].payload))
}

func TestEnvelopeCBOR(t *testing.T) {
	b, client := newTestBridge(t, &fakeCommander{}, codec.FormatCBOR)
	b.handleEnvelope(codec.UnknownEnvelope{Header: codec.Header{Kind: codec.TypeUnknown}, TypeID: 77})

	msgs := client.find("zb/event/unknown")
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, cbor.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, "unknown", got["type"])
	assert.EqualValues(t, 77, got["type_id"])
}

func TestLevelCommandRoundTrip(t *testing.T) {
	cmd := &fakeCommander{}
	b, client := newTestBridge(t, cmd, codec.FormatJSON)
	b.subscribeCommands()

	client.deliver(t, "zb/command/level_control/+/+", "zb/command/level_control/0x4a11/1",
		[]byte(`{"id":"req-1","type":"moveto","value":128,"transition_time":10}`))

	require.Len(t, cmd.levels, 1)
	assert.Equal(t, int32(0x4a11), cmd.levels[0].node)
	assert.Equal(t, int32(1), cmd.levels[0].ep)

	results := client.find("zb/command/result")
	require.Len(t, results, 1)
	assert.JSONEq(t, `{"id":"req-1","command":"level_control","status":"ok"}`, string(results[0].payload))
}

func TestLevelCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		err     error
		code    int32
	}{
		{"bad node id", "zb/command/level_control/node/1", `{"type":"stop"}`, nil, int32(ncp.CodeBadArgs)},
		{"invalid document", "zb/command/level_control/1/1", `{"type":"spin"}`, nil, int32(ncp.CodeBadArgs)},
		{"not json", "zb/command/level_control/1/1", `{`, nil, int32(ncp.CodeBadArgs)},
		{"daemon failure", "zb/command/level_control/1/1", `{"type":"stop"}`,
			&control.CommandError{Doc: codec.TranslateError(ncp.CodeNoResponse)}, int32(ncp.CodeNoResponse)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, client := newTestBridge(t, &fakeCommander{err: tt.err}, codec.FormatJSON)
			b.subscribeCommands()
			client.deliver(t, "zb/command/level_control/+/+", tt.topic, []byte(tt.payload))

			results := client.find("zb/command/result")
			require.Len(t, results, 1)
			var res CommandResult
			require.NoError(t, json.Unmarshal(results[0].payload, &res))
			assert.Equal(t, "error", res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.NotEmpty(t, res.ID)
		})
	}
}

func TestEndpointCommand(t *testing.T) {
	b, client := newTestBridge(t, &fakeCommander{}, codec.FormatJSON)
	b.subscribeCommands()

	client.deliver(t, "zb/command/endpoint", "zb/command/endpoint",
		[]byte(`{"id":"e1","node_id":0,"endpoint_id":5,"server_cluster":[6,8]}`))

	results := client.find("zb/command/result")
	require.Len(t, results, 1)
	var res CommandResult
	require.NoError(t, json.Unmarshal(results[0].payload, &res))
	assert.Equal(t, "ok", res.Status)
	require.NotNil(t, res.Endpoint)
	assert.Equal(t, int32(5), res.Endpoint.EndpointID)
	assert.Equal(t, int16(8), res.Endpoint.ServerCluster[1])
}

func TestDiscoveryOnFoundAndLost(t *testing.T) {
	cmd := &fakeCommander{}
	b, client := newTestBridge(t, cmd, codec.FormatJSON)
	dev := lightDevice()

	b.handleEnvelope(codec.DeviceDiscoverEnvelope{Header: codec.Header{Kind: codec.TypeDeviceDiscover}, Status: codec.DiscoveryFound, Device: dev})

	cfgTopic := "homeassistant/light/zigbee_0017880102030405/ep1/config"
	msgs := client.find(cfgTopic)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)
	var cfg haLight
	require.NoError(t, json.Unmarshal(msgs[0].payload, &cfg))
	assert.Equal(t, "zb/device/0017880102030405/1/set", cfg.CommandTopic)
	assert.Equal(t, "zb/bridge/state", cfg.AvailabilityTopic)
	assert.Empty(t, client.find("homeassistant/light/zigbee_0017880102030405/ep2/config"))

	// HA turns the light on at half brightness.
	client.deliver(t, "zb/device/0017880102030405/1/set", "zb/device/0017880102030405/1/set",
		[]byte(`{"state":"ON","brightness":127}`))
	require.Len(t, cmd.levels, 1)
	assert.Equal(t, int32(0x4a11), cmd.levels[0].node)
	level, err := codec.DecodeLevelControl(cmd.levels[0].doc)
	require.NoError(t, err)
	assert.Equal(t, ncp.LevelControlCommand{Kind: ncp.LevelMoveToOnOff, Value: 127, TransitionTime: 5}, level)

	state := client.find("zb/device/0017880102030405/1/state")
	require.Len(t, state, 1)
	assert.JSONEq(t, `{"state":"ON","brightness":127}`, string(state[0].payload))

	b.handleEnvelope(codec.DeviceDiscoverEnvelope{Header: codec.Header{Kind: codec.TypeDeviceDiscover}, Status: codec.DiscoveryLost, Device: dev})
	msgs = client.find(cfgTopic)
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[1].payload)
	assert.Equal(t, []string{"zb/device/0017880102030405/1/set"}, client.unsubscribed)
}

func TestLightFollowsRejoin(t *testing.T) {
	discover := func(status string, dev codec.DeviceDoc) codec.Envelope {
		return codec.DeviceDiscoverEnvelope{Header: codec.Header{Kind: codec.TypeDeviceDiscover}, Status: status, Device: dev}
	}
	const setTopic = "zb/device/0017880102030405/1/set"

	t.Run("changed", func(t *testing.T) {
		cmd := &fakeCommander{}
		b, client := newTestBridge(t, cmd, codec.FormatJSON)
		dev := lightDevice()
		b.handleEnvelope(discover(codec.DiscoveryFound, dev))

		dev.NodeID = 0x7777
		b.handleEnvelope(discover(codec.DiscoveryChanged, dev))
		client.deliver(t, setTopic, setTopic, []byte(`{"state":"ON","brightness":10}`))

		require.Len(t, cmd.levels, 1)
		assert.Equal(t, int32(0x7777), cmd.levels[0].node)
		assert.Equal(t, int32(1), cmd.levels[0].ep)
	})

	t.Run("announce", func(t *testing.T) {
		cmd := &fakeCommander{}
		b, client := newTestBridge(t, cmd, codec.FormatJSON)
		dev := lightDevice()
		b.handleEnvelope(discover(codec.DiscoveryFound, dev))

		b.handleEnvelope(codec.DeviceAnnounceEnvelope{
			Header: codec.Header{Kind: codec.TypeDeviceAnnounce},
			EUI64:  dev.EUI64,
			NodeID: 0x1234,
		})
		client.deliver(t, setTopic, setTopic, []byte(`{"state":"OFF"}`))

		require.Len(t, cmd.levels, 1)
		assert.Equal(t, int32(0x1234), cmd.levels[0].node)
	})

	t.Run("lost", func(t *testing.T) {
		cmd := &fakeCommander{}
		b, _ := newTestBridge(t, cmd, codec.FormatJSON)
		dev := lightDevice()
		b.handleEnvelope(discover(codec.DiscoveryFound, dev))
		b.handleEnvelope(discover(codec.DiscoveryLost, dev))

		b.handleLightCommand(dev.EUI64, 1, []byte(`{"state":"ON"}`))
		assert.Empty(t, cmd.levels)
	})
}

func TestOnConnectRepublishes(t *testing.T) {
	cmd := &fakeCommander{devices: []codec.DeviceDoc{lightDevice()}}
	b, client := newTestBridge(t, cmd, codec.FormatJSON)

	b.onConnect()
	b.onConnect()

	state := client.find("zb/bridge/state")
	require.Len(t, state, 2)
	assert.Equal(t, "online", string(state[0].payload))
	assert.True(t, state[0].retained)
	assert.Len(t, client.find("homeassistant/light/zigbee_0017880102030405/ep1/config"), 2)

	client.mu.Lock()
	_, ok := client.subs["zb/device/0017880102030405/1/set"]
	client.mu.Unlock()
	assert.True(t, ok)
}

func TestLevelDocument(t *testing.T) {
	intp := func(v int) *int { return &v }
	tests := []struct {
		name  string
		cmd   haCommand
		value int32
		state haState
		err   bool
	}{
		{"on", haCommand{State: "ON"}, 254, haState{State: "ON", Brightness: 254}, false},
		{"off", haCommand{State: "off"}, 0, haState{State: "OFF"}, false},
		{"brightness", haCommand{State: "ON", Brightness: intp(40)}, 40, haState{State: "ON", Brightness: 40}, false},
		{"brightness clamp", haCommand{Brightness: intp(300)}, 254, haState{State: "ON", Brightness: 254}, false},
		{"brightness zero", haCommand{Brightness: intp(0)}, 0, haState{State: "OFF"}, false},
		{"toggle unsupported", haCommand{State: "TOGGLE"}, 0, haState{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, st, err := levelDocument(tt.cmd)
			if tt.err {
				assert.ErrorIs(t, err, codec.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.state, st)
			cmd, err := codec.DecodeLevelControl(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.value, cmd.Value)
			assert.True(t, cmd.Kind.AutoOnOff())
		})
	}
}
