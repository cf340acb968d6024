//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/dispatch"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	Encoding    codec.Format
}

// Commander is the command path the bridge drives.
type Commander interface {
	LevelControl(ctx context.Context, nodeID, endpointID int32, doc codec.Document) error
	RegisterEndpoint(ctx context.Context, doc codec.Document) (codec.EndpointDoc, error)
	Devices() ([]codec.DeviceDoc, error)
}

// CommandResult is published on <prefix>/command/result after every command.
type CommandResult struct {
	ID       string               `json:"id"`
	Command  string               `json:"command"`
	Status   string               `json:"status"`
	Error    *codec.ErrorDocument `json:"error,omitempty"`
	Endpoint *codec.EndpointDoc   `json:"endpoint,omitempty"`
}

// Bridge publishes envelopes to MQTT and accepts commands from it.
type Bridge struct {
	client pahomqtt.Client
	cmd    Commander
	prefix string
	format codec.Format
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc

	// Light entities subscribed per EUI64.
	mu     sync.Mutex
	lights map[string]*lightEntity
}

// lightEntity tracks the current short address of a device whose light
// endpoints are subscribed. The node id changes when the device rejoins.
type lightEntity struct {
	nodeID int32
	topics []string
}

func newBridge(cmd Commander, cfg Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	format := cfg.Encoding
	if format == "" {
		format = codec.FormatJSON
	}
	return &Bridge{
		cmd:    cmd,
		prefix: cfg.TopicPrefix,
		format: format,
		logger: logger.With("component", "mqtt"),
		ctx:    ctx,
		cancel: cancel,
		lights: make(map[string]*lightEntity),
	}
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(cmd Commander, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(cmd, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("zigbee-bridge-" + uuid.NewString()[:8]).
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

	// Set before connecting: the on-connect handler publishes through it.
	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to the envelope bus and begins MQTT publishing.
func (b *Bridge) Start(bus *dispatch.Bus) {
	b.unsub = bus.OnAll(b.handleEnvelope)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix, "encoding", b.format)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs on every (re)connect: subscriptions do not survive a
// clean session.
func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	b.subscribeCommands()

	devices, err := b.cmd.Devices()
	if err != nil {
		b.logger.Error("list devices for discovery", "err", err)
		return
	}
	b.mu.Lock()
	b.lights = make(map[string]*lightEntity)
	b.mu.Unlock()
	for _, dev := range devices {
		b.publishDeviceDiscovery(dev)
	}
}

func (b *Bridge) handleEnvelope(env codec.Envelope) {
	payload, err := codec.Marshal(env, b.format)
	if err != nil {
		b.logger.Error("encode envelope", "type", env.Type(), "err", err)
		return
	}
	b.publish(b.prefix+"/event/"+env.Type(), payload, false)

	switch e := env.(type) {
	case codec.DeviceDiscoverEnvelope:
		switch e.Status {
		case codec.DiscoveryFound, codec.DiscoveryChanged:
			b.publishDeviceDiscovery(e.Device)
		case codec.DiscoveryLost:
			b.removeDeviceDiscovery(e.Device)
		}
	case codec.DeviceAnnounceEnvelope:
		b.updateLightNode(e.EUI64, int32(e.NodeID))
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishDeviceDiscovery(dev codec.DeviceDoc) {
	msgs := buildDiscovery(dev, b.prefix)
	if len(msgs) == 0 {
		return
	}
	for _, msg := range msgs {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.subscribeLights(dev)
	b.logger.Info("published HA discovery", "eui64", dev.EUI64, "lights", len(msgs))
}

func (b *Bridge) removeDeviceDiscovery(dev codec.DeviceDoc) {
	for _, msg := range buildRemoveDiscovery(dev) {
		b.publish(msg.Topic, msg.Payload, true)
	}

	b.mu.Lock()
	var topics []string
	if ent, ok := b.lights[dev.EUI64]; ok {
		topics = ent.topics
		delete(b.lights, dev.EUI64)
	}
	b.mu.Unlock()
	if len(topics) > 0 {
		b.client.Unsubscribe(topics...)
	}
}

func (b *Bridge) subscribeCommands() {
	b.client.Subscribe(b.prefix+"/command/level_control/+/+", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleLevelCommand(msg.Topic(), msg.Payload())
	})
	b.client.Subscribe(b.prefix+"/command/endpoint", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleEndpointCommand(msg.Payload())
	})
}

func (b *Bridge) subscribeLights(dev codec.DeviceDoc) {
	b.mu.Lock()
	ent, ok := b.lights[dev.EUI64]
	if !ok {
		ent = &lightEntity{}
		b.lights[dev.EUI64] = ent
	}
	ent.nodeID = dev.NodeID
	subscribed := make(map[string]bool, len(ent.topics))
	for _, topic := range ent.topics {
		subscribed[topic] = true
	}
	b.mu.Unlock()

	var added []string
	for _, ep := range lightEndpoints(dev) {
		topic := lightTopic(b.prefix, dev.EUI64, ep.EndpointID) + "/set"
		if subscribed[topic] {
			continue
		}
		eui, endpointID := dev.EUI64, ep.EndpointID
		b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			b.handleLightCommand(eui, endpointID, msg.Payload())
		})
		added = append(added, topic)
	}

	b.mu.Lock()
	ent.topics = append(ent.topics, added...)
	b.mu.Unlock()
}

// updateLightNode records a new short address for a known light device.
func (b *Bridge) updateLightNode(eui string, nodeID int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ent, ok := b.lights[eui]; ok && ent.nodeID != nodeID {
		b.logger.Info("light node id changed", "eui64", eui, "old", ent.nodeID, "new", nodeID)
		ent.nodeID = nodeID
	}
}

func (b *Bridge) lightNode(eui string) (int32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.lights[eui]
	if !ok {
		return 0, false
	}
	return ent.nodeID, true
}

// parseID accepts decimal or 0x-prefixed hex.
func parseID(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id %q", codec.ErrInvalidInput, s)
	}
	return int32(n), nil
}

// requestID returns the caller's "id" field, or a fresh one.
func requestID(doc codec.Document) string {
	if id, ok := doc.String("id"); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (b *Bridge) handleLevelCommand(topic string, payload []byte) {
	const command = "level_control"
	result := CommandResult{Command: command}

	// <prefix>/command/level_control/<node>/<ep>
	parts := strings.Split(strings.TrimPrefix(topic, b.prefix+"/command/level_control/"), "/")
	doc, err := codec.UnmarshalDocument(payload, b.format)
	if err == nil && len(parts) != 2 {
		err = fmt.Errorf("%w: topic %q", codec.ErrInvalidInput, topic)
	}
	var nodeID, endpointID int32
	if err == nil {
		nodeID, err = parseID(parts[0])
	}
	if err == nil {
		endpointID, err = parseID(parts[1])
	}
	result.ID = requestID(doc)

	if err == nil {
		ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
		err = b.cmd.LevelControl(ctx, nodeID, endpointID, doc)
		cancel()
	}
	b.publishResult(result, err)
}

func (b *Bridge) handleEndpointCommand(payload []byte) {
	result := CommandResult{Command: "register_endpoint"}

	doc, err := codec.UnmarshalDocument(payload, b.format)
	result.ID = requestID(doc)
	if err == nil {
		ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
		var ep codec.EndpointDoc
		ep, err = b.cmd.RegisterEndpoint(ctx, doc)
		cancel()
		if err == nil {
			result.Endpoint = &ep
		}
	}
	b.publishResult(result, err)
}

func (b *Bridge) handleLightCommand(eui string, endpointID int32, payload []byte) {
	nodeID, ok := b.lightNode(eui)
	if !ok {
		b.logger.Warn("light command for unknown device", "eui64", eui)
		return
	}
	var cmd haCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid light command JSON", "eui64", eui, "err", err)
		return
	}
	doc, state, err := levelDocument(cmd)
	if err != nil {
		b.logger.Warn("light command", "eui64", eui, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	if err := b.cmd.LevelControl(ctx, nodeID, endpointID, doc); err != nil {
		b.logger.Warn("light command failed", "eui64", eui, "endpoint_id", endpointID, "err", err)
		return
	}
	data, _ := json.Marshal(state)
	b.publish(lightTopic(b.prefix, eui, endpointID)+"/state", data, true)
}

func (b *Bridge) publishResult(result CommandResult, err error) {
	if err != nil {
		doc := control.ErrorDocument(err)
		result.Status = "error"
		result.Error = &doc
		if !errors.Is(err, codec.ErrInvalidInput) {
			b.logger.Warn("command failed", "command", result.Command, "id", result.ID, "err", err)
		}
	} else {
		result.Status = "ok"
	}
	payload, mErr := codec.Marshal(result, b.format)
	if mErr != nil {
		b.logger.Error("encode command result", "err", mErr)
		return
	}
	b.publish(b.prefix+"/command/result", payload, false)
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
