//go:build !no_mqtt

package main

import (
	"log/slog"

	mqttbridge "zigbee-bridge/internal/mqtt"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/dispatch"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

func initMQTT(ctrl *control.Controller, bus *dispatch.Bus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	// validate has already accepted the encoding.
	format, _ := codec.ParseFormat(cfg.MQTT.Encoding)
	bridge, err := mqttbridge.NewBridge(ctrl, mqttbridge.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Encoding:    format,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &mqttStopper{}
	}
	bridge.Start(bus)
	return &mqttStopper{bridge: bridge}
}
