//go:build no_mqtt

package main

import (
	"log/slog"

	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/dispatch"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *control.Controller, _ *dispatch.Bus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt enabled in config but binary built with no_mqtt")
	}
	return &mqttStopper{}
}
