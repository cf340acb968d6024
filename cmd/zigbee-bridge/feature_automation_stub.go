//go:build no_automation

package main

import (
	"log/slog"

	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/dispatch"
	"zigbee-bridge/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *control.Controller, _ *dispatch.Bus, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
