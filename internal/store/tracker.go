package store

import (
	"errors"
	"log/slog"
	"time"

	"zigbee-bridge/internal/codec"
)

// Tracker keeps the devices bucket in sync with discovery and announce
// envelopes. Subscribe its Handle method to the envelope bus.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(st Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		logger: logger.With("component", "tracker"),
		now:    time.Now,
	}
}

// Handle applies one envelope. Errors are logged; the event path never fails.
func (t *Tracker) Handle(env codec.Envelope) {
	switch e := env.(type) {
	case codec.DeviceDiscoverEnvelope:
		t.handleDiscover(e)
	case codec.DeviceAnnounceEnvelope:
		t.handleAnnounce(e)
	}
}

func (t *Tracker) handleDiscover(e codec.DeviceDiscoverEnvelope) {
	eui := e.Device.EUI64
	switch e.Status {
	case codec.DiscoveryFound, codec.DiscoveryChanged:
		now := t.now()
		err := t.store.UpdateDevice(eui, func(dev *Device) error {
			dev.DeviceDoc = e.Device
			dev.LastSeen = now
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			err = t.store.SaveDevice(&Device{DeviceDoc: e.Device, FirstSeen: now, LastSeen: now})
			if err == nil {
				t.logger.Info("device discovered", "eui64", eui, "node_id", e.Device.NodeID)
			}
		}
		if err != nil {
			t.logger.Error("save device", "eui64", eui, "err", err)
		}
	case codec.DiscoveryLost:
		if err := t.store.DeleteDevice(eui); err != nil {
			t.logger.Error("delete device", "eui64", eui, "err", err)
			return
		}
		t.logger.Info("device lost", "eui64", eui)
	}
}

// handleAnnounce refreshes the network address of a known device.
func (t *Tracker) handleAnnounce(e codec.DeviceAnnounceEnvelope) {
	now := t.now()
	err := t.store.UpdateDevice(e.EUI64, func(dev *Device) error {
		dev.NodeID = int32(e.NodeID)
		for i := range dev.Endpoints {
			dev.Endpoints[i].NodeID = int32(e.NodeID)
		}
		dev.LastSeen = now
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		t.logger.Debug("announce from unknown device", "eui64", e.EUI64, "node_id", e.NodeID)
	case err != nil:
		t.logger.Error("update device", "eui64", e.EUI64, "err", err)
	}
}
