package store

import (
	"time"

	"zigbee-bridge/internal/codec"
)

// Device is a discovered device as persisted: its document form plus
// bookkeeping timestamps.
type Device struct {
	codec.DeviceDoc
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
