package store

import (
	"errors"

	"zigbee-bridge/internal/codec"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Discovered devices, keyed by EUI64 hex.
	SaveDevice(dev *Device) error
	GetDevice(eui64 string) (*Device, error)
	DeleteDevice(eui64 string) error
	ListDevices() ([]*Device, error)

	// UpdateDevice atomically reads, modifies, and saves a device in a single
	// transaction. Returns ErrNotFound if the device does not exist.
	UpdateDevice(eui64 string, fn func(dev *Device) error) error

	// Local endpoints registered through the command path.
	SaveEndpoint(ep codec.EndpointDoc) error
	ListEndpoints() ([]codec.EndpointDoc, error)

	// Last known local device descriptor.
	SaveLocalDevice(dev *codec.DeviceDoc) error
	GetLocalDevice() (*codec.DeviceDoc, error)

	// Close the store
	Close() error
}
