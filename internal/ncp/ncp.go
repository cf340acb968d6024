// Package ncp defines the device-control API contract of the Zigbee daemon:
// the command surface, the native request/payload structs, and the
// asynchronous notification stream. Backend: framed serial link (Link).
package ncp

import "context"

// DeviceControl is the abstract interface of the Zigbee device-control API.
type DeviceControl interface {
	// Commands
	LevelControl(ctx context.Context, req LevelControlRequest) error
	SetLocalEndpoint(ctx context.Context, ep Endpoint) error
	LocalDevice(ctx context.Context) (*Device, error)
	DiscoverDevices(ctx context.Context) error
	PermitJoin(ctx context.Context, seconds uint8) error

	// ZDO requests; the answer arrives as a notification.
	IEEEAddrRequest(ctx context.Context, nodeID int32) error
	SimpleDescRequest(ctx context.Context, nodeID, endpointID int32) error

	// OnNotification registers the single notification handler. The handler
	// runs on the daemon's delivery goroutine, in arrival order.
	OnNotification(handler func(Notification))

	// Lifecycle
	Close() error
}

// Notification is one asynchronous event delivered by the daemon.
// Payload is only valid for the duration of the handler call.
type Notification struct {
	Tag     Tag
	Payload []byte
}

// ClusterSlots is the fixed number of cluster ids per endpoint list.
const ClusterSlots = 9

// UnusedCluster marks an empty cluster slot.
const UnusedCluster int16 = -1

// Endpoint is the native endpoint descriptor.
type Endpoint struct {
	NodeID         int32
	EndpointID     int32
	ServerClusters [ClusterSlots]int16
	ClientClusters [ClusterSlots]int16
}

// NewEndpoint returns an endpoint whose cluster slots are all unused.
func NewEndpoint(nodeID, endpointID int32) Endpoint {
	ep := Endpoint{NodeID: nodeID, EndpointID: endpointID}
	for i := range ep.ServerClusters {
		ep.ServerClusters[i] = UnusedCluster
		ep.ClientClusters[i] = UnusedCluster
	}
	return ep
}

// Device is a discovered or local device.
type Device struct {
	EUI64     [8]byte
	NodeID    int32
	Endpoints []Endpoint
}

// LevelControlKind selects the level control sub-command. Kinds at or above
// LevelMoveToOnOff are the auto-on-off variants of the first six.
type LevelControlKind int32

const (
	LevelMoveTo LevelControlKind = iota
	LevelMoveUp
	LevelMoveDown
	LevelStepUp
	LevelStepDown
	LevelStop
	LevelMoveToOnOff
	LevelMoveUpOnOff
	LevelMoveDownOnOff
	LevelStepUpOnOff
	LevelStepDownOnOff
	LevelStopOnOff
)

const levelKindCount = LevelStop + 1

// Valid reports whether k is one of the twelve known kinds.
func (k LevelControlKind) Valid() bool {
	return k >= LevelMoveTo && k <= LevelStopOnOff
}

// Base strips the auto-on-off variant.
func (k LevelControlKind) Base() LevelControlKind {
	if k >= LevelMoveToOnOff {
		return k - levelKindCount
	}
	return k
}

// AutoOnOff reports whether the kind restores on/off state automatically.
func (k LevelControlKind) AutoOnOff() bool {
	return k >= LevelMoveToOnOff && k <= LevelStopOnOff
}

// WithOnOff returns the kind with the auto-on-off flag applied.
func (k LevelControlKind) WithOnOff(onoff bool) LevelControlKind {
	base := k.Base()
	if onoff {
		return base + levelKindCount
	}
	return base
}

// LevelControlCommand is the native level control command.
// Value is a level (move to), a rate (move) or a step size (step).
type LevelControlCommand struct {
	Kind           LevelControlKind
	Value          int32
	TransitionTime int32
}

// LevelControlRequest addresses a level control command to a remote endpoint.
type LevelControlRequest struct {
	NodeID     int32
	EndpointID int32
	Command    LevelControlCommand
}
