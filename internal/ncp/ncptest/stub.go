// Package ncptest provides an in-memory DeviceControl for tests.
package ncptest

import (
	"context"
	"sync"

	"zigbee-bridge/internal/ncp"
)

// Stub records calls and answers with preset results.
// Set Err to make every command fail with it.
type Stub struct {
	mu sync.Mutex

	Err    error
	Device ncp.Device

	LevelRequests []ncp.LevelControlRequest
	Endpoints     []ncp.Endpoint
	PermitJoins   []uint8
	IEEERequests  []int32
	SimpleDescs   [][2]int32
	Discoveries   int
	Closed        bool

	handler func(ncp.Notification)
}

var _ ncp.DeviceControl = (*Stub)(nil)

func (s *Stub) LevelControl(ctx context.Context, req ncp.LevelControlRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.LevelRequests = append(s.LevelRequests, req)
	return nil
}

func (s *Stub) SetLocalEndpoint(ctx context.Context, ep ncp.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Endpoints = append(s.Endpoints, ep)
	return nil
}

func (s *Stub) LocalDevice(ctx context.Context) (*ncp.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	dev := s.Device
	return &dev, nil
}

func (s *Stub) DiscoverDevices(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Discoveries++
	return nil
}

func (s *Stub) PermitJoin(ctx context.Context, seconds uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.PermitJoins = append(s.PermitJoins, seconds)
	return nil
}

func (s *Stub) IEEEAddrRequest(ctx context.Context, nodeID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.IEEERequests = append(s.IEEERequests, nodeID)
	return nil
}

func (s *Stub) SimpleDescRequest(ctx context.Context, nodeID, endpointID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.SimpleDescs = append(s.SimpleDescs, [2]int32{nodeID, endpointID})
	return nil
}

func (s *Stub) OnNotification(handler func(ncp.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Emit delivers a notification to the registered handler, if any.
func (s *Stub) Emit(n ncp.Notification) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(n)
	}
}

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Levels returns a copy of the recorded level control requests.
func (s *Stub) Levels() []ncp.LevelControlRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ncp.LevelControlRequest(nil), s.LevelRequests...)
}

// SetErr changes the failure returned by subsequent commands.
func (s *Stub) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Joins returns a copy of the recorded permit join durations.
func (s *Stub) Joins() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint8(nil), s.PermitJoins...)
}
