// Package control is the caller-driven command path: it decodes input
// documents, invokes the device-control API and translates failures into
// error documents.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/ncp"
	"zigbee-bridge/internal/store"
)

// CommandError is returned when the daemon rejects a command.
// Doc is the translated error document shown to the caller.
type CommandError struct {
	Op  string
	Doc codec.ErrorDocument
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Doc.Message, e.Doc.Code)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Controller runs commands against the daemon. A command either fully
// succeeds or has no effect: store writes happen only after the daemon
// accepted the call.
type Controller struct {
	api    ncp.DeviceControl
	store  store.Store
	logger *slog.Logger
}

func New(api ncp.DeviceControl, st store.Store, logger *slog.Logger) *Controller {
	return &Controller{
		api:    api,
		store:  st,
		logger: logger.With("component", "control"),
	}
}

// commandError maps an API failure to a CommandError. Errors that carry no
// daemon result code are mapped from their cause, falling back to a
// protocol error.
func commandError(op string, err error) error {
	var ncpErr *ncp.Error
	code := ncp.CodeProtocolError
	switch {
	case errors.As(err, &ncpErr):
		code = ncpErr.Code
	case errors.Is(err, ncp.ErrClosed):
		code = ncp.CodeNotConnected
	case errors.Is(err, context.DeadlineExceeded):
		code = ncp.CodeTimeout
	case errors.Is(err, context.Canceled):
		code = ncp.CodeInterrupted
	}
	return &CommandError{Op: op, Doc: codec.TranslateError(code), Err: err}
}

// ErrorDocument renders any command-path error for a caller: daemon
// failures keep their translated code, malformed input reports bad
// arguments.
func ErrorDocument(err error) codec.ErrorDocument {
	var cmdErr *CommandError
	switch {
	case errors.As(err, &cmdErr):
		return cmdErr.Doc
	case errors.Is(err, codec.ErrInvalidInput):
		return codec.TranslateError(ncp.CodeBadArgs)
	default:
		return codec.TranslateError(ncp.CodeProtocolError)
	}
}

// LevelControl sends a level control command to a remote endpoint.
func (c *Controller) LevelControl(ctx context.Context, nodeID, endpointID int32, doc codec.Document) error {
	cmd, err := codec.DecodeLevelControl(doc)
	if err != nil {
		return fmt.Errorf("level control: %w", err)
	}
	req := ncp.LevelControlRequest{NodeID: nodeID, EndpointID: endpointID, Command: cmd}
	if err := c.api.LevelControl(ctx, req); err != nil {
		return commandError("level control", err)
	}
	c.logger.Debug("level control sent", "node_id", nodeID, "endpoint_id", endpointID, "kind", cmd.Kind)
	return nil
}

// RegisterEndpoint declares a local endpoint and persists it once accepted.
func (c *Controller) RegisterEndpoint(ctx context.Context, doc codec.Document) (codec.EndpointDoc, error) {
	ep, err := codec.DecodeEndpoint(doc)
	if err != nil {
		return codec.EndpointDoc{}, fmt.Errorf("register endpoint: %w", err)
	}
	if err := c.api.SetLocalEndpoint(ctx, ep); err != nil {
		return codec.EndpointDoc{}, commandError("register endpoint", err)
	}
	out := codec.EncodeEndpoint(ep)
	if err := c.store.SaveEndpoint(out); err != nil {
		c.logger.Error("persist endpoint", "endpoint_id", ep.EndpointID, "err", err)
	}
	c.logger.Info("endpoint registered", "endpoint_id", ep.EndpointID)
	return out, nil
}

// RestoreEndpoints re-declares every persisted local endpoint. It stops at
// the first failure.
func (c *Controller) RestoreEndpoints(ctx context.Context) (int, error) {
	eps, err := c.store.ListEndpoints()
	if err != nil {
		return 0, fmt.Errorf("list endpoints: %w", err)
	}
	for i, doc := range eps {
		ep := ncp.Endpoint{
			NodeID:         doc.NodeID,
			EndpointID:     doc.EndpointID,
			ServerClusters: doc.ServerCluster,
			ClientClusters: doc.ClientCluster,
		}
		if err := c.api.SetLocalEndpoint(ctx, ep); err != nil {
			return i, commandError("restore endpoint", err)
		}
	}
	return len(eps), nil
}

// LocalDevice queries the local device and caches the answer.
func (c *Controller) LocalDevice(ctx context.Context) (codec.DeviceDoc, error) {
	dev, err := c.api.LocalDevice(ctx)
	if err != nil {
		return codec.DeviceDoc{}, commandError("local device", err)
	}
	doc := codec.EncodeDevice(*dev)
	if err := c.store.SaveLocalDevice(&doc); err != nil {
		c.logger.Error("persist local device", "err", err)
	}
	return doc, nil
}

// Devices lists the discovered devices known to the store.
func (c *Controller) Devices() ([]codec.DeviceDoc, error) {
	devs, err := c.store.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]codec.DeviceDoc, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.DeviceDoc)
	}
	return out, nil
}

// Discover starts device discovery; results arrive as device_discover envelopes.
func (c *Controller) Discover(ctx context.Context) error {
	if err := c.api.DiscoverDevices(ctx); err != nil {
		return commandError("discover", err)
	}
	return nil
}

// PermitJoin opens the network for joining for the given number of seconds.
// Zero closes it.
func (c *Controller) PermitJoin(ctx context.Context, seconds int) error {
	if seconds < 0 || seconds > 254 {
		return fmt.Errorf("permit join: %w: duration must be 0..254 seconds", codec.ErrInvalidInput)
	}
	if err := c.api.PermitJoin(ctx, uint8(seconds)); err != nil {
		return commandError("permit join", err)
	}
	c.logger.Info("permit join", "seconds", seconds)
	return nil
}

// RequestIEEE asks a node for its IEEE address; the answer is an ieee_addr envelope.
func (c *Controller) RequestIEEE(ctx context.Context, nodeID int32) error {
	if err := c.api.IEEEAddrRequest(ctx, nodeID); err != nil {
		return commandError("ieee address request", err)
	}
	return nil
}

// RequestSimpleDesc asks for an endpoint descriptor; the answer is a
// simple_desc envelope.
func (c *Controller) RequestSimpleDesc(ctx context.Context, nodeID, endpointID int32) error {
	if err := c.api.SimpleDescRequest(ctx, nodeID, endpointID); err != nil {
		return commandError("simple descriptor request", err)
	}
	return nil
}
