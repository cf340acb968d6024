package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"zigbee-bridge/internal/ncp"
)

// DeviceDoc is the document form of a device.
type DeviceDoc struct {
	EUI64     string        `json:"eui64"`
	NodeID    int32         `json:"node_id"`
	Endpoints []EndpointDoc `json:"endpoints"`
}

// FormatEUI64 renders an identifier as 16 lowercase hex digits, bytes in
// stored order.
func FormatEUI64(eui [8]byte) string {
	return hex.EncodeToString(eui[:])
}

// ParseEUI64 parses "dd:dd:dd:dd:dd:dd:dd:dd" or "dddddddddddddddd".
func ParseEUI64(s string) ([8]byte, error) {
	var out [8]byte
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return out, fmt.Errorf("parse eui64: %w", err)
	}
	if len(b) != 8 {
		return out, fmt.Errorf("eui64 must be 8 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// EncodeDevice renders one device with its endpoints.
func EncodeDevice(d ncp.Device) DeviceDoc {
	return DeviceDoc{
		EUI64:     FormatEUI64(d.EUI64),
		NodeID:    d.NodeID,
		Endpoints: EncodeEndpointList(d.Endpoints),
	}
}

// EncodeDevices renders devices in input order.
func EncodeDevices(devs []ncp.Device) []DeviceDoc {
	out := make([]DeviceDoc, 0, len(devs))
	for _, d := range devs {
		out = append(out, EncodeDevice(d))
	}
	return out
}
