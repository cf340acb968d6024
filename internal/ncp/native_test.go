package ncp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointLayout(t *testing.T) {
	ep := NewEndpoint(0x1234, 1)
	ep.ServerClusters[0] = 0x0006
	ep.ClientClusters[0] = 0x0008

	b := (&PayloadWriter{}).Endpoint(ep).Bytes()
	require.Len(t, b, EndpointSize)

	r := NewPayloadReader(b)
	assert.Equal(t, ep, r.Endpoint())
	assert.False(t, r.Short())
	assert.Zero(t, r.Remaining())
}

func TestDeviceLayout(t *testing.T) {
	d := Device{
		EUI64:     [8]byte{0x00, 0x15, 0x8d, 0x00, 0x01, 0x2a, 0x3b, 0x4c},
		NodeID:    0x5678,
		Endpoints: []Endpoint{NewEndpoint(0x5678, 1), NewEndpoint(0x5678, 2)},
	}
	r := NewPayloadReader((&PayloadWriter{}).Device(d).Bytes())
	assert.Equal(t, d, r.Device())
	assert.False(t, r.Short())
}

func TestPayloadReaderShort(t *testing.T) {
	r := NewPayloadReader([]byte{0x01, 0x00})
	assert.Equal(t, uint16(1), r.Uint16())
	assert.Equal(t, int32(0), r.Int32())
	assert.True(t, r.Short())
	assert.Equal(t, uint8(0), r.Uint8())
}

func TestPayloadReaderDeviceCountOverrun(t *testing.T) {
	// Count says 3 endpoints but only one is present.
	w := (&PayloadWriter{}).EUI64([8]byte{1}).Int32(9).Uint8(3).Endpoint(NewEndpoint(9, 1))
	r := NewPayloadReader(w.Bytes())
	d := r.Device()
	assert.Len(t, d.Endpoints, 1)
	assert.True(t, r.Short())
}

func TestLevelControlKind(t *testing.T) {
	assert.Equal(t, LevelStepUp, LevelStepUpOnOff.Base())
	assert.True(t, LevelStopOnOff.AutoOnOff())
	assert.False(t, LevelStop.AutoOnOff())
	assert.Equal(t, LevelMoveDownOnOff, LevelMoveDown.WithOnOff(true))
	assert.Equal(t, LevelMoveDown, LevelMoveDownOnOff.WithOnOff(false))
	assert.False(t, LevelControlKind(12).Valid())
	assert.False(t, LevelControlKind(-1).Valid())
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "DEVICE_DISCOVER", TagDeviceDiscover.String())
	assert.Equal(t, "TAG(9999)", Tag(9999).String())
	assert.Equal(t, 28, TagCount)
}
