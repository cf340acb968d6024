package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-bridge/internal/ncp"
)

func TestEndpointRoundTrip(t *testing.T) {
	ep := ncp.NewEndpoint(0x1234, 1)
	ep.ServerClusters[0] = 0x0006
	ep.ServerClusters[1] = 0x0008
	ep.ClientClusters[0] = 0x0003

	data, err := json.Marshal(EncodeEndpoint(ep))
	require.NoError(t, err)

	doc, err := UnmarshalDocument(data, FormatJSON)
	require.NoError(t, err)

	got, err := DecodeEndpoint(doc)
	require.NoError(t, err)
	assert.Equal(t, ep, got)
}

func TestEncodeEndpointKeepsSentinels(t *testing.T) {
	doc, err := ToDocument(SimpleDescEnvelope{Header: Header{TypeSimpleDesc}, Endpoint: EncodeEndpoint(ncp.NewEndpoint(1, 2))})
	require.NoError(t, err)

	inner := doc["endpoint"].(map[string]any)
	server := inner["server_cluster"].([]any)
	require.Len(t, server, ncp.ClusterSlots)
	for _, v := range server {
		assert.Equal(t, float64(-1), v)
	}
}

func TestDecodeEndpointZeroFillsClusters(t *testing.T) {
	ep, err := DecodeEndpoint(Document{
		"node_id":        int64(7),
		"endpoint_id":    int64(3),
		"server_cluster": []any{float64(6), "bogus", float64(8)},
	})
	require.NoError(t, err)

	assert.Equal(t, int32(7), ep.NodeID)
	assert.Equal(t, int32(3), ep.EndpointID)
	assert.Equal(t, [ncp.ClusterSlots]int16{6, 0, 8}, ep.ServerClusters)
	assert.Equal(t, [ncp.ClusterSlots]int16{}, ep.ClientClusters)
}

func TestDecodeEndpointOutOfRangeClusters(t *testing.T) {
	ep, err := DecodeEndpoint(Document{
		"node_id":        1,
		"endpoint_id":    1,
		"server_cluster": []any{float64(65542), float64(-1), float64(-32769), float64(8)},
		"client_cluster": []any{json.Number("32768"), json.Number("32767")},
	})
	require.NoError(t, err)

	// 65542 must not wrap to 6 (OnOff).
	assert.Equal(t, [ncp.ClusterSlots]int16{0, -1, 0, 8}, ep.ServerClusters)
	assert.Equal(t, [ncp.ClusterSlots]int16{0, 32767}, ep.ClientClusters)
}

func TestDecodeEndpointAcceptsArrays(t *testing.T) {
	ep, err := DecodeEndpoint(Document{
		"node_id":        1,
		"endpoint_id":    2,
		"client_cluster": [3]int{4, 5, 6},
	})
	require.NoError(t, err)
	assert.Equal(t, [ncp.ClusterSlots]int16{4, 5, 6}, ep.ClientClusters)
}

func TestDecodeEndpointInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing node_id", Document{"endpoint_id": 1}},
		{"missing endpoint_id", Document{"node_id": 1}},
		{"string node_id", Document{"node_id": "1", "endpoint_id": 1}},
		{"fractional endpoint_id", Document{"node_id": 1, "endpoint_id": 1.5}},
		{"node_id overflow", Document{"node_id": int64(1) << 40, "endpoint_id": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEndpoint(tt.doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestEncodeEndpointListOrder(t *testing.T) {
	eps := []ncp.Endpoint{ncp.NewEndpoint(1, 3), ncp.NewEndpoint(1, 1), ncp.NewEndpoint(1, 2)}
	docs := EncodeEndpointList(eps)
	require.Len(t, docs, 3)
	assert.Equal(t, int32(3), docs[0].EndpointID)
	assert.Equal(t, int32(1), docs[1].EndpointID)
	assert.Equal(t, int32(2), docs[2].EndpointID)

	assert.NotNil(t, EncodeEndpointList(nil))
}

func TestEncodeDevices(t *testing.T) {
	devs := []ncp.Device{
		{EUI64: [8]byte{0x00, 0x12, 0x4b, 0x00, 0x01, 0x02, 0x03, 0xAB}, NodeID: 0x1111, Endpoints: []ncp.Endpoint{ncp.NewEndpoint(0x1111, 1)}},
		{EUI64: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, NodeID: 0x2222},
	}
	docs := EncodeDevices(devs)
	require.Len(t, docs, 2)
	assert.Equal(t, "00124b00010203ab", docs[0].EUI64)
	assert.Equal(t, int32(0x1111), docs[0].NodeID)
	assert.Len(t, docs[0].Endpoints, 1)
	assert.Equal(t, "0102030405060708", docs[1].EUI64)

	data, err := json.Marshal(docs[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"eui64":"0102030405060708","node_id":8738,"endpoints":[]}`, string(data))
}

func TestParseEUI64(t *testing.T) {
	want := [8]byte{0x00, 0x12, 0x4b, 0x00, 0x01, 0x02, 0x03, 0xab}

	got, err := ParseEUI64("00:12:4b:00:01:02:03:ab")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseEUI64("00124B00010203AB")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseEUI64("0012")
	assert.Error(t, err)
	_, err = ParseEUI64("zz124b00010203ab")
	assert.Error(t, err)
}
