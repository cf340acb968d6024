package codec

import (
	"fmt"

	"zigbee-bridge/internal/ncp"
)

// EndpointDoc is the document form of an endpoint descriptor.
type EndpointDoc struct {
	EndpointID    int32                  `json:"endpoint_id"`
	NodeID        int32                  `json:"node_id"`
	ServerCluster [ncp.ClusterSlots]int16 `json:"server_cluster"`
	ClientCluster [ncp.ClusterSlots]int16 `json:"client_cluster"`
}

// DecodeEndpoint reads an endpoint descriptor from an input document.
// node_id and endpoint_id must be integers. Cluster slots are read index by
// index; a missing or non-integer slot becomes 0.
func DecodeEndpoint(doc Document) (ncp.Endpoint, error) {
	var ep ncp.Endpoint
	var ok bool
	if ep.NodeID, ok = toInt32(doc["node_id"]); !ok {
		return ep, fmt.Errorf("%w: node_id must be an integer", ErrInvalidInput)
	}
	if ep.EndpointID, ok = toInt32(doc["endpoint_id"]); !ok {
		return ep, fmt.Errorf("%w: endpoint_id must be an integer", ErrInvalidInput)
	}
	ep.ServerClusters = decodeClusters(doc["server_cluster"])
	ep.ClientClusters = decodeClusters(doc["client_cluster"])
	return ep, nil
}

func decodeClusters(v any) [ncp.ClusterSlots]int16 {
	var out [ncp.ClusterSlots]int16
	for i := range out {
		if n, ok := toInt16(sequence(v, i)); ok {
			out[i] = n
		}
	}
	return out
}

// EncodeEndpoint renders an endpoint verbatim, sentinel slots included.
func EncodeEndpoint(ep ncp.Endpoint) EndpointDoc {
	return EndpointDoc{
		EndpointID:    ep.EndpointID,
		NodeID:        ep.NodeID,
		ServerCluster: ep.ServerClusters,
		ClientCluster: ep.ClientClusters,
	}
}

// EncodeEndpointList renders endpoints in input order.
func EncodeEndpointList(eps []ncp.Endpoint) []EndpointDoc {
	out := make([]EndpointDoc, 0, len(eps))
	for _, ep := range eps {
		out = append(out, EncodeEndpoint(ep))
	}
	return out
}
