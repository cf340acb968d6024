package ncp

import "encoding/binary"

// EndpointSize is the packed size of a native endpoint:
// node_id(4) + endpoint_id(4) + 2×9×int16.
const EndpointSize = 4 + 4 + ClusterSlots*2 + ClusterSlots*2

// PayloadReader reads native fields from a notification or response payload.
// Reads past the end yield zero values and mark the reader short; it never
// fails, so a truncated payload still decodes to a partially filled struct.
type PayloadReader struct {
	data  []byte
	short bool
}

// NewPayloadReader wraps payload. The reader does not copy it.
func NewPayloadReader(payload []byte) *PayloadReader {
	return &PayloadReader{data: payload}
}

// Short reports whether any read ran past the end of the payload.
func (r *PayloadReader) Short() bool { return r.short }

// Remaining returns the number of unread bytes.
func (r *PayloadReader) Remaining() int { return len(r.data) }

func (r *PayloadReader) take(n int) []byte {
	if len(r.data) < n {
		r.short = true
		r.data = nil
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *PayloadReader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *PayloadReader) Bool() bool {
	return r.Uint8() != 0
}

func (r *PayloadReader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *PayloadReader) Int16() int16 {
	return int16(r.Uint16())
}

func (r *PayloadReader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *PayloadReader) Int32() int32 {
	return int32(r.Uint32())
}

// EUI64 reads an 8-byte identifier in stored order.
func (r *PayloadReader) EUI64() [8]byte {
	var out [8]byte
	copy(out[:], r.take(8))
	return out
}

// Endpoint reads a native endpoint descriptor.
func (r *PayloadReader) Endpoint() Endpoint {
	var ep Endpoint
	ep.NodeID = r.Int32()
	ep.EndpointID = r.Int32()
	for i := range ep.ServerClusters {
		ep.ServerClusters[i] = r.Int16()
	}
	for i := range ep.ClientClusters {
		ep.ClientClusters[i] = r.Int16()
	}
	return ep
}

// Device reads a native device with its endpoint list.
func (r *PayloadReader) Device() Device {
	var d Device
	d.EUI64 = r.EUI64()
	d.NodeID = r.Int32()
	n := int(r.Uint8())
	if limit := r.Remaining() / EndpointSize; n > limit {
		// Count claims more endpoints than bytes remain.
		r.short = true
		n = limit
	}
	d.Endpoints = make([]Endpoint, 0, n)
	for i := 0; i < n; i++ {
		d.Endpoints = append(d.Endpoints, r.Endpoint())
	}
	return d
}

// PayloadWriter builds native payloads.
type PayloadWriter struct {
	buf []byte
}

// Bytes returns the encoded payload.
func (w *PayloadWriter) Bytes() []byte { return w.buf }

func (w *PayloadWriter) Uint8(v uint8) *PayloadWriter {
	w.buf = append(w.buf, v)
	return w
}

func (w *PayloadWriter) Bool(v bool) *PayloadWriter {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

func (w *PayloadWriter) Uint16(v uint16) *PayloadWriter {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *PayloadWriter) Int16(v int16) *PayloadWriter {
	return w.Uint16(uint16(v))
}

func (w *PayloadWriter) Uint32(v uint32) *PayloadWriter {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *PayloadWriter) Int32(v int32) *PayloadWriter {
	return w.Uint32(uint32(v))
}

func (w *PayloadWriter) EUI64(v [8]byte) *PayloadWriter {
	w.buf = append(w.buf, v[:]...)
	return w
}

func (w *PayloadWriter) Endpoint(ep Endpoint) *PayloadWriter {
	w.Int32(ep.NodeID).Int32(ep.EndpointID)
	for _, c := range ep.ServerClusters {
		w.Int16(c)
	}
	for _, c := range ep.ClientClusters {
		w.Int16(c)
	}
	return w
}

func (w *PayloadWriter) Device(d Device) *PayloadWriter {
	w.EUI64(d.EUI64).Int32(d.NodeID).Uint8(uint8(len(d.Endpoints)))
	for _, ep := range d.Endpoints {
		w.Endpoint(ep)
	}
	return w
}

func (w *PayloadWriter) LevelControl(cmd LevelControlCommand) *PayloadWriter {
	return w.Int32(int32(cmd.Kind)).Int32(cmd.Value).Int32(cmd.TransitionTime)
}
