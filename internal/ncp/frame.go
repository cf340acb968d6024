package ncp

// Daemon link framing: header with CRC8, body with CRC16, little-endian.
//
//	sig(2) size(2) type(1) seq(1) crc8(1) | crc16(2) id(2) [status(4)] payload
//
// size counts everything from the size field to the end of the body.

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	frameSig0       = 0xDE
	frameSig1       = 0xAD
	frameHeaderSize = 7 // sig(2) + size(2) + type(1) + seq(1) + crc8(1)
	frameBodyCRC    = 2
	frameMaxSize    = 2048
)

// Packet types.
const (
	packetRequest      uint8 = 0x00
	packetResponse     uint8 = 0x01
	packetNotification uint8 = 0x02
)

// Call IDs for requests and their responses.
const (
	callLevelControl     uint16 = 0x0101
	callSetLocalEndpoint uint16 = 0x0102
	callLocalDevice      uint16 = 0x0103
	callDiscoverDevices  uint16 = 0x0104
	callPermitJoin       uint16 = 0x0105
	callIEEEAddrReq      uint16 = 0x0201
	callSimpleDescReq    uint16 = 0x0202
)

// callName returns a human-readable name for a call ID.
func callName(id uint16) string {
	switch id {
	case callLevelControl:
		return "LevelControl"
	case callSetLocalEndpoint:
		return "SetLocalEndpoint"
	case callLocalDevice:
		return "LocalDevice"
	case callDiscoverDevices:
		return "DiscoverDevices"
	case callPermitJoin:
		return "PermitJoin"
	case callIEEEAddrReq:
		return "ZDO_IEEEAddr"
	case callSimpleDescReq:
		return "ZDO_SimpleDesc"
	default:
		return fmt.Sprintf("0x%04X", id)
	}
}

// errBadFrame marks a header that cannot start a valid frame; the reader
// skips it and resynchronizes.
var errBadFrame = errors.New("bad frame")

// frame is a parsed link frame. For notifications ID holds the tag.
type frame struct {
	Type    uint8
	Seq     uint8
	ID      uint16
	Status  ErrorCode
	Payload []byte
}

// --- CRC-8 (reflected poly=0xB2, init=0xFF, xorout=0xFF) ---

var crc8Table [256]uint8

// --- CRC-16 reflected (poly=0x8408, init=0x0000) ---

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		c8 := uint8(i)
		c16 := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if c8&1 != 0 {
				c8 = (c8 >> 1) ^ 0xB2
			} else {
				c8 >>= 1
			}
			if c16&1 != 0 {
				c16 = (c16 >> 1) ^ 0x8408
			} else {
				c16 >>= 1
			}
		}
		crc8Table[i] = c8
		crc16Table[i] = c16
	}
}

func crc8(data []byte) uint8 {
	crc := uint8(0xFF)
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc ^ 0xFF
}

func crc16(data []byte) uint16 {
	crc := uint16(0x0000)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[(crc^uint16(b))&0xFF]
	}
	return crc
}

// encodeFrame builds a complete link frame.
func encodeFrame(f *frame) []byte {
	data := make([]byte, 2, 2+4+len(f.Payload))
	binary.LittleEndian.PutUint16(data, f.ID)
	if f.Type == packetResponse {
		data = binary.LittleEndian.AppendUint32(data, uint32(f.Status))
	}
	data = append(data, f.Payload...)

	size := uint16(5 + frameBodyCRC + len(data))
	out := make([]byte, 2+int(size))
	out[0] = frameSig0
	out[1] = frameSig1
	binary.LittleEndian.PutUint16(out[2:4], size)
	out[4] = f.Type
	out[5] = f.Seq
	out[6] = crc8(out[2:6])
	binary.LittleEndian.PutUint16(out[7:9], crc16(data))
	copy(out[9:], data)
	return out
}

// decodeFrame parses a complete raw frame.
func decodeFrame(raw []byte) (*frame, error) {
	if len(raw) < frameHeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(raw))
	}
	if raw[0] != frameSig0 || raw[1] != frameSig1 {
		return nil, fmt.Errorf("bad signature: 0x%02X%02X", raw[0], raw[1])
	}
	if got := crc8(raw[2:6]); raw[6] != got {
		return nil, fmt.Errorf("header CRC8 mismatch: got 0x%02X, want 0x%02X", raw[6], got)
	}
	size := int(binary.LittleEndian.Uint16(raw[2:4]))
	if size+2 > len(raw) {
		return nil, fmt.Errorf("frame truncated: need %d, have %d", size+2, len(raw))
	}
	body := raw[frameHeaderSize : 2+size]
	if len(body) < frameBodyCRC+2 {
		return nil, fmt.Errorf("body too short: %d bytes", len(body))
	}
	data := body[frameBodyCRC:]
	if want, got := binary.LittleEndian.Uint16(body[:2]), crc16(data); want != got {
		return nil, fmt.Errorf("body CRC16 mismatch: got 0x%04X, want 0x%04X", want, got)
	}

	f := &frame{
		Type: raw[4],
		Seq:  raw[5],
		ID:   binary.LittleEndian.Uint16(data[:2]),
	}
	pos := 2
	switch f.Type {
	case packetRequest, packetNotification:
	case packetResponse:
		if len(data) < 6 {
			return nil, fmt.Errorf("response too short for status")
		}
		f.Status = ErrorCode(int32(binary.LittleEndian.Uint32(data[2:6])))
		pos = 6
	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02X", f.Type)
	}
	if pos < len(data) {
		f.Payload = make([]byte, len(data)-pos)
		copy(f.Payload, data[pos:])
	}
	return f, nil
}

// readRawFrame reads one frame from r, resynchronizing on the signature.
func readRawFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != frameSig0 {
			continue
		}
		next, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		if next[0] != frameSig1 {
			continue
		}
		break
	}
	// The header is only consumed once its CRC8 checks out, so a false
	// signature inside a payload costs one byte of resync.
	rest, err := r.Peek(frameHeaderSize - 1)
	if err != nil {
		return nil, err
	}
	hdr := make([]byte, frameHeaderSize)
	hdr[0] = frameSig0
	copy(hdr[1:], rest)
	if got := crc8(hdr[2:6]); hdr[6] != got {
		return nil, fmt.Errorf("%w: header CRC8 0x%02X, want 0x%02X", errBadFrame, hdr[6], got)
	}
	if _, err := r.Discard(frameHeaderSize - 1); err != nil {
		return nil, err
	}
	size := int(binary.LittleEndian.Uint16(hdr[2:4]))
	if size < 5 || size+2 > frameMaxSize {
		return nil, fmt.Errorf("%w: size %d", errBadFrame, size)
	}
	raw := make([]byte, size+2)
	copy(raw, hdr)
	if _, err := io.ReadFull(r, raw[frameHeaderSize:]); err != nil {
		return nil, err
	}
	return raw, nil
}
