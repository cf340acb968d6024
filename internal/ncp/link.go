package ncp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const respTimeout = 5 * time.Second

// ErrClosed is returned by calls made on, or interrupted by, a closed link.
var ErrClosed = errors.New("daemon link closed")

// Link implements DeviceControl over a framed byte stream to the Zigbee
// daemon (usually a serial port).
type Link struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
	logger *slog.Logger

	// Request/response tracking (keyed by sequence number).
	seq     atomic.Uint32
	pending map[uint8]chan *frame
	mu      sync.Mutex
	writeMu sync.Mutex

	handlerMu sync.RWMutex
	onNotify  func(Notification)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenSerial opens the daemon's serial port and starts a Link on it.
func OpenSerial(portName string, baudRate int, logger *slog.Logger) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("daemon link: open %s: %w", portName, err)
	}
	return NewLink(port, logger), nil
}

// NewLink starts a Link on an already open stream.
func NewLink(port io.ReadWriteCloser, logger *slog.Logger) *Link {
	l := &Link{
		port:    port,
		reader:  bufio.NewReader(port),
		logger:  logger.With("component", "ncp"),
		pending: make(map[uint8]chan *frame),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.readLoop()
	return l
}

// reserveSeq registers ch under the next sequence number not held by an
// in-flight request. It fails when all 256 are in use.
func (l *Link) reserveSeq(ch chan *frame) (uint8, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for range 256 {
		seq := uint8(l.seq.Add(1))
		if _, busy := l.pending[seq]; !busy {
			l.pending[seq] = ch
			return seq, true
		}
	}
	return 0, false
}

// request sends a request frame and waits for the matching response.
// A non-success status is returned as *Error.
func (l *Link) request(ctx context.Context, callID uint16, payload []byte) (*frame, error) {
	ch := make(chan *frame, 1)
	seq, ok := l.reserveSeq(ch)
	if !ok {
		return nil, &Error{Op: callName(callID), Code: CodeBusy}
	}
	defer func() {
		l.mu.Lock()
		delete(l.pending, seq)
		l.mu.Unlock()
	}()

	raw := encodeFrame(&frame{Type: packetRequest, Seq: seq, ID: callID, Payload: payload})
	l.writeMu.Lock()
	_, err := l.port.Write(raw)
	l.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", callName(callID), err)
	}
	l.logger.Debug("link TX", "call", callName(callID), "seq", seq, "payload", fmt.Sprintf("%X", payload))

	timer := time.NewTimer(respTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, ErrClosed
		}
		if resp.Status != CodeSuccess {
			l.logger.Warn("link RX", "call", callName(callID), "seq", seq, "code", int32(resp.Status))
			return resp, &Error{Op: callName(callID), Code: resp.Status}
		}
		l.logger.Debug("link RX", "call", callName(callID), "seq", seq, "payload", fmt.Sprintf("%X", resp.Payload))
		return resp, nil
	case <-timer.C:
		return nil, &Error{Op: callName(callID), Code: CodeTimeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-l.done:
			return
		default:
		}

		raw, err := readRawFrame(l.reader)
		if errors.Is(err, errBadFrame) {
			l.logger.Warn("link frame dropped", "err", err)
			continue
		}
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if err != io.EOF && !strings.Contains(err.Error(), "closed") {
				l.logger.Error("link read error", "err", err)
			}
			select {
			case <-time.After(backoff):
			case <-l.done:
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 10 * time.Millisecond

		f, err := decodeFrame(raw)
		if err != nil {
			l.logger.Warn("link decode error", "err", err)
			continue
		}

		switch f.Type {
		case packetResponse:
			l.mu.Lock()
			ch, ok := l.pending[f.Seq]
			l.mu.Unlock()
			if !ok {
				l.logger.Warn("link orphaned response", "call", callName(f.ID), "seq", f.Seq)
				continue
			}
			select {
			case ch <- f:
			default:
			}
		case packetNotification:
			l.notify(Notification{Tag: Tag(f.ID), Payload: f.Payload})
		default:
			l.logger.Debug("link ignored frame", "type", f.Type, "id", f.ID)
		}
	}
}

// notify runs the registered handler on the read goroutine. Events that
// arrive before a handler is registered are dropped.
func (l *Link) notify(n Notification) {
	l.handlerMu.RLock()
	h := l.onNotify
	l.handlerMu.RUnlock()
	if h == nil {
		l.logger.Debug("notification dropped, no handler", "tag", n.Tag)
		return
	}
	h(n)
}

// OnNotification registers the notification handler.
func (l *Link) OnNotification(handler func(Notification)) {
	l.handlerMu.Lock()
	l.onNotify = handler
	l.handlerMu.Unlock()
}

func (l *Link) LevelControl(ctx context.Context, req LevelControlRequest) error {
	w := (&PayloadWriter{}).Int32(req.NodeID).Int32(req.EndpointID).LevelControl(req.Command)
	_, err := l.request(ctx, callLevelControl, w.Bytes())
	return err
}

func (l *Link) SetLocalEndpoint(ctx context.Context, ep Endpoint) error {
	_, err := l.request(ctx, callSetLocalEndpoint, (&PayloadWriter{}).Endpoint(ep).Bytes())
	return err
}

func (l *Link) LocalDevice(ctx context.Context) (*Device, error) {
	resp, err := l.request(ctx, callLocalDevice, nil)
	if err != nil {
		return nil, err
	}
	r := NewPayloadReader(resp.Payload)
	d := r.Device()
	if r.Short() {
		return nil, &Error{Op: callName(callLocalDevice), Code: CodeProtocolError}
	}
	return &d, nil
}

func (l *Link) DiscoverDevices(ctx context.Context) error {
	_, err := l.request(ctx, callDiscoverDevices, nil)
	return err
}

func (l *Link) PermitJoin(ctx context.Context, seconds uint8) error {
	_, err := l.request(ctx, callPermitJoin, []byte{seconds})
	return err
}

func (l *Link) IEEEAddrRequest(ctx context.Context, nodeID int32) error {
	_, err := l.request(ctx, callIEEEAddrReq, (&PayloadWriter{}).Int32(nodeID).Bytes())
	return err
}

func (l *Link) SimpleDescRequest(ctx context.Context, nodeID, endpointID int32) error {
	_, err := l.request(ctx, callSimpleDescReq, (&PayloadWriter{}).Int32(nodeID).Int32(endpointID).Bytes())
	return err
}

// Close stops the link and waits for the read loop to exit.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.port.Close()
		l.wg.Wait()

		l.mu.Lock()
		for seq, ch := range l.pending {
			close(ch)
			delete(l.pending, seq)
		}
		l.mu.Unlock()
	})
	return err
}
