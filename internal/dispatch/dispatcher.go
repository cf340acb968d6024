// Package dispatch turns the daemon's notification stream into envelopes and
// delivers them, in arrival order, to a single observer.
package dispatch

import (
	"log/slog"
	"sync"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/ncp"
)

// Observer consumes decoded envelopes. It must not retain the envelope's
// backing payload; envelopes themselves are safe to keep.
type Observer func(codec.Envelope)

// Decoder turns a tagged payload into an envelope. *codec.Codec satisfies it.
type Decoder interface {
	Decode(tag ncp.Tag, payload []byte) codec.Envelope
}

// Delivery hands envelopes to the observer. Implementations must preserve
// order and must not block the notification source indefinitely.
type Delivery interface {
	start(deliver func(codec.Envelope))
	submit(env codec.Envelope) bool
	stop()
}

// Direct delivers on the notifying goroutine. The observer must return quickly.
func Direct() Delivery { return &direct{} }

type direct struct {
	deliver func(codec.Envelope)
}

func (d *direct) start(deliver func(codec.Envelope)) { d.deliver = deliver }
func (d *direct) submit(env codec.Envelope) bool   { d.deliver(env); return true }
func (d *direct) stop()                             {}

// Queued delivers from one goroutine draining a bounded queue. When the queue
// is full the envelope is dropped.
func Queued(size int) Delivery {
	if size <= 0 {
		size = 1
	}
	return &queued{ch: make(chan codec.Envelope, size), done: make(chan struct{})}
}

type queued struct {
	ch   chan codec.Envelope
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func (q *queued) start(deliver func(codec.Envelope)) {
	go func() {
		defer close(q.done)
		for env := range q.ch {
			deliver(env)
		}
	}()
}

func (q *queued) submit(env codec.Envelope) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- env:
		return true
	default:
		return false
	}
}

// stop drains what is already queued, then returns.
func (q *queued) stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDelivery sets the delivery strategy. Default is Direct.
func WithDelivery(d Delivery) Option {
	return func(disp *Dispatcher) { disp.delivery = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.logger = logger }
}

// Dispatcher decodes notifications and delivers them to its observer.
// The observer is fixed at construction; a nil observer drops everything.
type Dispatcher struct {
	decoder  Decoder
	observer Observer
	delivery Delivery
	logger   *slog.Logger

	closeOnce sync.Once
}

func New(decoder Decoder, observer Observer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		decoder:  decoder,
		observer: observer,
		delivery: Direct(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")
	d.delivery.start(d.deliver)
	return d
}

// Notify decodes one notification and hands it to the delivery strategy.
// It never fails and never blocks on a slow observer under Queued delivery.
func (d *Dispatcher) Notify(n ncp.Notification) {
	if d.observer == nil {
		return
	}
	env := d.decoder.Decode(n.Tag, n.Payload)
	if !d.delivery.submit(env) {
		d.logger.Warn("envelope dropped", "type", env.Type())
	}
}

func (d *Dispatcher) deliver(env codec.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panic", "type", env.Type(), "panic", r)
		}
	}()
	d.observer(env)
}

// Close stops delivery. Envelopes already queued are delivered first.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(d.delivery.stop)
}
