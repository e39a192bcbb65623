// Package correlate implements request/response exchange over an
// asynchronous bus.Port by tagging every request with a correlation id.
package correlate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/bus"
)

// DefaultTimeout bounds every Send unless overridden with WithTimeout.
const DefaultTimeout = 10 * time.Second

type outcome struct {
	data json.RawMessage
	err  error
}

type pending struct {
	id        string
	createdAt time.Time
	result    chan outcome // buffered(1); written once by the loop
}

// closer is implemented by ports that report when their connection is gone.
type closer interface {
	Done() <-chan struct{}
}

type expiry struct {
	id  string
	err error
}

// Channel correlates replies arriving on a port with the requests that
// caused them.
//
// Concurrency model: one internal event loop owns the pending registry.
// Send, the port listener and timeouts talk to it through channels, so the
// registry needs no lock and every request is settled exactly once, by the
// loop, on whichever of reply/expiry reaches it first.
type Channel struct {
	port    bus.Port
	timeout time.Duration
	newID   func() string

	registerCh chan *pending
	replyCh    chan bus.Message
	expireCh   chan expiry
	countReqCh chan chan int

	stopListen func()
	portDone   <-chan struct{} // nil when the port cannot report loss
	stopCh     chan struct{}
	stopped    chan struct{}
	closed     atomic.Bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithIDGenerator overrides the random correlation id source.
func WithIDGenerator(gen func() string) Option {
	return func(c *Channel) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// New starts a Channel on port.
func New(port bus.Port, opts ...Option) *Channel {
	c := &Channel{
		port:       port,
		timeout:    DefaultTimeout,
		newID:      uuid.NewString,
		registerCh: make(chan *pending),
		replyCh:    make(chan bus.Message, 64),
		expireCh:   make(chan expiry),
		countReqCh: make(chan chan int),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if p, ok := port.(closer); ok {
		c.portDone = p.Done()
	}

	go c.run()
	c.stopListen = port.Listen(c.onMessage)
	return c
}

func (c *Channel) run() {
	defer close(c.stopped)

	waiting := make(map[string]*pending)
	failAll := func(reason string) {
		for id, p := range waiting {
			delete(waiting, id)
			p.result <- outcome{err: fmt.Errorf("%w: %s", apperr.ErrTransportFailure, reason)}
		}
	}

	for {
		select {
		case <-c.stopCh:
			failAll("channel closed")
			return

		case <-c.portDone:
			// The connection is gone: nothing pending can be answered and
			// later sends fail at once.
			failAll("port closed")
			return

		case p := <-c.registerCh:
			waiting[p.id] = p

		case msg := <-c.replyCh:
			p, ok := waiting[msg.RequestID]
			if !ok {
				// Unknown, already settled or expired.
				continue
			}
			delete(waiting, msg.RequestID)
			if msg.Success {
				p.result <- outcome{data: msg.Data}
			} else {
				p.result <- outcome{err: msg.Err()}
			}

		case e := <-c.expireCh:
			p, ok := waiting[e.id]
			if !ok {
				continue
			}
			delete(waiting, e.id)
			p.result <- outcome{err: e.err}

		case resp := <-c.countReqCh:
			resp <- len(waiting)
		}
	}
}

func (c *Channel) onMessage(msg bus.Message) {
	if msg.IsRequest() || msg.RequestID == "" {
		return
	}
	select {
	case c.replyCh <- msg:
	case <-c.stopped:
	}
}

// Send posts msg with a fresh correlation id and waits for the matching
// reply. A successful reply resolves with its data; a failed one rejects
// with the error it carries. Without a reply Send fails with
// apperr.ErrTimeout after the configured bound.
func (c *Channel) Send(ctx context.Context, msg bus.Message) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: channel closed", apperr.ErrTransportFailure)
	}

	p := &pending{
		id:        c.newID(),
		createdAt: time.Now(),
		result:    make(chan outcome, 1),
	}
	select {
	case c.registerCh <- p:
	case <-c.stopped:
		return nil, fmt.Errorf("%w: channel closed", apperr.ErrTransportFailure)
	}

	msg.RequestID = p.id
	if err := c.port.Post(ctx, msg); err != nil {
		c.expire(p.id, fmt.Errorf("%w: %v", apperr.ErrTransportFailure, err))
		out := <-p.result
		return out.data, out.err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-p.result:
		return out.data, out.err
	case <-timer.C:
		c.expire(p.id, fmt.Errorf("%w after %s", apperr.ErrTimeout, time.Since(p.createdAt).Round(time.Millisecond)))
	case <-ctx.Done():
		c.expire(p.id, ctx.Err())
	}

	// The loop has settled p by now, either with the expiry or with a reply
	// that won the race.
	out := <-p.result
	return out.data, out.err
}

func (c *Channel) expire(id string, err error) {
	select {
	case c.expireCh <- expiry{id: id, err: err}:
	case <-c.stopped:
	}
}

// Pending returns the number of requests still waiting for a reply.
func (c *Channel) Pending() int {
	if c.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case c.countReqCh <- resp:
	case <-c.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-c.stopped:
		return 0
	}
}

// Close stops listening on the port and fails every outstanding request.
// A channel whose port reports loss (a Done method) closes itself the
// same way when the port goes away.
func (c *Channel) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.stopListen()
		close(c.stopCh)
	}
	<-c.stopped
}
