// Package wsport carries bus messages over a websocket connection so that
// frames, the relay bridge and the background executor can live in
// different processes.
package wsport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/starford/izy/internal/bus"
)

const writeWait = 10 * time.Second

// Conn implements bus.Port over a websocket connection.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[uint64]bus.Handler
	nextID    uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps ws and starts its read loop.
func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		ws:        ws,
		logger:    logger,
		listeners: map[uint64]bus.Handler{},
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		var msg bus.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("wsport: read stopped", slog.String("error", err.Error()))
			}
			return
		}
		c.mu.Lock()
		hs := make([]bus.Handler, 0, len(c.listeners))
		for _, h := range c.listeners {
			hs = append(hs, h)
		}
		c.mu.Unlock()
		for _, h := range hs {
			h(msg)
		}
	}
}

// Post implements bus.Port.
func (c *Conn) Post(ctx context.Context, msg bus.Message) error {
	select {
	case <-c.done:
		return bus.ErrClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("wsport: write: %w", err)
	}
	return nil
}

// Listen implements bus.Port.
func (c *Conn) Listen(h bus.Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Done is closed once the connection stops reading.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// BearerHeader returns the handshake header carrying token, or nil when
// token is empty.
func BearerHeader(token string) http.Header {
	if token == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + token}}
}

// Dial connects to a websocket endpoint, retrying with exponential backoff
// until ctx is done or maxElapsed passes. header is sent with every
// handshake attempt.
func Dial(ctx context.Context, url string, header http.Header, maxElapsed time.Duration, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed

	var ws *websocket.Conn
	op := func() error {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("wsport: dial %s: %s", url, resp.Status))
			}
			return err
		}
		ws = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("wsport: dial retry",
			slog.String("url", url),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, fmt.Errorf("wsport: dial %s: %w", url, err)
	}
	return NewConn(ws, logger), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// AttachFunc binds a freshly accepted port to a component and returns the
// function that unbinds it.
type AttachFunc func(port bus.Port) (detach func())

// Handler upgrades each request to a websocket and attaches it for the
// lifetime of the connection.
func Handler(attach AttachFunc, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("wsport: upgrade failed", slog.String("error", err.Error()))
			return
		}
		conn := NewConn(ws, logger)
		detach := attach(conn)
		logger.Debug("wsport: peer connected", slog.String("remote", r.RemoteAddr), slog.String("path", r.URL.Path))

		select {
		case <-conn.Done():
		case <-r.Context().Done():
			conn.Close()
		}
		detach()
		logger.Debug("wsport: peer disconnected", slog.String("remote", r.RemoteAddr))
	}
}
