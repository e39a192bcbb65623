// Package relay forwards requests from a sandboxed frame to the background
// executor and routes the answers back.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/bus"
)

// NoResponse is reported to the frame when the executor never answered.
const NoResponse = "no response from background"

// Sender performs one correlated exchange with the executor.
// *correlate.Channel satisfies it.
type Sender interface {
	Send(ctx context.Context, msg bus.Message) (json.RawMessage, error)
}

// Bridge relays between frame ports and one upstream Sender.
type Bridge struct {
	upstream Sender
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a Bridge. A zero timeout leaves the bound to upstream.
func New(upstream Sender, timeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{upstream: upstream, timeout: timeout, logger: logger}
}

// Attach starts relaying requests posted on frame. Messages without a type
// are ignored. The returned func detaches and waits for in-flight requests.
func (b *Bridge) Attach(frame bus.Port) (detach func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stopped bool
	)

	stop := frame.Listen(func(msg bus.Message) {
		if !msg.IsRequest() {
			return
		}
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		wg.Add(1)
		mu.Unlock()

		go func() {
			defer wg.Done()
			reply := b.forward(ctx, msg)
			if err := frame.Post(ctx, reply); err != nil {
				b.logger.Warn("relay: reply not delivered",
					slog.String("request_id", msg.RequestID),
					slog.String("error", err.Error()),
				)
			}
		}()
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancel()
			wg.Wait()
		})
	}
}

// forward sends {type, payload} upstream and builds the frame-side reply
// carrying the frame's own request id.
func (b *Bridge) forward(ctx context.Context, msg bus.Message) bus.Message {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	data, err := b.upstream.Send(ctx, bus.Message{Type: msg.Type, Payload: msg.Payload})
	if err == nil {
		return bus.Reply(msg.RequestID, data)
	}

	b.logger.Warn("relay: upstream failed",
		slog.String("type", msg.Type),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, apperr.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		err = apperr.FromEnvelope(apperr.CodeTimeout, 0, NoResponse)
	}
	return bus.Failure(msg.RequestID, err)
}
