// Package executor answers document API requests on behalf of less
// privileged contexts. It is the only component that talks to Notion when a
// messaging transport is in use.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/bus"
	"github.com/starford/izy/internal/notion"
)

// Executor performs NOTION_SEARCH and NOTION_APPEND requests.
type Executor struct {
	client *notion.Client
	logger *slog.Logger
}

// New creates an Executor backed by client.
func New(client *notion.Client, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, logger: logger}
}

// Handle performs one request and returns its reply envelope. It never
// panics; every failure becomes a failure envelope echoing the request id.
func (e *Executor) Handle(ctx context.Context, req bus.Message) (reply bus.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor: panic", slog.String("type", req.Type), slog.Any("panic", r))
			reply = bus.Failure(req.RequestID, fmt.Errorf("%w: internal error", apperr.ErrTransportFailure))
		}
	}()

	var (
		data json.RawMessage
		err  error
	)
	switch req.Type {
	case bus.TypeNotionSearch:
		var p bus.SearchPayload
		if err = decodePayload(req.Payload, &p); err == nil {
			data, err = e.client.Search(ctx, p.Token, p.Query)
		}
	case bus.TypeNotionAppend:
		var p bus.AppendPayload
		if err = decodePayload(req.Payload, &p); err == nil {
			data, err = e.client.AppendParagraph(ctx, p.Token, p.BlockID, p.Text)
		}
	default:
		err = fmt.Errorf("%w: unknown request type %q", apperr.ErrTransportFailure, req.Type)
	}

	if err != nil {
		e.logger.Warn("executor: request failed",
			slog.String("type", req.Type),
			slog.String("error", err.Error()),
		)
		return bus.Failure(req.RequestID, err)
	}
	return bus.Reply(req.RequestID, data)
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", apperr.ErrTransportFailure)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", apperr.ErrTransportFailure, err)
	}
	return nil
}

// Serve answers every request arriving on port until ctx is done or stop is
// called. Requests are handled concurrently; replies echo the request id.
func (e *Executor) Serve(ctx context.Context, port bus.Port) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stopped bool
	)

	stopListen := port.Listen(func(msg bus.Message) {
		if !msg.IsRequest() {
			return
		}
		mu.Lock()
		if stopped || ctx.Err() != nil {
			mu.Unlock()
			return
		}
		wg.Add(1)
		mu.Unlock()

		go func() {
			defer wg.Done()
			reply := e.Handle(ctx, msg)
			if err := port.Post(ctx, reply); err != nil {
				e.logger.Warn("executor: reply not delivered",
					slog.String("request_id", msg.RequestID),
					slog.String("error", err.Error()),
				)
			}
		}()
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stopListen()
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancel()
			wg.Wait()
		})
	}
}
