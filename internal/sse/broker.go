// Package sse implements a Server-Sent Events broker that pushes workspace
// changes to connected user interfaces.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventDocumentsFetched = "documents.fetched"
	EventFavoriteToggled  = "favorite.toggled"
	EventSettingsUpdated  = "settings.updated"
	EventDraftUpdated     = "draft.updated"
	EventDraftDeleted     = "draft.deleted"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type draftEventReq struct {
	kind string
	name string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients and the draft throttle). Public methods communicate with
// this loop through channels, so no mutexes are required.
type Broker struct {
	draftMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	draftEventCh  chan draftEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one draft event per draft
// every draftThrottle.
func NewBroker(draftThrottle time.Duration) *Broker {
	if draftThrottle <= 0 {
		draftThrottle = 2 * time.Second
	}

	b := &Broker{
		draftMin:      draftThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		draftEventCh:  make(chan draftEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})

	// Draft throttle: the first change of a draft goes out immediately,
	// later ones inside the window are coalesced into a trailing event.
	lastDraft := make(map[string]time.Time)
	deferred := make(map[string]string)
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	emitDraft := func(kind, name string, now time.Time) {
		lastDraft[name] = now
		typ := EventDraftUpdated
		if kind == "deleted" {
			typ = EventDraftDeleted
		}
		broadcast(Event{Type: typ, Data: map[string]string{"name": name}})
	}

	for {
		select {
		case <-b.stopCh:
			if flushTimer != nil {
				flushTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.draftEventCh:
			now := time.Now()
			if now.Sub(lastDraft[req.name]) >= b.draftMin {
				delete(deferred, req.name)
				emitDraft(req.kind, req.name, now)
				continue
			}
			deferred[req.name] = req.kind
			if flushTimer == nil {
				flushTimer = time.NewTimer(b.draftMin)
				flushCh = flushTimer.C
			}

		case <-flushCh:
			flushTimer, flushCh = nil, nil
			now := time.Now()
			for name, kind := range deferred {
				delete(deferred, name)
				emitDraft(kind, name, now)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishDraftEvent publishes a throttled draft change. kind is "updated"
// or "deleted".
func (b *Broker) PublishDraftEvent(kind, name string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.draftEventCh <- draftEventReq{kind: kind, name: name}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
