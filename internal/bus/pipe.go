package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

const pipeBuffer = 256

// MemoryPort is one end of an in-memory Pipe. Messages posted on one end
// are delivered, in order and asynchronously, to the listeners of the other.
type MemoryPort struct {
	peer  *MemoryPort
	inbox chan Message

	mu        sync.Mutex
	listeners map[uint64]Handler
	nextID    uint64

	closeOnce *sync.Once
	done      chan struct{}
	closed    *atomic.Bool
}

// Pipe returns two connected ports.
func Pipe() (*MemoryPort, *MemoryPort) {
	done := make(chan struct{})
	once := &sync.Once{}
	closed := &atomic.Bool{}

	a := &MemoryPort{inbox: make(chan Message, pipeBuffer), listeners: map[uint64]Handler{}, closeOnce: once, done: done, closed: closed}
	b := &MemoryPort{inbox: make(chan Message, pipeBuffer), listeners: map[uint64]Handler{}, closeOnce: once, done: done, closed: closed}
	a.peer, b.peer = b, a

	go a.run()
	go b.run()
	return a, b
}

func (p *MemoryPort) run() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.inbox:
			p.mu.Lock()
			hs := make([]Handler, 0, len(p.listeners))
			for _, h := range p.listeners {
				hs = append(hs, h)
			}
			p.mu.Unlock()
			for _, h := range hs {
				h(msg)
			}
		}
	}
}

// Post implements Port.
func (p *MemoryPort) Post(ctx context.Context, msg Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	select {
	case p.peer.inbox <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen implements Port.
func (p *MemoryPort) Listen(h Handler) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = h
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Listeners returns the number of registered listeners.
func (p *MemoryPort) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Done is closed once either end of the pipe is closed.
func (p *MemoryPort) Done() <-chan struct{} {
	return p.done
}

// Close shuts down both ends of the pipe.
func (p *MemoryPort) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
	})
	return nil
}
