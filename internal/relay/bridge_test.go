package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/bus"
	"github.com/starford/izy/internal/correlate"
)

type stubSender struct {
	mu   sync.Mutex
	got  []bus.Message
	data json.RawMessage
	err  error
	wait time.Duration
}

func (s *stubSender) Send(ctx context.Context, msg bus.Message) (json.RawMessage, error) {
	s.mu.Lock()
	s.got = append(s.got, msg)
	s.mu.Unlock()
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.data, s.err
}

// attachFrame wires a bridge to one end of a pipe and returns a correlated
// channel on the other end, the way a sandboxed frame would talk to it.
func attachFrame(t *testing.T, b *Bridge) *correlate.Channel {
	t.Helper()
	frame, bridgeSide := bus.Pipe()
	t.Cleanup(func() { frame.Close() })
	detach := b.Attach(bridgeSide)
	t.Cleanup(detach)
	ch := correlate.New(frame, correlate.WithTimeout(time.Second))
	t.Cleanup(ch.Close)
	return ch
}

func TestForwardsTypeAndPayloadVerbatim(t *testing.T) {
	up := &stubSender{data: json.RawMessage(`{"results":[]}`)}
	ch := attachFrame(t, New(up, 0, nil))

	msg, _ := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{Token: "tok", Query: "q"})
	data, err := ch.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(data) != `{"results":[]}` {
		t.Errorf("data = %s", data)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.got) != 1 {
		t.Fatalf("upstream got %d messages", len(up.got))
	}
	fwd := up.got[0]
	if fwd.Type != bus.TypeNotionSearch || string(fwd.Payload) != string(msg.Payload) {
		t.Errorf("forwarded %+v", fwd)
	}
	if fwd.RequestID != "" {
		t.Errorf("frame request id leaked upstream: %q", fwd.RequestID)
	}
}

func TestUpstreamFailureIsRelayed(t *testing.T) {
	up := &stubSender{err: &apperr.RemoteRejectedError{Status: 401, Message: "Invalid token"}}
	ch := attachFrame(t, New(up, 0, nil))

	msg, _ := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{Token: "bad"})
	_, err := ch.Send(context.Background(), msg)
	var rr *apperr.RemoteRejectedError
	if !errors.As(err, &rr) || rr.Status != 401 || rr.Message != "Invalid token" {
		t.Fatalf("err = %v", err)
	}
}

func TestNoResponseFromBackground(t *testing.T) {
	up := &stubSender{wait: time.Second}
	ch := attachFrame(t, New(up, 30*time.Millisecond, nil))

	msg, _ := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{})
	_, err := ch.Send(context.Background(), msg)
	if !errors.Is(err, apperr.ErrTimeout) || !strings.Contains(err.Error(), NoResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestIgnoresUntypedMessages(t *testing.T) {
	up := &stubSender{}
	frame, bridgeSide := bus.Pipe()
	defer frame.Close()
	detach := New(up, 0, nil).Attach(bridgeSide)

	replies := make(chan bus.Message, 1)
	defer frame.Listen(func(m bus.Message) { replies <- m })()

	_ = frame.Post(context.Background(), bus.Message{RequestID: "r1", Success: true})
	time.Sleep(20 * time.Millisecond)
	detach()

	select {
	case m := <-replies:
		t.Fatalf("unexpected reply %+v", m)
	default:
	}
	if len(up.got) != 0 {
		t.Errorf("upstream saw %d messages", len(up.got))
	}
}
