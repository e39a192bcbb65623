package wsport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/izy/internal/api"
	"github.com/starford/izy/internal/bus"
	"github.com/starford/izy/internal/correlate"
)

// echoServer answers every request with its own payload.
func echoServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	attach := func(p bus.Port) func() {
		return p.Listen(func(msg bus.Message) {
			if msg.IsRequest() {
				_ = p.Post(context.Background(), bus.Reply(msg.RequestID, msg.Payload))
			}
		})
	}
	srv := httptest.NewServer(Handler(attach, nil))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRoundTripOverWebsocket(t *testing.T) {
	_, url := echoServer(t)

	conn, err := Dial(context.Background(), url, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	ch := correlate.New(conn, correlate.WithTimeout(2*time.Second))
	defer ch.Close()

	req, err := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{Token: "t", Query: "road"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := ch.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got bus.SearchPayload
	if err := json.Unmarshal(data, &got); err != nil || got.Query != "road" {
		t.Fatalf("echo = %s, %v", data, err)
	}
}

func TestDialRejectedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil, 5*time.Second, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("4xx answer was retried")
	}
}

func TestDialSendsBearerToken(t *testing.T) {
	attach := func(p bus.Port) func() {
		return p.Listen(func(msg bus.Message) {
			if msg.IsRequest() {
				_ = p.Post(context.Background(), bus.Reply(msg.RequestID, msg.Payload))
			}
		})
	}
	srv := httptest.NewServer(api.AuthMiddleware(true, "secret")(Handler(attach, nil)))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, err := Dial(context.Background(), url, nil, time.Second, nil); err == nil {
		t.Fatal("dial without token succeeded")
	}
	if _, err := Dial(context.Background(), url, BearerHeader("wrong"), time.Second, nil); err == nil {
		t.Fatal("dial with wrong token succeeded")
	}

	conn, err := Dial(context.Background(), url, BearerHeader("secret"), time.Second, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	ch := correlate.New(conn, correlate.WithTimeout(2*time.Second))
	defer ch.Close()
	req, err := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{Query: "auth"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Send(context.Background(), req); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestBearerHeader(t *testing.T) {
	if h := BearerHeader(""); h != nil {
		t.Errorf("empty token header = %v", h)
	}
	if got := BearerHeader("tok").Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestPostAfterClose(t *testing.T) {
	_, url := echoServer(t)
	conn, err := Dial(context.Background(), url, nil, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	if err := conn.Post(context.Background(), bus.Message{Type: "x"}); err != bus.ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
