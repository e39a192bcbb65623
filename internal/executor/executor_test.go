package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/bus"
	"github.com/starford/izy/internal/correlate"
	"github.com/starford/izy/internal/notion"
)

func newExecutor(t *testing.T, h http.HandlerFunc) *Executor {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(notion.New(notion.Config{Endpoint: srv.URL}), nil)
}

func request(t *testing.T, typ string, payload any) bus.Message {
	t.Helper()
	msg, err := bus.NewRequest(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	msg.RequestID = "req-1"
	return msg
}

func TestHandleSearchSuccess(t *testing.T) {
	e := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results":[{"id":"p1"}]}`))
	})

	reply := e.Handle(context.Background(), request(t, bus.TypeNotionSearch, bus.SearchPayload{Token: "tok", Query: "q"}))
	if !reply.Success || reply.RequestID != "req-1" {
		t.Fatalf("reply = %+v", reply)
	}
	if string(reply.Data) != `{"results":[{"id":"p1"}]}` {
		t.Errorf("data = %s", reply.Data)
	}
}

func TestHandleSearchRejected(t *testing.T) {
	e := newExecutor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","status":401,"message":"Invalid token"}`))
	})

	reply := e.Handle(context.Background(), request(t, bus.TypeNotionSearch, bus.SearchPayload{Token: "bad"}))
	if reply.Success {
		t.Fatal("expected failure")
	}
	if reply.Error != "Invalid token" || reply.Status != 401 || reply.Code != apperr.CodeRemote {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHandleAppend(t *testing.T) {
	var body map[string]any
	e := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/blocks/b-9/children" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"object":"list","results":[]}`))
	})

	reply := e.Handle(context.Background(), request(t, bus.TypeNotionAppend, bus.AppendPayload{Token: "t", BlockID: "b-9", Text: "note"}))
	if !reply.Success {
		t.Fatalf("reply = %+v", reply)
	}
	if children, _ := body["children"].([]any); len(children) != 1 {
		t.Errorf("children = %v", body["children"])
	}
}

func TestHandleUnknownTypeAndBadPayload(t *testing.T) {
	e := newExecutor(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})

	reply := e.Handle(context.Background(), bus.Message{Type: "NOTION_DELETE", RequestID: "x"})
	if reply.Success || reply.RequestID != "x" || reply.Code != apperr.CodeTransport {
		t.Errorf("unknown type reply = %+v", reply)
	}

	reply = e.Handle(context.Background(), bus.Message{Type: bus.TypeNotionSearch, RequestID: "y", Payload: json.RawMessage(`[1,2]`)})
	if reply.Success || reply.RequestID != "y" {
		t.Errorf("bad payload reply = %+v", reply)
	}
}

func TestHandleRecoversFromPanic(t *testing.T) {
	// A nil client panics on use.
	e := New(nil, nil)
	reply := e.Handle(context.Background(), request(t, bus.TypeNotionSearch, bus.SearchPayload{Token: "t"}))
	if reply.Success || reply.RequestID != "req-1" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestServeOverPipe(t *testing.T) {
	e := newExecutor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Forbidden"}`))
	})

	client, server := bus.Pipe()
	defer client.Close()
	stop := e.Serve(context.Background(), server)
	defer stop()

	ch := correlate.New(client)
	defer ch.Close()

	msg, _ := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{Token: "t"})
	_, err := ch.Send(context.Background(), msg)
	var rr *apperr.RemoteRejectedError
	if !errors.As(err, &rr) || rr.Status != http.StatusForbidden || rr.Message != "Forbidden" {
		t.Fatalf("err = %v", err)
	}
}

func TestServeIgnoresReplies(t *testing.T) {
	e := newExecutor(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})
	client, server := bus.Pipe()
	defer client.Close()
	stop := e.Serve(context.Background(), server)

	got := make(chan bus.Message, 1)
	defer client.Listen(func(m bus.Message) { got <- m })()

	_ = client.Post(context.Background(), bus.Reply("r", nil))
	time.Sleep(20 * time.Millisecond)
	stop()

	select {
	case m := <-got:
		t.Fatalf("unexpected message %+v", m)
	default:
	}
}
