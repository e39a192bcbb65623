// Package bus defines the cross-context message envelope and the port
// abstraction every hop (frame, relay, background executor) talks through.
package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/starford/izy/internal/apperr"
)

// Request types understood by the background executor.
const (
	TypeNotionSearch = "NOTION_SEARCH"
	TypeNotionAppend = "NOTION_APPEND"
)

// ErrClosed is returned by Post on a closed port.
var ErrClosed = errors.New("bus: port closed")

// Message is both the request and the response envelope. Requests carry
// Type and Payload; responses carry Success with Data or Error. RequestID
// is echoed verbatim by every hop.
type Message struct {
	Type      string          `json:"type,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
	Status    int             `json:"status,omitempty"`
}

// IsRequest reports whether m is a request rather than a reply.
func (m Message) IsRequest() bool {
	return m.Type != ""
}

// Err rebuilds the typed error carried by a failure reply. It returns nil
// for successful replies.
func (m Message) Err() error {
	if m.Success {
		return nil
	}
	return apperr.FromEnvelope(m.Code, m.Status, m.Error)
}

// SearchPayload is the payload of a TypeNotionSearch request.
type SearchPayload struct {
	Token string `json:"token"`
	Query string `json:"query"`
}

// AppendPayload is the payload of a TypeNotionAppend request.
type AppendPayload struct {
	Token   string `json:"token"`
	BlockID string `json:"blockId"`
	Text    string `json:"text"`
}

// NewRequest encodes payload into a request message of the given type.
func NewRequest(typ string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Payload: raw}, nil
}

// Reply builds a success envelope for requestID.
func Reply(requestID string, data json.RawMessage) Message {
	return Message{RequestID: requestID, Success: true, Data: data}
}

// Failure builds a failure envelope for requestID carrying err's code and status.
func Failure(requestID string, err error) Message {
	return Message{
		RequestID: requestID,
		Success:   false,
		Error:     failureText(err),
		Code:      apperr.Code(err),
		Status:    apperr.Status(err),
	}
}

func failureText(err error) string {
	var rr *apperr.RemoteRejectedError
	if errors.As(err, &rr) {
		return rr.Message
	}
	return err.Error()
}

// Handler receives inbound messages. It must not block for long.
type Handler func(Message)

// Port is one end of an asynchronous, untrusted message channel with a
// single known peer.
type Port interface {
	// Post sends msg to the peer.
	Post(ctx context.Context, msg Message) error
	// Listen registers h for every inbound message until stop is called.
	Listen(h Handler) (stop func())
}
