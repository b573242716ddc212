package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/clients"
	"github.com/mohammed-shakir/offline-asset-cache/internal/strategy"
)

// Event is one of Install, Activate, Fetch, Message, Push or NotificationClick.
type Event interface{ isEvent() }

type Install struct{}

type Activate struct{}

// Fetch is an intercepted request.
type Fetch struct {
	Method  string
	Request strategy.Request
}

// FetchFromHTTP wraps an inbound request.
func FetchFromHTTP(r *http.Request) Fetch {
	return Fetch{Method: r.Method, Request: strategy.FromHTTP(r)}
}

// Message is a control-channel command.
type Message struct {
	Type    string `json:"type"`
	ModelID string `json:"modelId,omitempty"`
}

const (
	MsgClearCaches = "CLEAR_CACHES"
	MsgCacheModel  = "CACHE_MODEL"
	MsgSkipWaiting = "SKIP_WAITING"
)

var ErrUnknownMessage = errors.New("controller: unknown message type")

// ParseMessage decodes a control payload and checks its type.
func ParseMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode control message: %w", err)
	}
	switch m.Type {
	case MsgClearCaches, MsgCacheModel, MsgSkipWaiting:
		return m, nil
	default:
		return m, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
}

// Push is an inbound push payload; every field is optional.
type Push struct {
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
	PrimaryKey string `json:"primaryKey,omitempty"`
}

type NotificationClick struct {
	Action string `json:"action,omitempty"`
}

func (Install) isEvent()           {}
func (Activate) isEvent()          {}
func (Fetch) isEvent()             {}
func (Message) isEvent()           {}
func (Push) isEvent()              {}
func (NotificationClick) isEvent() {}

// Action is what the caller must do with the outcome of an event.
type Action interface{ isAction() }

type Respond struct {
	Response *cache.Response
	Source   strategy.Source
}

// PassThrough means the request is not intercepted and goes to the origin as-is.
type PassThrough struct{}

type Broadcast struct {
	Message   clients.Message
	Delivered int
}

type Noop struct {
	Reason string
}

type OpenWindow struct {
	URL      string
	Focus    bool
	ClientID string
}

func (Respond) isAction()     {}
func (PassThrough) isAction() {}
func (Broadcast) isAction()   {}
func (Noop) isAction()        {}
func (OpenWindow) isAction()  {}
