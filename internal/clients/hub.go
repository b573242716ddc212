// Package clients tracks the viewer pages connected to the controller and
// delivers broadcast messages to them.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/offline-asset-cache/internal/logger"
)

// Message is anything the controller posts to clients. Type is the
// discriminator also sent as the "type" JSON field.
type Message interface {
	MessageType() string
}

// Sink receives a copy of every broadcast (e.g. a Kafka topic).
type Sink interface {
	Publish(typ string, payload []byte)
}

// Frame is one encoded message as queued for a client.
type Frame struct {
	Type string
	Data []byte
}

type Client struct {
	ID string

	frames     chan Frame
	done       chan struct{}
	once       sync.Once
	controlled bool
}

// Frames yields queued messages. Stop reading once Done is closed.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Done is closed when the hub drops the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() { c.once.Do(func() { close(c.done) }) }

type Option func(*Hub)

// WithBuffer sets the per-client queue length. A client whose queue is full
// is disconnected rather than allowed to block a broadcast.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buf = n
		}
	}
}

func WithSink(s Sink) Option {
	return func(h *Hub) { h.sink = s }
}

type Hub struct {
	logger  *slog.Logger
	buf     int
	sink    Sink
	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub(l *slog.Logger, opts ...Option) *Hub {
	if l == nil {
		l = slog.Default()
	}
	h := &Hub{logger: l, buf: 32, clients: map[string]*Client{}}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds a client. An empty id gets a generated one; re-registering
// an id replaces (and disconnects) the previous connection.
func (h *Hub) Register(id string) *Client {
	if id == "" {
		id = logger.NewID()
	}
	c := &Client{ID: id, frames: make(chan Frame, h.buf), done: make(chan struct{})}

	h.mu.Lock()
	old := h.clients[id]
	h.clients[id] = c
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	h.logger.Debug("client connected", "client", id)
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()
	c.close()
	h.logger.Debug("client disconnected", "client", c.ID)
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	cs := h.clients
	h.clients = map[string]*Client{}
	h.mu.Unlock()
	for _, c := range cs {
		c.close()
	}
}

// Claim marks every connected client as controlled and returns how many there are.
func (h *Hub) Claim() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.controlled = true
	}
	return len(h.clients)
}

// Controlled reports how many connected clients have been claimed.
func (h *Hub) Controlled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.clients {
		if c.controlled {
			n++
		}
	}
	return n
}

// Broadcast enqueues msg once for every connected client and returns the
// number of clients it was queued for.
func (h *Hub) Broadcast(ctx context.Context, msg Message) (int, error) {
	f, err := encode(msg)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	delivered := 0
	var slow []*Client
	for id, c := range h.clients {
		select {
		case c.frames <- f:
			delivered++
		default:
			delete(h.clients, id)
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		c.close()
		h.logger.WarnContext(ctx, "dropping slow client", "client", c.ID, "type", f.Type)
	}
	if h.sink != nil {
		h.sink.Publish(f.Type, f.Data)
	}
	h.logger.DebugContext(ctx, "broadcast", "type", f.Type, "clients", delivered)
	return delivered, nil
}

// Send delivers msg to one client; it reports false if the client is gone.
func (h *Hub) Send(id string, msg Message) (bool, error) {
	f, err := encode(msg)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	c, ok := h.clients[id]
	h.mu.Unlock()
	if !ok {
		return false, nil
	}
	select {
	case c.frames <- f:
		return true, nil
	default:
		return false, nil
	}
}

// Any returns some connected client, preferring a controlled one.
func (h *Hub) Any() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var fallback string
	for id, c := range h.clients {
		if c.controlled {
			return id, true
		}
		fallback = id
	}
	return fallback, fallback != ""
}

func encode(msg Message) (Frame, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s message: %w", msg.MessageType(), err)
	}
	return Frame{Type: msg.MessageType(), Data: b}, nil
}
