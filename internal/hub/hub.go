package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topics published by the watch loop
const (
	TopicChanges = "changes"
	TopicErrors  = "errors"
)

// Message is a feed entry fanned out to subscribers
type Message struct {
	ID    string
	Event string
	Topic string
	Time  time.Time
	Data  map[string]string
}

// Client is a feed subscriber
type Client struct {
	ID     string
	Send   chan Message
	Topics map[string]bool
	mu     sync.RWMutex
}

// Hub fans published messages out to registered clients
type Hub struct {
	clients    map[string]*Client
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.RWMutex
}

// New creates a hub; call Run to start delivery
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan Message, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// NewClient creates a client subscribed to topics, or to everything when none are given
func (h *Hub) NewClient(topics ...string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		Send:   make(chan Message, 256),
		Topics: make(map[string]bool),
	}
	for _, topic := range topics {
		c.Subscribe(topic)
	}
	return c
}

// Register registers a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a client and closes its Send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues a message for delivery without blocking the caller.
// Messages are dropped while the queue is full.
func (h *Hub) Publish(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("feed queue full, dropping message", "event", msg.Event, "topic", msg.Topic)
	}
}

// Done is closed when Run returns
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run runs the hub's main loop until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("feed client registered", "client", client.ID, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, exists := h.clients[client.ID]; exists {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Debug("feed client unregistered", "client", client.ID)

		case message := <-h.broadcast:
			h.deliver(message)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// deliver sends message to subscribed clients, dropping slow ones
func (h *Hub) deliver(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		if !client.IsSubscribed(message.Topic) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			// Client buffer full, disconnect slow client
			delete(h.clients, id)
			close(client.Send)
			h.logger.Warn("feed client too slow, disconnected", "client", id)
		}
	}
}

// IsSubscribed checks if client is subscribed to a topic
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If no topics specified, subscribe to all
	if len(c.Topics) == 0 || c.Topics["*"] {
		return true
	}

	return c.Topics[topic]
}

// Subscribe subscribes client to a topic
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Topics[topic] = true
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown closes every client
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
}
