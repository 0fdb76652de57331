package ws

import (
	"context"
	"encoding/json"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/pkg/logger"
	"bookingsync-service/pkg/metrics"
)

// Notification is the message pushed to observers. Change notifications are
// content-free: they identify what changed, never carry the changed data.
type Notification struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	ID         int64  `json:"id,omitempty"`
	Op         string `json:"op,omitempty"`
	Seq        int64  `json:"seq,omitempty"`
}

// Hub owns the set of connected observers and fans each change-feed event
// out to all of them. Joins, leaves and deliveries all go through the run
// loop, so the client set needs no lock; deliveries are non-blocking sends
// into per-client buffers, so one stalled observer never delays the rest;
// it just gets disconnected once its buffer is full.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	events     <-chan entity.ChangeEvent
	done       chan struct{}
	log        logger.Logger
	metrics    *metrics.Metrics
}

// NewHub creates a hub consuming the given change-event stream.
func NewHub(events <-chan entity.ChangeEvent, log logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		events:     events,
		done:       make(chan struct{}),
		log:        log,
		metrics:    m,
	}
}

// Run drives the hub until ctx is cancelled or the event stream closes.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.metrics.ObserversConnected.Inc()
			h.log.Info("observer connected", "observer", c.id, "observers", len(h.clients))
			h.deliver(c, Notification{Type: "connected"})

		case c := <-h.unregister:
			h.drop(c)

		case ev, ok := <-h.events:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

// Register adds an observer connection to the hub. After Run has returned
// the connection is refused by closing its send channel, so the write pump
// shuts the socket down.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes an observer connection. Safe to call more than once,
// and a no-op once Run has returned.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcast(ev entity.ChangeEvent) {
	n := Notification{
		Type:       "change",
		Collection: ev.Collection,
		ID:         ev.ID,
		Op:         string(ev.Op),
		Seq:        ev.Seq,
	}
	for c := range h.clients {
		h.deliver(c, n)
	}
}

// deliver queues one notification without blocking. A client whose buffer is
// full is dropped; the notification still reaches everyone else.
func (h *Hub) deliver(c *Client, n Notification) {
	msg, err := json.Marshal(n)
	if err != nil {
		h.log.Error("marshal notification", "error", err)
		return
	}
	select {
	case c.send <- msg:
		h.metrics.NotificationsSent.Inc()
	default:
		h.metrics.NotificationsDropped.Inc()
		h.log.Warn("observer too slow, disconnecting", "observer", c.id)
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.ObserversConnected.Dec()
	h.log.Info("observer disconnected", "observer", c.id, "observers", len(h.clients))
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.drop(c)
	}
}
