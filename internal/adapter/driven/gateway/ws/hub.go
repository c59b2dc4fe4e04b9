package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Hub tracks one signaling connection per user.
// implements port.RealTimeGateway
type Hub struct {
	mu         sync.RWMutex
	clients    map[domain.UserID]*Client
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Deliver(ctx context.Context, userID domain.UserID, msg domain.Message) error {
	data, err := domain.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUserOffline, userID)
	}
	return client.Send(data)
}

func (h *Hub) Online(userID domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				client.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			old := h.clients[client.userID]
			h.clients[client.userID] = client
			h.mu.Unlock()
			if old != nil && old != client {
				old.Close()
				log.Info().Str("user_id", client.userID.String()).Msg("Replaced existing connection")
			}
			log.Info().Str("user_id", client.userID.String()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			current := h.clients[client.userID] == client
			if current {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()
			client.Close()
			if current {
				log.Info().Str("user_id", client.userID.String()).Msg("Client unregistered")
			}
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}
