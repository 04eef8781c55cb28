package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/metrics"
)

// Message types
const (
	MessageTypeGameResult      = "game_result"
	MessageTypeStandingsUpdate = "standings_update"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypeSubscribed      = "subscribed"
	MessageTypeUnsubscribed    = "unsubscribed"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	League    string      `json:"league,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StandingsUpdate contains a standings table for broadcast. Week 0 is the
// season table.
type StandingsUpdate struct {
	League    domain.League     `json:"league"`
	Week      int               `json:"week"`
	Standings []domain.Standing `json:"standings"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Subscribed clients by league
	clients map[domain.League]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu      sync.RWMutex
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	league domain.League
}

// NewHub creates a new Hub
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[domain.League]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		metrics:     m,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebsocketConnections(n)
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for league, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, league)
						}
					}
				}
				close(client.send)
			}
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebsocketConnections(n)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			// a client that already disconnected must not be re-added
			if h.allClients[req.client] {
				if _, ok := h.clients[req.league]; !ok {
					h.clients[req.league] = make(map[*Client]bool)
				}
				h.clients[req.league][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "league", req.league)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.league]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.league)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "league", req.league)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the clients subscribed to its league
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients[domain.League(message.League)] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastGameResult sends a synced game row to the league's subscribers
func (h *Hub) BroadcastGameResult(result domain.GameResult) {
	h.enqueue(&Message{
		Type:      MessageTypeGameResult,
		League:    string(result.League),
		Data:      result,
		Timestamp: time.Now(),
	})
}

// BroadcastStandings sends a standings table to the league's subscribers
func (h *Hub) BroadcastStandings(league domain.League, week int, standings []domain.Standing) {
	h.enqueue(&Message{
		Type:   MessageTypeStandingsUpdate,
		League: string(league),
		Data: StandingsUpdate{
			League:    league,
			Week:      week,
			Standings: standings,
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub. It returns without registering once
// the hub is stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a league subscription
func (h *Hub) Subscribe(client *Client, league domain.League) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, league: league}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a league subscription
func (h *Hub) Unsubscribe(client *Client, league domain.League) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, league: league}:
	case <-h.ctx.Done():
	}
}

// SubscriberCount returns the number of subscribers for a league
func (h *Hub) SubscriberCount(league domain.League) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[league])
}

// TotalConnections returns the number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
