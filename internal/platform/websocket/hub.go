// Package websocket pushes ledger changes to connected browsers. Clients
// subscribe to topics and receive every event published on them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event is one change pushed to subscribers.
type Event struct {
	Type       string    `json:"type"`
	Topic      string    `json:"topic"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resourceId,omitempty"`
	PatientID  string    `json:"patientId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Topics events are published on.
const (
	TopicPatients = "patients"
	TopicPayments = "payments"
)

// PatientTopic carries every change touching one patient, including its
// payments.
func PatientTopic(id string) string { return "patient/" + id }

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	hub    *Hub
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.subscribeLocked(client, client.Topics)
}

// Unregister drops the client and closes its Send channel. Unknown clients
// are ignored.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribeLocked(client, topics)
	client.Topics = append(client.Topics, topics...)
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(client, topics)

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
}

// ProcessMessage applies a client's subscribe or unsubscribe request.
// Unknown actions are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	topics := cleanTopics(msg.Topics)
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, topics)
	case "unsubscribe":
		h.Unsubscribe(client, topics)
	}
}

func cleanTopics(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Broadcast sends event to every subscriber of topic. Slow clients with a
// full buffer miss the event.
func (h *Hub) Broadcast(topic string, event Event) {
	event.Topic = topic
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("websocket: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish fans event out to its resource topic and to the owning patient's
// topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	switch event.Resource {
	case "patient":
		h.Broadcast(TopicPatients, event)
	case "payment":
		h.Broadcast(TopicPayments, event)
	}
	if event.PatientID != "" {
		h.Broadcast(PatientTopic(event.PatientID), event)
	}
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Handler upgrades HTTP requests to WebSocket connections on the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler returns a handler accepting browser origins listed in
// allowedOrigins. "*" or an empty list accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// RegisterRoutes mounts GET /ws on g. Role checks belong to g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the connection and subscribes it to the topics in
// the ?topics= query (comma separated).
func (h *Handler) HandleConnect(c echo.Context) error {
	client := &Client{
		ID:     uuid.New().String(),
		Topics: []string{},
		Send:   make(chan []byte, sendBuffer),
		hub:    h.hub,
	}
	if q := c.QueryParam("topics"); q != "" {
		client.Topics = cleanTopics(strings.Split(q, ","))
	}

	// Every event published after the 101 must reach this client.
	h.hub.Register(client)
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.hub.Unregister(client)
		// The upgrader has already written the error response.
		return nil
	}

	logger := zerolog.Ctx(c.Request().Context()).With().Str("ws_client", client.ID).Logger()
	logger.Debug().Strs("topics", client.Topics).Msg("websocket connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws, logger)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn, logger zerolog.Logger) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		logger.Debug().Msg("websocket disconnected")
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
