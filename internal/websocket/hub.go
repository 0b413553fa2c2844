package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types sent to position sockets.
const (
	TypeSnapshot = "snapshot"
	TypePosition = "position"
)

// Message is the envelope for every frame written to a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PositionUpdate is pushed to a user's sockets after a committed mutation.
type PositionUpdate struct {
	OperationID     string `json:"operation_id"`
	Kind            string `json:"kind"`
	AssetID         string `json:"asset_id"`
	Deposited       string `json:"deposited"`
	DepositedShares string `json:"deposited_shares"`
	Borrowed        string `json:"borrowed"`
	BorrowedShares  string `json:"borrowed_shares"`
}

// Hub fans position updates out to every socket a user has open.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

// NewHub accepts upgrades from the listed origins. With no origins, or "*",
// any origin is accepted.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{clients: make(map[string]map[*Client]struct{})}
	h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// Register returns false once the hub has been shut down.
func (h *Hub) Register(userID string, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	return true
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// BroadcastPosition never blocks: a client whose buffer is full misses the update.
func (h *Hub) BroadcastPosition(userID string, update PositionUpdate) {
	payload, err := json.Marshal(Message{Type: TypePosition, Data: update})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		client.enqueue(payload)
	}
}

// Shutdown sends a close frame to every open socket and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, clients := range h.clients {
		for client := range clients {
			client.closeSend()
		}
		delete(h.clients, userID)
	}
}
