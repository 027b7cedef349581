// Package notifications provides realtime delivery over websockets backed by
// Redis pub/sub for cross-instance fan-out.
package notifications

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"commons/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// Event types carried in the websocket envelope.
const (
	EventMessageCreated = "message_created"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventReactionsSet   = "reactions_updated"
	EventPinChanged     = "pin_changed"
	EventChannelLocked  = "channel_locked"
	EventTyping         = "typing"
	EventPresence       = "presence"
	EventPresenceState  = "presence_state"
)

// Event is the envelope every websocket frame carries.
type Event struct {
	Type      string      `json:"type"`
	ChannelID uint        `json:"channel_id,omitempty"`
	UserID    uint        `json:"user_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ChatHub manages websocket connections keyed by channel. A user may hold
// several connections (multi-device) and may be joined to several channels at
// once; channel membership is tied to connection lifetime.
type ChatHub struct {
	mu sync.RWMutex

	// channelID -> userID -> connected clients for that user
	channels map[uint]map[uint]map[*Client]bool

	// userID -> channels the user is joined to
	userChannels map[uint]map[uint]struct{}

	// userID -> all of the user's clients
	userConns map[uint]map[*Client]bool
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// NewChatHub creates a new ChatHub instance.
func NewChatHub() *ChatHub {
	return &ChatHub{
		channels:     make(map[uint]map[uint]map[*Client]bool),
		userChannels: make(map[uint]map[uint]struct{}),
		userConns:    make(map[uint]map[*Client]bool),
	}
}

// Register attaches a new websocket connection for the user.
func (h *ChatHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]bool)
	}
	if len(h.userConns[userID]) >= maxConnsPerUser {
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = true
	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes one connection. When the user's last connection
// goes, their channel memberships go with it.
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := clients[client]; !present {
		// Already unregistered; must not decrement the gauge twice.
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	observability.WebSocketConnectionsTotal.Dec()

	// Detach this client from every channel it was counted in.
	for channelID := range h.userChannels[client.UserID] {
		if users, ok := h.channels[channelID]; ok {
			delete(users[client.UserID], client)
		}
	}

	if len(clients) > 0 {
		h.mu.Unlock()
		log.Printf("chat hub: unregistered client for user %d (remaining clients: %d)", client.UserID, len(clients))
		return
	}

	// Last connection gone, drop channel memberships.
	delete(h.userConns, client.UserID)
	departed := make([]uint, 0, len(h.userChannels[client.UserID]))
	for channelID := range h.userChannels[client.UserID] {
		departed = append(departed, channelID)
		if users, ok := h.channels[channelID]; ok {
			delete(users, client.UserID)
			if len(users) == 0 {
				delete(h.channels, channelID)
			}
			observability.WebSocketChannelConnections.WithLabelValues(fmt.Sprint(channelID)).Dec()
		}
	}
	delete(h.userChannels, client.UserID)
	h.mu.Unlock()

	log.Printf("chat hub: user %d fully disconnected (left %d channels)", client.UserID, len(departed))
}

// JoinChannel subscribes a client to a channel's events. Returns true if this
// was the user's first presence in the channel (any device).
func (h *ChatHub) JoinChannel(client *Client, channelID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channelID] == nil {
		h.channels[channelID] = make(map[uint]map[*Client]bool)
	}
	first := len(h.channels[channelID][client.UserID]) == 0
	if h.channels[channelID][client.UserID] == nil {
		h.channels[channelID][client.UserID] = make(map[*Client]bool)
	}
	h.channels[channelID][client.UserID][client] = true

	if h.userChannels[client.UserID] == nil {
		h.userChannels[client.UserID] = make(map[uint]struct{})
	}
	h.userChannels[client.UserID][channelID] = struct{}{}

	if first {
		observability.WebSocketChannelConnections.WithLabelValues(fmt.Sprint(channelID)).Inc()
	}
	return first
}

// LeaveChannel unsubscribes a client from a channel. Returns true if the user
// has no remaining connections in the channel.
func (h *ChatHub) LeaveChannel(client *Client, channelID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	users, ok := h.channels[channelID]
	if !ok {
		return false
	}
	delete(users[client.UserID], client)
	if len(users[client.UserID]) > 0 {
		return false
	}
	delete(users, client.UserID)
	if len(users) == 0 {
		delete(h.channels, channelID)
	}
	if chans, ok := h.userChannels[client.UserID]; ok {
		delete(chans, channelID)
	}
	observability.WebSocketChannelConnections.WithLabelValues(fmt.Sprint(channelID)).Dec()
	return true
}

// BroadcastToChannel delivers an event to every client joined to the channel.
func (h *ChatHub) BroadcastToChannel(channelID uint, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("chat hub: marshal %s event: %v", event.Type, err)
		return
	}
	h.BroadcastRawToChannel(channelID, payload)
	observability.WebSocketEventsTotal.WithLabelValues(event.Type).Inc()
}

// BroadcastRawToChannel delivers an already-encoded frame to every client
// joined to the channel. Used by the Redis subscriber, which receives frames
// pre-encoded by the publishing instance.
func (h *ChatHub) BroadcastRawToChannel(channelID uint, payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0)
	for _, clients := range h.channels[channelID] {
		for client := range clients {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.TrySend(payload)
	}
}

// MemberIDs returns the users currently joined to the channel on this
// instance.
func (h *ChatHub) MemberIDs(channelID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uint, 0, len(h.channels[channelID]))
	for userID := range h.channels[channelID] {
		ids = append(ids, userID)
	}
	return ids
}

// IsJoined reports whether the user is joined to the channel on this
// instance.
func (h *ChatHub) IsJoined(userID, channelID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID][userID]) > 0
}

// IsUserOnline reports whether the user has at least one live connection.
func (h *ChatHub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}
