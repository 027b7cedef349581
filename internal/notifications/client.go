package notifications

import (
	"log"
	"sync/atomic"
	"time"

	"commons/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	maxConnsPerUser = 8
)

// gapNotice tells the client its stream lost frames. The expected reaction is
// a re-fetch of the latest page rather than rendering a silent gap.
var gapNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// WSHub is the minimal surface a client needs from its hub.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	Hub WSHub

	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	UserID uint

	// Callback for handling incoming frames.
	IncomingHandler func(*Client, []byte)

	// Set when backpressure dropped a frame. The write pump turns it into
	// a single gap notice once the buffer drains, so repeated drops do not
	// pile up notices.
	gapped atomic.Bool
}

// NewClient creates a new Client instance.
func NewClient(hub WSHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}
}

// ReadPump pumps frames from the websocket connection into IncomingHandler.
// Runs until the connection drops, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ReadPump error (user %d): %v", c.UserID, err)
			}
			break
		}

		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

// WritePump pumps messages from the Send channel to the websocket connection
// and keeps the connection alive with periodic pings. When backpressure has
// dropped frames, it appends one gap notice after the buffer drains.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

			if len(c.Send) == 0 && c.gapped.CompareAndSwap(true, false) {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.Conn.WriteMessage(websocket.TextMessage, gapNotice); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend attempts to deliver a message without blocking. Dropping on a full
// buffer is deliberate: a slow consumer must not stall the hub. The drop is
// flagged so the write pump can tell the client to re-fetch.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
		log.Printf("client %d (%s): buffer full, dropped frame", c.UserID, c.Hub.Name())
		c.gapped.Store(true)
	}
}
