package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"commons/internal/middleware"
	"commons/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// typingDebounce bounds how often one user's typing broadcasts reach the
// channel. Clients re-send while keystrokes continue; anything faster than
// this window is dropped silently.
const typingDebounce = 500 * time.Millisecond

// WebSocketChatHandler returns the websocket endpoint handler. The frame
// protocol is a JSON envelope with a "type" of join, leave, typing, or
// heartbeat, each carrying a channel_id.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("websocket chat: unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		snap, err := s.resolver.Resolve(ctx, userID)
		if err != nil {
			log.Printf("websocket chat: failed to resolve user %d: %v", userID, err)
			_ = conn.Close()
			return
		}

		client, err := s.chatHub.Register(userID, conn)
		if err != nil {
			log.Printf("websocket chat: failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// Channels this connection has joined, for presence withdrawal on
		// disconnect.
		var joinedMu sync.Mutex
		joined := make(map[uint]struct{})

		record := notifications.PresenceRecord{
			UserID:    snap.UserID,
			Username:  snap.Username,
			AvatarURL: snap.AvatarURL,
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var frame struct {
				Type      string `json:"type"`
				ChannelID uint   `json:"channel_id"`
			}
			if err := json.Unmarshal(message, &frame); err != nil {
				log.Printf("websocket chat: invalid frame from user %d", userID)
				return
			}

			switch frame.Type {
			case "join":
				s.handleJoin(ctx, c, frame.ChannelID, record, joined, &joinedMu)
			case "leave":
				s.handleLeave(ctx, c, frame.ChannelID, record, joined, &joinedMu)
			case "typing":
				s.handleTyping(ctx, c, frame.ChannelID, record)
			case "heartbeat":
				s.handleHeartbeat(ctx, c, frame.ChannelID)
			}
		}

		go client.WritePump()
		client.ReadPump()

		// Connection is gone, withdraw presence everywhere it was tracked.
		joinedMu.Lock()
		departed := make([]uint, 0, len(joined))
		for channelID := range joined {
			departed = append(departed, channelID)
		}
		joinedMu.Unlock()

		for _, channelID := range departed {
			if s.chatHub.IsJoined(userID, channelID) {
				// Another device is still viewing the channel.
				continue
			}
			s.withdrawPresence(ctx, channelID, record)
		}
	})
}

func (s *Server) handleJoin(
	ctx context.Context,
	c *notifications.Client,
	channelID uint,
	record notifications.PresenceRecord,
	joined map[uint]struct{},
	joinedMu *sync.Mutex,
) {
	if channelID == 0 {
		return
	}
	if _, err := s.channelRepo.GetByID(ctx, channelID); err != nil {
		s.sendError(c, "channel not found")
		return
	}
	// A banned user may not hold presence in the channel. Locked channels
	// stay readable, so locks do not gate joining.
	banned, err := s.banRepo.IsBanned(ctx, c.UserID, channelID)
	if err != nil || banned {
		s.sendError(c, "cannot join channel")
		return
	}

	first := s.chatHub.JoinChannel(c, channelID)
	joinedMu.Lock()
	joined[channelID] = struct{}{}
	joinedMu.Unlock()

	s.presence.Track(channelID, record)
	if err := s.notifier.TrackPresence(ctx, channelID, c.UserID, s.presenceTTL()); err != nil {
		log.Printf("websocket chat: presence track failed for user %d: %v", c.UserID, err)
	}

	if first {
		s.publishPresence(ctx, channelID, record, "joined")
	}

	// Sync snapshot so the client renders the current roster immediately.
	state := notifications.Event{
		Type:      notifications.EventPresenceState,
		ChannelID: channelID,
		Payload: fiber.Map{
			"users":  s.presence.Present(channelID),
			"typing": s.presence.Typing(channelID),
		},
	}
	if payload, err := json.Marshal(state); err == nil {
		c.TrySend(payload)
	}
}

func (s *Server) handleLeave(
	ctx context.Context,
	c *notifications.Client,
	channelID uint,
	record notifications.PresenceRecord,
	joined map[uint]struct{},
	joinedMu *sync.Mutex,
) {
	if channelID == 0 {
		return
	}
	last := s.chatHub.LeaveChannel(c, channelID)
	joinedMu.Lock()
	delete(joined, channelID)
	joinedMu.Unlock()

	if last {
		s.withdrawPresence(ctx, channelID, record)
	}
}

func (s *Server) handleTyping(ctx context.Context, c *notifications.Client, channelID uint, record notifications.PresenceRecord) {
	if channelID == 0 || !s.chatHub.IsJoined(c.UserID, channelID) {
		return
	}

	// Debounce. Anything above one broadcast per window is dropped.
	id := fmt.Sprintf("user:%d:channel:%d", c.UserID, channelID)
	allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "typing", id, 1, typingDebounce)
	if !allowed {
		return
	}

	s.presence.SetTyping(channelID, c.UserID, record.Username)

	event := notifications.Event{
		Type:     notifications.EventTyping,
		UserID:   c.UserID,
		Username: record.Username,
		Payload:  fiber.Map{"typing": true},
	}
	payload, err := json.Marshal(withChannel(event, channelID))
	if err != nil {
		return
	}
	if err := s.notifier.PublishTyping(ctx, channelID, string(payload)); err != nil {
		log.Printf("websocket chat: typing publish failed: %v", err)
	}
	if s.redis == nil {
		s.dispatchLocal(channelID, payload)
	}
}

func (s *Server) handleHeartbeat(ctx context.Context, c *notifications.Client, channelID uint) {
	if channelID == 0 {
		return
	}
	if !s.presence.Heartbeat(channelID, c.UserID) {
		return
	}
	if err := s.notifier.TrackPresence(ctx, channelID, c.UserID, s.presenceTTL()); err != nil {
		log.Printf("websocket chat: presence refresh failed for user %d: %v", c.UserID, err)
	}
}

func (s *Server) withdrawPresence(ctx context.Context, channelID uint, record notifications.PresenceRecord) {
	s.presence.Untrack(channelID, record.UserID)
	if err := s.notifier.UntrackPresence(ctx, channelID, record.UserID); err != nil {
		log.Printf("websocket chat: presence untrack failed for user %d: %v", record.UserID, err)
	}
	s.publishPresence(ctx, channelID, record, "left")
}

func (s *Server) publishPresence(ctx context.Context, channelID uint, record notifications.PresenceRecord, status string) {
	event := notifications.Event{
		Type:     notifications.EventPresence,
		UserID:   record.UserID,
		Username: record.Username,
		Payload: fiber.Map{
			"status":     status,
			"avatar_url": record.AvatarURL,
		},
	}
	payload, err := json.Marshal(withChannel(event, channelID))
	if err != nil {
		return
	}
	if err := s.notifier.PublishPresence(ctx, channelID, string(payload)); err != nil {
		log.Printf("websocket chat: presence publish failed: %v", err)
	}
	if s.redis == nil {
		s.dispatchLocal(channelID, payload)
	}
}

func (s *Server) sendError(c *notifications.Client, reason string) {
	payload, err := json.Marshal(fiber.Map{"error": reason})
	if err != nil {
		return
	}
	c.TrySend(payload)
}

func (s *Server) presenceTTL() time.Duration {
	return time.Duration(s.config.PresenceTTLSeconds) * time.Second
}

func withChannel(event notifications.Event, channelID uint) notifications.Event {
	event.ChannelID = channelID
	return event
}
