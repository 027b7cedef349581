package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"commons/internal/models"
	"commons/internal/notifications"
	"commons/internal/timeline"
)

// publishChannelEvent fans an event out to the channel's websocket clients.
// Local clients are reached through Redis pub/sub like everyone else's, which
// keeps single-instance and multi-instance delivery on one code path. Without
// Redis the frame is dispatched locally.
func (s *Server) publishChannelEvent(channelID uint, event notifications.Event) {
	event.ChannelID = channelID
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", event.Type, err)
		return
	}

	if s.redis == nil {
		s.dispatchLocal(channelID, payload)
		return
	}
	if err := s.notifier.PublishChat(context.Background(), channelID, string(payload)); err != nil {
		log.Printf("failed to publish %s event to channel %d: %v", event.Type, channelID, err)
		// Degrade to local delivery so this instance's clients still hear it.
		s.dispatchLocal(channelID, payload)
	}
}

// dispatchLocal delivers an encoded frame to this instance: message events
// fold into the channel's warm timeline view first, then every joined
// websocket client gets the frame. The Redis subscriber and the no-Redis
// degrade path both land here.
func (s *Server) dispatchLocal(channelID uint, payload []byte) {
	s.applyToTimeline(channelID, payload)
	s.chatHub.BroadcastRawToChannel(channelID, payload)
}

// messagePatch mirrors the field-wise payloads of message change events. Nil
// fields were absent from the payload and leave the view entry untouched.
type messagePatch struct {
	ID        uint                 `json:"id"`
	Content   *string              `json:"content"`
	EditedAt  *time.Time           `json:"edited_at"`
	Reactions *models.ReactionList `json:"reactions"`
	Pinned    *bool                `json:"pinned"`
	PinnedBy  *uint                `json:"pinned_by"`
	PinnedAt  *time.Time           `json:"pinned_at"`
	Deleted   bool                 `json:"deleted"`
}

// applyToTimeline merges a message event into the channel's warm view so the
// newest page stays ordered and current between store reads. Inserts arriving
// out of order land at their (created_at, id) position; duplicates are
// ignored. Typing and presence frames pass through untouched.
func (s *Server) applyToTimeline(channelID uint, payload []byte) {
	var frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return
	}

	switch frame.Type {
	case notifications.EventMessageCreated:
		var msg models.Message
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			log.Printf("timeline: bad %s payload for channel %d: %v", frame.Type, channelID, err)
			return
		}
		s.timelines.ApplyInsert(channelID, &msg)

	case notifications.EventMessageUpdated, notifications.EventReactionsSet, notifications.EventPinChanged:
		var patch messagePatch
		if err := json.Unmarshal(frame.Payload, &patch); err != nil {
			log.Printf("timeline: bad %s payload for channel %d: %v", frame.Type, channelID, err)
			return
		}
		s.timelines.ApplyUpdate(channelID, timeline.Update{
			ID:        patch.ID,
			Content:   patch.Content,
			EditedAt:  patch.EditedAt,
			Reactions: patch.Reactions,
			Pinned:    patch.Pinned,
			PinnedBy:  patch.PinnedBy,
			PinnedAt:  patch.PinnedAt,
		})

	case notifications.EventMessageDeleted:
		var patch messagePatch
		if err := json.Unmarshal(frame.Payload, &patch); err != nil {
			return
		}
		s.timelines.ApplyDelete(channelID, patch.ID)
	}
}
