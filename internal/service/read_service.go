package service

import (
	"context"
	"time"

	"commons/internal/models"
	"commons/internal/repository"
)

// UnreadState is the read-state summary for one channel and viewer.
type UnreadState struct {
	ChannelID   uint  `json:"channel_id"`
	UnreadCount int64 `json:"unread_count"`
	MarkerID    *uint `json:"marker_id,omitempty"`
}

// ReadService tracks per-user channel read markers and derives unread counts
// and the "new messages" divider position from them.
type ReadService struct {
	readRepo    repository.ReadStateRepository
	messageRepo repository.MessageRepository
}

// NewReadService returns a new ReadService.
func NewReadService(readRepo repository.ReadStateRepository, messageRepo repository.MessageRepository) *ReadService {
	return &ReadService{readRepo: readRepo, messageRepo: messageRepo}
}

// MarkRead upserts the viewer's read marker to now, recording the newest
// message in the channel. Idempotent, repeated calls replace the marker
// instead of accumulating rows.
func (s *ReadService) MarkRead(ctx context.Context, channelID, userID uint) (*models.ChannelRead, error) {
	read := &models.ChannelRead{
		ChannelID:  channelID,
		UserID:     userID,
		LastReadAt: time.Now().UTC(),
	}

	newest, err := s.messageRepo.NewestInChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if newest != nil {
		read.LastReadMessageID = &newest.ID
		// The marker must cover the newest message even if its server-assigned
		// timestamp is ahead of our clock.
		if newest.CreatedAt.After(read.LastReadAt) {
			read.LastReadAt = newest.CreatedAt
		}
	}

	if err := s.readRepo.Upsert(ctx, read); err != nil {
		return nil, err
	}
	return read, nil
}

// UnreadCount counts messages newer than the viewer's read marker, excluding
// the viewer's own messages. With no marker the whole history is unread.
func (s *ReadService) UnreadCount(ctx context.Context, channelID, userID uint) (int64, error) {
	since, err := s.lastReadAt(ctx, channelID, userID)
	if err != nil {
		return 0, err
	}
	return s.messageRepo.CountAfter(ctx, channelID, since, userID)
}

// UnreadMarker returns the id of the first message after the viewer's read
// marker, where the "new messages" divider renders. With no marker the
// oldest message in the channel is the divider position. Nil means nothing
// is unread (or the channel is empty).
func (s *ReadService) UnreadMarker(ctx context.Context, channelID, userID uint) (*uint, error) {
	since, err := s.lastReadAt(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	first, err := s.messageRepo.FirstAfter(ctx, channelID, since)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, nil
	}
	id := first.ID
	return &id, nil
}

// UnreadSummary returns the unread state for every channel the viewer has a
// read marker for.
func (s *ReadService) UnreadSummary(ctx context.Context, userID uint) ([]UnreadState, error) {
	reads, err := s.readRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]UnreadState, 0, len(reads))
	for _, read := range reads {
		count, err := s.messageRepo.CountAfter(ctx, read.ChannelID, read.LastReadAt, userID)
		if err != nil {
			return nil, err
		}
		state := UnreadState{ChannelID: read.ChannelID, UnreadCount: count}
		if count > 0 {
			first, err := s.messageRepo.FirstAfter(ctx, read.ChannelID, read.LastReadAt)
			if err != nil {
				return nil, err
			}
			if first != nil {
				id := first.ID
				state.MarkerID = &id
			}
		}
		out = append(out, state)
	}
	return out, nil
}

func (s *ReadService) lastReadAt(ctx context.Context, channelID, userID uint) (time.Time, error) {
	read, err := s.readRepo.Get(ctx, channelID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if read == nil {
		return time.Time{}, nil
	}
	return read.LastReadAt, nil
}
