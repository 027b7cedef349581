// Package repository contains the store adapters for the chat core.
package repository

import (
	"context"
	"errors"
	"time"

	"commons/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for message store operations.
// Messages are only ever soft-deleted: every read path excludes rows with
// deleted_at set, but the rows themselves are never removed.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	GetPage(ctx context.Context, channelID uint, cursor *uint, pageSize int) ([]*models.Message, bool, error)
	SoftDelete(ctx context.Context, id uint) error
	UpdateContent(ctx context.Context, id uint, content string) (*models.Message, error)
	ToggleReaction(ctx context.Context, id uint, emoji string, userID uint) (*models.Message, bool, error)
	SetPinned(ctx context.Context, id uint, pinnedBy uint, pinned bool) (*models.Message, error)
	NewestInChannel(ctx context.Context, channelID uint) (*models.Message, error)
	CountAfter(ctx context.Context, channelID uint, after time.Time, excludeAuthor uint) (int64, error)
	FirstAfter(ctx context.Context, channelID uint, after time.Time) (*models.Message, error)
	RefreshAuthorSnapshots(ctx context.Context, authorID uint, username, avatar string) error
	GetPinned(ctx context.Context, channelID uint) ([]*models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.Reactions == nil {
		msg.Reactions = models.ReactionList{}
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetPage returns up to pageSize non-deleted messages for the channel, newest
// first. Without a cursor it returns the most recent page; with a cursor it
// returns messages strictly older than the cursor message. hasMore is the
// full-page heuristic: a channel holding an exact multiple of pageSize costs
// one extra fetch that comes back empty, which callers treat as "no more".
func (r *messageRepository) GetPage(ctx context.Context, channelID uint, cursor *uint, pageSize int) ([]*models.Message, bool, error) {
	q := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID)

	if cursor != nil {
		var pivot models.Message
		// Unscoped: the cursor may point at a message deleted since it was
		// loaded; its (created_at, id) position is still a valid boundary.
		if err := r.db.WithContext(ctx).Unscoped().First(&pivot, *cursor).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, models.NewNotFoundError("Message", *cursor)
			}
			return nil, false, err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)",
			pivot.CreatedAt, pivot.CreatedAt, pivot.ID)
	}

	var messages []*models.Message
	err := q.Order("created_at DESC, id DESC").
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, false, err
	}

	hasMore := len(messages) == pageSize
	return messages, hasMore, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Message{}, id).Error
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uint, content string) (*models.Message, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "edited_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Message", id)
	}
	return r.GetByID(ctx, id)
}

// ToggleReaction adds or removes the user's reaction inside a transaction
// holding a row lock, so two concurrent toggles cannot clobber each other's
// snapshot of the reactions column. Returns the updated message and whether
// the reaction was added (false means toggled off).
func (r *messageRepository) ToggleReaction(ctx context.Context, id uint, emoji string, userID uint) (*models.Message, bool, error) {
	var msg models.Message
	var added bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		// sqlite has no row locks; its whole-database write lock inside the
		// transaction gives the same guarantee.
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&msg, id).Error; err != nil {
			return err
		}

		reactions := msg.Reactions
		added = reactions.Toggle(emoji, userID)
		msg.Reactions = reactions

		return tx.Model(&models.Message{}).
			Where("id = ?", id).
			Update("reactions", reactions).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &msg, added, nil
}

func (r *messageRepository) SetPinned(ctx context.Context, id uint, pinnedBy uint, pinned bool) (*models.Message, error) {
	updates := map[string]interface{}{"pinned": pinned}
	if pinned {
		updates["pinned_by"] = pinnedBy
		updates["pinned_at"] = time.Now().UTC()
	} else {
		updates["pinned_by"] = nil
		updates["pinned_at"] = nil
	}
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Message", id)
	}
	return r.GetByID(ctx, id)
}

func (r *messageRepository) NewestInChannel(ctx context.Context, channelID uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// CountAfter counts non-deleted messages newer than `after`, skipping the
// viewer's own messages (a user's own messages never count as unread).
func (r *messageRepository) CountAfter(ctx context.Context, channelID uint, after time.Time, excludeAuthor uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("channel_id = ? AND created_at > ? AND author_id <> ?", channelID, after, excludeAuthor).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) FirstAfter(ctx context.Context, channelID uint, after time.Time) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND created_at > ?", channelID, after).
		Order("created_at ASC, id ASC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// RefreshAuthorSnapshots propagates a profile change into the denormalized
// author fields of the user's historical messages (best-effort coherency;
// the profile row stays the source of truth).
func (r *messageRepository) RefreshAuthorSnapshots(ctx context.Context, authorID uint, username, avatar string) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("author_id = ?", authorID).
		Updates(map[string]interface{}{
			"author_username": username,
			"author_avatar":   avatar,
		}).Error
}

func (r *messageRepository) GetPinned(ctx context.Context, channelID uint) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND pinned = ?", channelID, true).
		Order("pinned_at DESC").
		Find(&messages).Error
	return messages, err
}
