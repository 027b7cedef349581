package repository

import (
	"context"
	"errors"
	"time"

	"commons/internal/models"

	"gorm.io/gorm"
)

// BanRepository defines the interface for ban-record store operations. A ban
// is "open" while unbanned_at is null; unban closes the record instead of
// deleting it, so history is retained.
type BanRepository interface {
	Open(ctx context.Context, ban *models.BanRecord) error
	Close(ctx context.Context, banID, adminID uint, reason string) (*models.BanRecord, error)
	FindOpen(ctx context.Context, userID uint, channelID *uint) (*models.BanRecord, error)
	IsBanned(ctx context.Context, userID, channelID uint) (bool, error)
	ListOpen(ctx context.Context, limit, offset int) ([]*models.BanRecord, error)
	History(ctx context.Context, userID uint) ([]*models.BanRecord, error)
}

type banRepository struct {
	db *gorm.DB
}

// NewBanRepository creates a new ban repository.
func NewBanRepository(db *gorm.DB) BanRepository {
	return &banRepository{db: db}
}

func openScopeQuery(tx *gorm.DB, userID uint, channelID *uint) *gorm.DB {
	q := tx.Model(&models.BanRecord{}).
		Where("user_id = ? AND unbanned_at IS NULL", userID)
	if channelID == nil {
		return q.Where("channel_id IS NULL")
	}
	return q.Where("channel_id = ?", *channelID)
}

// Open creates a ban record. At most one open record may exist per
// (user, scope); a second open attempt for the same scope is rejected with a
// conflict error inside the same transaction that would create the row.
func (r *banRepository) Open(ctx context.Context, ban *models.BanRecord) error {
	if ban.Reason == "" {
		return models.NewValidationError("Ban reason is required")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := openScopeQuery(tx, ban.UserID, ban.ChannelID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return models.NewConflictError("User already has an open ban for this scope")
		}
		if err := tx.Create(ban).Error; err != nil {
			return err
		}
		if ban.ChannelID == nil {
			// Mirror the global ban into the denormalized profile flag.
			return tx.Model(&models.User{}).
				Where("id = ?", ban.UserID).
				Update("is_banned", true).Error
		}
		return nil
	})
}

// Close sets unbanned_at on an open ban record. Closing an already-closed
// record is rejected.
func (r *banRepository) Close(ctx context.Context, banID, adminID uint, reason string) (*models.BanRecord, error) {
	var ban models.BanRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ban, banID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Ban record", banID)
			}
			return err
		}
		if !ban.Open() {
			return models.NewConflictError("Ban record is already closed")
		}

		now := time.Now().UTC()
		ban.UnbannedAt = &now
		ban.UnbannedBy = &adminID
		ban.UnbanReason = reason
		if err := tx.Save(&ban).Error; err != nil {
			return err
		}

		if ban.ChannelID == nil {
			// Clear the profile flag unless another open global ban remains.
			var remaining int64
			if err := openScopeQuery(tx, ban.UserID, nil).Count(&remaining).Error; err != nil {
				return err
			}
			if remaining == 0 {
				return tx.Model(&models.User{}).
					Where("id = ?", ban.UserID).
					Update("is_banned", false).Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ban, nil
}

func (r *banRepository) FindOpen(ctx context.Context, userID uint, channelID *uint) (*models.BanRecord, error) {
	var ban models.BanRecord
	err := openScopeQuery(r.db.WithContext(ctx), userID, channelID).First(&ban).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ban, nil
}

// IsBanned reports whether the user has an open ban scoped globally or to the
// given channel.
func (r *banRepository) IsBanned(ctx context.Context, userID, channelID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BanRecord{}).
		Where("user_id = ? AND unbanned_at IS NULL", userID).
		Where("channel_id IS NULL OR channel_id = ?", channelID).
		Count(&count).Error
	return count > 0, err
}

func (r *banRepository) ListOpen(ctx context.Context, limit, offset int) ([]*models.BanRecord, error) {
	var bans []*models.BanRecord
	err := r.db.WithContext(ctx).
		Where("unbanned_at IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&bans).Error
	return bans, err
}

func (r *banRepository) History(ctx context.Context, userID uint) ([]*models.BanRecord, error) {
	var bans []*models.BanRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bans).Error
	return bans, err
}
