package repository

import (
	"context"
	"errors"
	"time"

	"commons/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelRepository defines the interface for channel store operations.
type ChannelRepository interface {
	Create(ctx context.Context, ch *models.Channel) error
	GetByID(ctx context.Context, id uint) (*models.Channel, error)
	List(ctx context.Context) ([]*models.Channel, error)
	SetLocked(ctx context.Context, id uint, actorID uint, locked bool) (*models.Channel, error)
	AuthorizeUser(ctx context.Context, channelID, userID, grantedBy uint) error
	RevokeUser(ctx context.Context, channelID, userID uint) error
	IsAuthorized(ctx context.Context, channelID, userID uint) (bool, error)
}

type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new channel repository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) Create(ctx context.Context, ch *models.Channel) error {
	return r.db.WithContext(ctx).Create(ch).Error
}

func (r *channelRepository) GetByID(ctx context.Context, id uint) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).
		Preload("AuthorizedUsers").
		First(&ch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Channel", id)
		}
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepository) List(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&channels).Error
	return channels, err
}

// SetLocked flips the lock state, recording locked_by/locked_at on lock and
// clearing both on unlock.
func (r *channelRepository) SetLocked(ctx context.Context, id uint, actorID uint, locked bool) (*models.Channel, error) {
	updates := map[string]interface{}{"is_locked": locked}
	if locked {
		updates["locked_by"] = actorID
		updates["locked_at"] = time.Now().UTC()
	} else {
		updates["locked_by"] = nil
		updates["locked_at"] = nil
	}
	res := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Channel", id)
	}
	return r.GetByID(ctx, id)
}

func (r *channelRepository) AuthorizeUser(ctx context.Context, channelID, userID, grantedBy uint) error {
	auth := models.ChannelAuthorization{
		ChannelID: channelID,
		UserID:    userID,
		GrantedBy: grantedBy,
	}
	// Re-authorizing an already-authorized user is a no-op, not an error.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&auth).Error
}

func (r *channelRepository) RevokeUser(ctx context.Context, channelID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Delete(&models.ChannelAuthorization{}).Error
}

func (r *channelRepository) IsAuthorized(ctx context.Context, channelID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChannelAuthorization{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error
	return count > 0, err
}
