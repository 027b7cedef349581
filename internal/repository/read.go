package repository

import (
	"context"
	"errors"
	"time"

	"commons/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadStateRepository defines the interface for per-user channel read marker
// operations.
type ReadStateRepository interface {
	Upsert(ctx context.Context, read *models.ChannelRead) error
	Get(ctx context.Context, channelID, userID uint) (*models.ChannelRead, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.ChannelRead, error)
}

type readStateRepository struct {
	db *gorm.DB
}

// NewReadStateRepository creates a new read-state repository.
func NewReadStateRepository(db *gorm.DB) ReadStateRepository {
	return &readStateRepository{db: db}
}

// Upsert records the read marker, creating the row on first read of a channel
// and replacing the timestamp on subsequent reads. Marking read is always
// idempotent.
func (r *readStateRepository) Upsert(ctx context.Context, read *models.ChannelRead) error {
	read.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at", "last_read_message_id", "updated_at"}),
	}).Create(read).Error
}

func (r *readStateRepository) Get(ctx context.Context, channelID, userID uint) (*models.ChannelRead, error) {
	var read models.ChannelRead
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&read).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &read, nil
}

func (r *readStateRepository) ListForUser(ctx context.Context, userID uint) ([]*models.ChannelRead, error) {
	var reads []*models.ChannelRead
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&reads).Error
	return reads, err
}
