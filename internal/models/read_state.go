package models

import "time"

// ChannelRead is the per-user-per-channel last-read marker. Rows are created
// on first visit and upserted idempotently on every mark-as-read trigger.
type ChannelRead struct {
	ChannelID         uint      `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	UserID            uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	LastReadAt        time.Time `json:"last_read_at"`
	LastReadMessageID *uint     `json:"last_read_message_id,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ChannelRead) TableName() string {
	return "channel_reads"
}
