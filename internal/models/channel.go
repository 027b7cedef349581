package models

import (
	"time"
)

// Channel is a named message scope, the unit of chat partitioning.
// When IsLocked is true only admins and authorized users may post or react;
// when false the authorized-user list is not consulted at all.
type Channel struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"unique;not null" json:"name"`
	Description string     `json:"description"`
	CreatedBy   uint       `gorm:"not null" json:"created_by"`
	IsLocked    bool       `gorm:"default:false" json:"is_locked"`
	LockedBy    *uint      `json:"locked_by,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	AllowPolls  bool       `gorm:"default:true" json:"allow_polls"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	AuthorizedUsers []User `gorm:"many2many:channel_authorizations;" json:"authorized_users,omitempty"`
}

// ChannelAuthorization is the join table backing the per-channel allowlist
// that bypasses a channel lock.
type ChannelAuthorization struct {
	ChannelID uint      `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	GrantedBy uint      `gorm:"not null" json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ChannelAuthorization) TableName() string {
	return "channel_authorizations"
}
