package models

import "time"

// BanRecord stores a moderation ban. ChannelID nil means a global ban. A user
// is currently banned for a scope iff an open record (UnbannedAt nil) exists
// for it; at most one open record may exist per (user, scope). Unban closes
// the record rather than deleting it, so ban history is retained.
type BanRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	AdminID     uint       `gorm:"not null" json:"admin_id"`
	Reason      string     `gorm:"type:text;not null" json:"reason"`
	ChannelID   *uint      `gorm:"index" json:"channel_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UnbannedAt  *time.Time `json:"unbanned_at,omitempty"`
	UnbannedBy  *uint      `json:"unbanned_by,omitempty"`
	UnbanReason string     `gorm:"type:text" json:"unban_reason,omitempty"`

	User  *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Admin *User `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
}

// TableName specifies the table name for GORM.
func (BanRecord) TableName() string {
	return "ban_records"
}

// Open reports whether the ban is still in effect.
func (b *BanRecord) Open() bool {
	return b.UnbannedAt == nil
}

// Global reports whether the ban applies to every channel.
func (b *BanRecord) Global() bool {
	return b.ChannelID == nil
}
