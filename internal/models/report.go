package models

import "time"

// Report statuses. A report transitions pending -> resolved|dismissed exactly
// once, by an admin action that also records free-text notes.
const (
	ReportStatusPending   = "pending"
	ReportStatusResolved  = "resolved"
	ReportStatusDismissed = "dismissed"
)

// Report is a user-filed moderation report against a message or a user.
type Report struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	MessageID      *uint      `gorm:"index" json:"message_id,omitempty"`
	ReporterID     uint       `gorm:"not null;index" json:"reporter_id"`
	ReportedUserID uint       `gorm:"not null;index" json:"reported_user_id"`
	Reason         string     `gorm:"type:text;not null" json:"reason"`
	Status         string     `gorm:"default:'pending';index" json:"status"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *uint      `json:"resolved_by,omitempty"`
	Notes          string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
