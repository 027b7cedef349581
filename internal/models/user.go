// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles recognized by permission checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the profile record for a community member. Profiles are owned by the
// identity service; the chat core reads them and only writes denormalized
// fields (IsBanned, avatar propagation) as a cache-coherency convenience.
type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Username   string         `gorm:"unique;not null" json:"username"`
	AvatarURL  string         `json:"avatar_url"`
	IsVerified bool           `gorm:"default:false" json:"is_verified"`
	Role       string         `gorm:"default:'user'" json:"role"`
	IsBanned   bool           `gorm:"default:false" json:"is_banned"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
