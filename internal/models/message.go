package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Reaction is one emoji and the set of users who reacted with it. A user
// appears at most once per emoji but may react with multiple distinct emojis.
type Reaction struct {
	Emoji   string `json:"emoji"`
	UserIDs []uint `json:"user_ids"`
}

// ReactionList is the JSON-backed reactions column on a message.
type ReactionList []Reaction

// Value implements driver.Valuer for GORM serialization.
func (r ReactionList) Value() (driver.Value, error) {
	if r == nil {
		r = ReactionList{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for GORM deserialization.
func (r *ReactionList) Scan(value interface{}) error {
	if value == nil {
		*r = ReactionList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported reactions column type %T", value)
	}
	if len(data) == 0 {
		*r = ReactionList{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// Has reports whether the user is present in the emoji's user set.
func (r ReactionList) Has(emoji string, userID uint) bool {
	for _, reaction := range r {
		if reaction.Emoji != emoji {
			continue
		}
		for _, id := range reaction.UserIDs {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// Toggle adds the user to the emoji's set, or removes them if already present.
// Empty emoji entries are dropped. Returns true when the reaction was added.
func (r *ReactionList) Toggle(emoji string, userID uint) bool {
	for i := range *r {
		if (*r)[i].Emoji != emoji {
			continue
		}
		for j, id := range (*r)[i].UserIDs {
			if id == userID {
				(*r)[i].UserIDs = append((*r)[i].UserIDs[:j], (*r)[i].UserIDs[j+1:]...)
				if len((*r)[i].UserIDs) == 0 {
					*r = append((*r)[:i], (*r)[i+1:]...)
				}
				return false
			}
		}
		(*r)[i].UserIDs = append((*r)[i].UserIDs, userID)
		return true
	}
	*r = append(*r, Reaction{Emoji: emoji, UserIDs: []uint{userID}})
	return true
}

// Message is a chat message in a channel. Rows are soft-deleted only: DeletedAt
// excludes the message from every read path but the row is never removed.
// AuthorUsername/AuthorAvatar are a denormalized snapshot taken at send time;
// display should prefer a live profile lookup and fall back to the snapshot.
type Message struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ChannelID uint   `gorm:"not null;index:idx_messages_channel_created" json:"channel_id"`
	AuthorID  uint   `gorm:"not null;index" json:"author_id"`
	Content   string `gorm:"type:text;not null" json:"content"`
	ImageURL  string `json:"image_url,omitempty"`

	AuthorUsername string `json:"author_username"`
	AuthorAvatar   string `json:"author_avatar"`

	// Reply-to is a denormalized snapshot, not a live join: the snippet stays
	// as it was when the reply was sent even if the original is later edited.
	ReplyToID      *uint  `json:"reply_to_id,omitempty"`
	ReplyToAuthor  string `json:"reply_to_author,omitempty"`
	ReplyToSnippet string `json:"reply_to_snippet,omitempty"`

	Reactions ReactionList `gorm:"type:json" json:"reactions"`

	Pinned   bool       `gorm:"default:false" json:"pinned"`
	PinnedBy *uint      `json:"pinned_by,omitempty"`
	PinnedAt *time.Time `json:"pinned_at,omitempty"`

	EditedAt  *time.Time     `json:"edited_at,omitempty"`
	CreatedAt time.Time      `gorm:"index:idx_messages_channel_created" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
