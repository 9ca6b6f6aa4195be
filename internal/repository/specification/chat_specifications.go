package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByChatID filters message rows to one chat.
type ByChatID struct {
	ChatID uuid.UUID
}

func (s ByChatID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_id = ?", s.ChatID)
}

// OwnedBy filters rows to one user. Ownership checks always pair this
// with ByID so a foreign id comes back as not-found, never as forbidden.
type OwnedBy struct {
	UserID uuid.UUID
}

func (s OwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}
