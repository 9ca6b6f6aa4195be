package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of turn authors. Anything else is rejected at
// the boundary by ParseRole.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

type Message struct {
	Id        uuid.UUID
	ChatId    uuid.UUID `gorm:"type:uuid;index"`
	Role      Role
	Content   string
	CreatedAt time.Time
}
