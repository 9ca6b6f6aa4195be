package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateChatRequest struct {
	Title string `json:"title"`
}

type CreateChatResponse struct {
	Id    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type RenameChatRequest struct {
	ChatId uuid.UUID `json:"chat_id" validate:"required"`
	Title  string    `json:"title"`
}

type RenameChatResponse struct {
	Id    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type GetAllChatsResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type GetChatHistoryResponse struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// StreamChatRequest starts a conversation turn. ChatId is optional: when
// absent a chat is created and titled from the message.
type StreamChatRequest struct {
	ChatId  *uuid.UUID `json:"chat_id"`
	Message string     `json:"message" validate:"required"`
	TopK    int        `json:"top_k" validate:"omitempty,min=1"`
}

// StreamChatResult is what the orchestrator reports after the stream has
// ended. It never travels as a JSON body; the controller has already
// written the increments.
type StreamChatResult struct {
	ChatId     uuid.UUID
	Answer     string
	ChunksUsed int
	Persisted  bool
}

type DeleteChatRequest struct {
	ChatId uuid.UUID `json:"chat_id"`
}
