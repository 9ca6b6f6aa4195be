package history

import (
	"context"
	"time"

	"docchat-be/internal/constant"
	"docchat-be/internal/repository/memory"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/llm"

	"github.com/google/uuid"
)

// Loader reads conversation turns for prompting. The message table is
// the source of truth; the cache only holds the latest snapshot so a
// cache miss or eviction is never more than an extra query.
type Loader struct {
	uowFactory unitofwork.RepositoryFactory
	cache      *memory.HistoryCache
	window     int
}

func NewLoader(uowFactory unitofwork.RepositoryFactory, cache *memory.HistoryCache, window int) *Loader {
	if window <= 0 {
		window = constant.DefaultHistoryWindow
	}
	return &Loader{
		uowFactory: uowFactory,
		cache:      cache,
		window:     window,
	}
}

// LoadConversationHistory returns the chat's most recent turns in
// ascending order and refreshes the cache snapshot.
func (l *Loader) LoadConversationHistory(ctx context.Context, chatId uuid.UUID) ([]llm.Message, error) {
	uow := l.uowFactory.NewUnitOfWork(ctx)

	turns, err := uow.MessageRepository().FindAll(ctx,
		specification.ByChatID{ChatID: chatId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.OrderBy{Field: "id", Desc: true},
		specification.Pagination{Limit: l.window},
	)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		messages = append(messages, llm.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	l.cache.Save(&memory.HistorySnapshot{
		ChatId:      chatId,
		Messages:    messages,
		RefreshedAt: time.Now(),
	})

	return messages, nil
}

// PromptWindow trims a history to the turns actually sent to the model.
func PromptWindow(messages []llm.Message) []llm.Message {
	if len(messages) > constant.HistoryPromptLimit {
		return messages[len(messages)-constant.HistoryPromptLimit:]
	}
	return messages
}

// Evict drops the chat's snapshot, e.g. after the chat is deleted.
func (l *Loader) Evict(chatId uuid.UUID) {
	l.cache.Delete(chatId)
}
