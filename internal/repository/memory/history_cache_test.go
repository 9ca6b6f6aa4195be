package memory

import (
	"testing"
	"time"

	"docchat-be/pkg/llm"

	"github.com/google/uuid"
)

func TestHistoryCacheSaveGet(t *testing.T) {
	c := NewHistoryCache()
	chatId := uuid.New()

	if _, found := c.Get(chatId); found {
		t.Fatal("unexpected hit on empty cache")
	}

	snap := &HistorySnapshot{
		ChatId:      chatId,
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		RefreshedAt: time.Now(),
	}
	c.Save(snap)

	got, found := c.Get(chatId)
	if !found {
		t.Fatal("expected hit after Save")
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("snapshot = %+v", got.Messages)
	}
}

func TestHistoryCacheLastWriterWins(t *testing.T) {
	c := NewHistoryCache()
	chatId := uuid.New()

	c.Save(&HistorySnapshot{ChatId: chatId, Messages: []llm.Message{{Role: "user", Content: "old"}}})
	c.Save(&HistorySnapshot{ChatId: chatId, Messages: []llm.Message{{Role: "user", Content: "new"}}})

	got, found := c.Get(chatId)
	if !found {
		t.Fatal("expected hit")
	}
	if got.Messages[0].Content != "new" {
		t.Errorf("content = %q, want latest write", got.Messages[0].Content)
	}
}

func TestHistoryCacheDelete(t *testing.T) {
	c := NewHistoryCache()
	chatId := uuid.New()

	c.Save(&HistorySnapshot{ChatId: chatId})
	c.Delete(chatId)

	if _, found := c.Get(chatId); found {
		t.Error("snapshot survived Delete")
	}
}
