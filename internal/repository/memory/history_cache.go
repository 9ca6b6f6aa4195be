package memory

import (
	"time"

	"docchat-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// HistorySnapshot is the cached view of a chat's recent turns. It is
// advisory: the message table stays the source of truth and an evicted
// or stale snapshot only costs a reload.
type HistorySnapshot struct {
	ChatId      uuid.UUID
	Messages    []llm.Message
	RefreshedAt time.Time
}

type HistoryCache struct {
	cache *cache.Cache
}

func NewHistoryCache() *HistoryCache {
	// Default expiration of 1 hour, expired entries purged every 10 minutes
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &HistoryCache{
		cache: c,
	}
}

// Save overwrites whatever snapshot is present. Last writer wins.
func (r *HistoryCache) Save(snapshot *HistorySnapshot) {
	r.cache.Set(snapshot.ChatId.String(), snapshot, cache.DefaultExpiration)
}

func (r *HistoryCache) Get(chatId uuid.UUID) (*HistorySnapshot, bool) {
	if x, found := r.cache.Get(chatId.String()); found {
		return x.(*HistorySnapshot), true
	}
	return nil, false
}

func (r *HistoryCache) Delete(chatId uuid.UUID) {
	r.cache.Delete(chatId.String())
}
