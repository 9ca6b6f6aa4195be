package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/repository/contract"
	"docchat-be/internal/repository/memory"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/answer"
	"docchat-be/pkg/rag/history"
	"docchat-be/pkg/rag/retriever"
	"docchat-be/pkg/rag/rewriter"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type noopLogger struct{}

func (noopLogger) Debug(string, string, map[string]interface{}) {}
func (noopLogger) Info(string, string, map[string]interface{})  {}
func (noopLogger) Warn(string, string, map[string]interface{})  {}
func (noopLogger) Error(string, string, map[string]interface{}) {}
func (noopLogger) Sync() error                                  { return nil }

type fakeLLM struct {
	chatReply string
	chatErr   error
	chatCalls int

	deltas     []string
	streamErr  error
	streamSent []llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	f.chatCalls++
	return f.chatReply, f.chatErr
}

func (f *fakeLLM) ChatStream(ctx context.Context, history []llm.Message, onDelta llm.DeltaFunc, _ ...llm.Option) error {
	f.streamSent = history
	for _, d := range f.deltas {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

type fakeEmbedder struct {
	lastQuery string
	err       error
}

func (f *fakeEmbedder) Generate(text string, _ string) (*embedding.EmbeddingResponse, error) {
	f.lastQuery = text
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.1, 0.2, 0.3}},
	}, nil
}

// memStore is shared by every unit of work the fake factory hands out.
type memStore struct {
	chats    map[uuid.UUID]*entity.Chat
	docs     map[uuid.UUID]*entity.Document
	messages []*entity.Message
	scored   []*contract.ScoredChunk

	chunkDeletes []uuid.UUID

	failCommit    bool
	failMsgCreate bool
}

func newMemStore() *memStore {
	return &memStore{
		chats: make(map[uuid.UUID]*entity.Chat),
		docs:  make(map[uuid.UUID]*entity.Document),
	}
}

type fakeFactory struct{ store *memStore }

func (f *fakeFactory) NewUnitOfWork(_ context.Context) unitofwork.UnitOfWork {
	return &fakeUow{store: f.store}
}

type fakeUow struct {
	store *memStore
}

func (u *fakeUow) Begin(context.Context) error { return nil }
func (u *fakeUow) Commit() error {
	if u.store.failCommit {
		return errors.New("commit refused")
	}
	return nil
}
func (u *fakeUow) Rollback() error { return nil }

func (u *fakeUow) ChatRepository() contract.ChatRepository {
	return &fakeChatRepo{store: u.store}
}
func (u *fakeUow) MessageRepository() contract.MessageRepository {
	return &fakeMessageRepo{store: u.store}
}
func (u *fakeUow) DocumentRepository() contract.DocumentRepository {
	return &fakeDocRepo{store: u.store}
}
func (u *fakeUow) DocumentChunkRepository() contract.DocumentChunkRepository {
	return &fakeChunkRepo{store: u.store}
}

type fakeChatRepo struct{ store *memStore }

func (r *fakeChatRepo) Create(_ context.Context, chat *entity.Chat) error {
	cp := *chat
	r.store.chats[chat.Id] = &cp
	return nil
}

func (r *fakeChatRepo) Update(_ context.Context, chat *entity.Chat) error {
	cp := *chat
	r.store.chats[chat.Id] = &cp
	return nil
}

func (r *fakeChatRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.store.chats, id)
	return nil
}

func (r *fakeChatRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Chat, error) {
	var id, owner *uuid.UUID
	for _, s := range specs {
		switch v := s.(type) {
		case specification.ByID:
			vid := v.ID
			id = &vid
		case specification.OwnedBy:
			vuid := v.UserID
			owner = &vuid
		}
	}
	if id == nil {
		return nil, nil
	}
	chat, ok := r.store.chats[*id]
	if !ok {
		return nil, nil
	}
	if owner != nil && chat.UserId != *owner {
		return nil, nil
	}
	cp := *chat
	return &cp, nil
}

func (r *fakeChatRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Chat, error) {
	var owner *uuid.UUID
	for _, s := range specs {
		if v, ok := s.(specification.OwnedBy); ok {
			vuid := v.UserID
			owner = &vuid
		}
	}
	var out []*entity.Chat
	for _, chat := range r.store.chats {
		if owner != nil && chat.UserId != *owner {
			continue
		}
		cp := *chat
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeChatRepo) Count(context.Context, ...specification.Specification) (int64, error) {
	return int64(len(r.store.chats)), nil
}

type fakeMessageRepo struct{ store *memStore }

func (r *fakeMessageRepo) Create(_ context.Context, m *entity.Message) error {
	if r.store.failMsgCreate {
		return errors.New("insert refused")
	}
	cp := *m
	r.store.messages = append(r.store.messages, &cp)
	return nil
}

func (r *fakeMessageRepo) DeleteByChatId(_ context.Context, chatId uuid.UUID) error {
	kept := r.store.messages[:0]
	for _, m := range r.store.messages {
		if m.ChatId != chatId {
			kept = append(kept, m)
		}
	}
	r.store.messages = kept
	return nil
}

func (r *fakeMessageRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	var chatId *uuid.UUID
	desc := false
	limit := 0
	for _, s := range specs {
		switch v := s.(type) {
		case specification.ByChatID:
			vid := v.ChatID
			chatId = &vid
		case specification.OrderBy:
			desc = v.Desc
		case specification.Pagination:
			limit = v.Limit
		}
	}
	var out []*entity.Message
	for _, m := range r.store.messages {
		if chatId != nil && m.ChatId != *chatId {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) Count(context.Context, ...specification.Specification) (int64, error) {
	return int64(len(r.store.messages)), nil
}

type fakeChunkRepo struct{ store *memStore }

func (r *fakeChunkRepo) Create(context.Context, *entity.DocumentChunk) error { return nil }
func (r *fakeChunkRepo) CreateBulk(context.Context, []*entity.DocumentChunk) error {
	return nil
}
func (r *fakeChunkRepo) DeleteByDocumentId(_ context.Context, documentId uuid.UUID) error {
	r.store.chunkDeletes = append(r.store.chunkDeletes, documentId)
	return nil
}
func (r *fakeChunkRepo) FindAll(context.Context, ...specification.Specification) ([]*entity.DocumentChunk, error) {
	return nil, nil
}
func (r *fakeChunkRepo) Count(context.Context, ...specification.Specification) (int64, error) {
	return 0, nil
}
func (r *fakeChunkRepo) SearchSimilarWithScore(context.Context, []float32, int, uuid.UUID, float64) ([]*contract.ScoredChunk, error) {
	return r.store.scored, nil
}

// ---- harness ----

type harness struct {
	svc      IChatService
	store    *memStore
	provider *fakeLLM
	embedder *fakeEmbedder
	cache    *memory.HistoryCache
}

func newHarness(rewriteFallback bool) *harness {
	store := newMemStore()
	factory := &fakeFactory{store: store}
	provider := &fakeLLM{}
	embedder := &fakeEmbedder{}
	cache := memory.NewHistoryCache()

	svc := NewChatService(
		factory,
		history.NewLoader(factory, cache, 20),
		rewriter.NewRewriter(provider),
		retriever.NewRetriever(embedder, factory, 0.0),
		answer.NewGenerator(provider, 0.2),
		cache,
		nil,
		noopLogger{},
		3,
		rewriteFallback,
	)

	return &harness{svc: svc, store: store, provider: provider, embedder: embedder, cache: cache}
}

func (h *harness) messagesFor(chatId uuid.UUID, role entity.Role) []*entity.Message {
	var out []*entity.Message
	for _, m := range h.store.messages {
		if m.ChatId == chatId && m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func (h *harness) seedChat(userId uuid.UUID, title string) uuid.UUID {
	id := uuid.New()
	h.store.chats[id] = &entity.Chat{Id: id, UserId: userId, Title: title, CreatedAt: time.Now().Add(-time.Hour)}
	return id
}

func (h *harness) seedMessage(chatId uuid.UUID, role entity.Role, content string, at time.Time) {
	h.store.messages = append(h.store.messages, &entity.Message{
		Id: uuid.New(), ChatId: chatId, Role: role, Content: content, CreatedAt: at,
	})
}

func collectEmitter(parts *[]string) StreamEmitter {
	return func(delta string) error {
		*parts = append(*parts, delta)
		return nil
	}
}

// ---- BeginTurn ----

func TestBeginTurnCreatesChatTitledFromMessage(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()

	turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{
		Message: "please tell me everything about the new laptop return policy today",
	})
	require.NoError(t, err)

	assert.True(t, turn.CreatedChat)
	assert.Equal(t, "please tell me everything about the new laptop", turn.ChatTitle)
	assert.Empty(t, turn.History)

	chat, ok := h.store.chats[turn.ChatId]
	require.True(t, ok, "chat must be persisted")
	assert.Equal(t, userId, chat.UserId)

	userTurns := h.messagesFor(turn.ChatId, entity.RoleUser)
	require.Len(t, userTurns, 1, "user turn must be durable before generation")
	assert.Equal(t, "please tell me everything about the new laptop return policy today", userTurns[0].Content)
}

func TestBeginTurnExistingChatLoadsPriorHistoryOnly(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Laptops")
	base := time.Now().Add(-time.Minute)
	h.seedMessage(chatId, entity.RoleUser, "tell me about laptops", base)
	h.seedMessage(chatId, entity.RoleAssistant, "we sell laptops", base.Add(time.Second))

	turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{
		ChatId:  &chatId,
		Message: "what about returns?",
	})
	require.NoError(t, err)

	assert.False(t, turn.CreatedChat)
	require.Len(t, turn.History, 2, "history must hold prior turns only")
	assert.Equal(t, "tell me about laptops", turn.History[0].Content)
	assert.Equal(t, "we sell laptops", turn.History[1].Content)

	require.Len(t, h.messagesFor(chatId, entity.RoleUser), 2)
}

func TestBeginTurnForeignChatIsNotFoundAndWritesNothing(t *testing.T) {
	h := newHarness(true)
	owner := uuid.New()
	intruder := uuid.New()
	chatId := h.seedChat(owner, "Private")

	_, err := h.svc.BeginTurn(context.Background(), intruder, &dto.StreamChatRequest{
		ChatId:  &chatId,
		Message: "let me in",
	})
	assert.ErrorIs(t, err, rag.ErrChatNotFound)
	assert.Empty(t, h.store.messages, "a rejected turn must leave no writes")
}

func TestBeginTurnRejectsBlankMessage(t *testing.T) {
	h := newHarness(true)

	_, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "   "})
	assert.Error(t, err)
	assert.Empty(t, h.store.chats)
}

func TestBeginTurnCommitFailureIsPersistenceFailure(t *testing.T) {
	h := newHarness(true)
	h.store.failCommit = true

	_, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, rag.ErrPersistenceFailure)
}

// ---- StreamReply ----

func TestStreamReplyGroundedHappyPath(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	h.store.scored = []*contract.ScoredChunk{
		{
			Chunk:         &entity.DocumentChunk{Id: uuid.New(), Text: "Returns accepted within 30 days."},
			DocumentTitle: "Returns FAQ",
			Similarity:    0.92,
		},
	}
	h.provider.deltas = []string{"You can ", "return items ", "within 30 days."}

	turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{Message: "what is the return policy?"})
	require.NoError(t, err)

	var parts []string
	result, err := h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err)

	assert.Equal(t, "You can return items within 30 days.", strings.Join(parts, ""))
	assert.Equal(t, result.Answer, strings.Join(parts, ""))
	assert.Equal(t, 1, result.ChunksUsed)
	assert.True(t, result.Persisted)

	// The grounded prompt carries the retrieved context.
	last := h.provider.streamSent[len(h.provider.streamSent)-1]
	assert.Contains(t, last.Content, "Returns accepted within 30 days.")
	assert.Contains(t, last.Content, "Question: what is the return policy?")

	assistant := h.messagesFor(turn.ChatId, entity.RoleAssistant)
	require.Len(t, assistant, 1, "exactly one assistant turn")
	assert.Equal(t, "You can return items within 30 days.", assistant[0].Content)

	snap, found := h.cache.Get(turn.ChatId)
	require.True(t, found, "snapshot refreshed after the turn")
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "assistant", snap.Messages[1].Role)
}

func TestStreamReplyEmptyIndexAnswersUngrounded(t *testing.T) {
	h := newHarness(true)
	h.store.scored = nil
	h.provider.deltas = []string{"I don't have documents about that."}

	turn, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "anything on file?"})
	require.NoError(t, err)

	var parts []string
	result, err := h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err)

	assert.Equal(t, 0, result.ChunksUsed)
	assert.True(t, result.Persisted)

	// No context block: the model sees the bare utterance.
	last := h.provider.streamSent[len(h.provider.streamSent)-1]
	assert.Equal(t, "anything on file?", last.Content)
}

func TestStreamReplyEngineDeadBeforeFirstIncrement(t *testing.T) {
	h := newHarness(true)
	h.provider.streamErr = errors.New("connection refused")

	turn, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "hello?"})
	require.NoError(t, err)

	var parts []string
	_, err = h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	assert.ErrorIs(t, err, rag.ErrEngineUnavailable)

	assert.Empty(t, parts)
	assert.Empty(t, h.messagesFor(turn.ChatId, entity.RoleAssistant), "no empty assistant turn")
	require.Len(t, h.messagesFor(turn.ChatId, entity.RoleUser), 1, "user turn survives")
}

func TestStreamReplyEngineDiesMidStreamKeepsPartial(t *testing.T) {
	h := newHarness(true)
	h.provider.deltas = []string{"The return pol"}
	h.provider.streamErr = errors.New("upstream reset")

	turn, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "returns?"})
	require.NoError(t, err)

	var parts []string
	result, err := h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err, "a started stream ends quietly")

	assert.Equal(t, "The return pol", result.Answer)
	assert.True(t, result.Persisted)

	assistant := h.messagesFor(turn.ChatId, entity.RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, "The return pol", assistant[0].Content)
}

func TestStreamReplyClientGoneStillPersistsPartial(t *testing.T) {
	h := newHarness(true)
	h.provider.deltas = []string{"part one ", "part two ", "never delivered"}

	turn, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "long answer please"})
	require.NoError(t, err)

	gone := errors.New("broken pipe")
	var delivered int
	result, err := h.svc.StreamReply(context.Background(), turn, func(delta string) error {
		delivered++
		if delivered == 2 {
			return gone
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "part one part two ", result.Answer)
	assistant := h.messagesFor(turn.ChatId, entity.RoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, "part one part two ", assistant[0].Content)
}

func TestStreamReplyRewriteUsedForRetrievalOnly(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Laptops")
	base := time.Now().Add(-time.Minute)
	h.seedMessage(chatId, entity.RoleUser, "tell me about laptops", base)
	h.seedMessage(chatId, entity.RoleAssistant, "we sell laptops", base.Add(time.Second))

	h.provider.chatReply = "laptop return policy"
	h.provider.deltas = []string{"Thirty days."}

	turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{
		ChatId:  &chatId,
		Message: "what about returns?",
	})
	require.NoError(t, err)

	var parts []string
	_, err = h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err)

	assert.Equal(t, 1, h.provider.chatCalls, "one rewrite round trip")
	assert.Equal(t, "laptop return policy", h.embedder.lastQuery, "index searched with the rewritten query")

	// The generation prompt still carries the user's own words.
	last := h.provider.streamSent[len(h.provider.streamSent)-1]
	assert.Contains(t, last.Content, "what about returns?")
	assert.NotContains(t, last.Content, "laptop return policy")
}

func TestStreamReplyRewriteFailureFallsBackToRawUtterance(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Laptops")
	h.seedMessage(chatId, entity.RoleUser, "earlier turn", time.Now().Add(-time.Minute))

	h.provider.chatErr = errors.New("rewrite model down")
	h.provider.deltas = []string{"Best effort answer."}

	turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{
		ChatId:  &chatId,
		Message: "what about returns?",
	})
	require.NoError(t, err)

	var parts []string
	result, err := h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err)

	assert.Equal(t, "what about returns?", h.embedder.lastQuery)
	assert.True(t, result.Persisted)
}

func TestStreamReplyRewriteFailureSurfacesWithoutFallback(t *testing.T) {
	h := newHarness(false)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Laptops")
	h.seedMessage(chatId, entity.RoleUser, "earlier turn", time.Now().Add(-time.Minute))

	h.provider.chatErr = errors.New("rewrite model down")

	turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{
		ChatId:  &chatId,
		Message: "what about returns?",
	})
	require.NoError(t, err)

	_, err = h.svc.StreamReply(context.Background(), turn, collectEmitter(&[]string{}))
	assert.ErrorIs(t, err, rag.ErrRetrievalUnavailable)
	assert.Empty(t, h.messagesFor(chatId, entity.RoleAssistant))
}

func TestStreamReplyWhitespaceOnlyAnswerNotPersisted(t *testing.T) {
	h := newHarness(true)
	h.provider.deltas = []string{"  ", "\n", "\t "}

	turn, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "hello"})
	require.NoError(t, err)

	var parts []string
	result, err := h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err)

	assert.False(t, result.Persisted)
	assert.Empty(t, h.messagesFor(turn.ChatId, entity.RoleAssistant), "blank output must not become a turn")
}

func TestStreamReplyCacheEvictionDoesNotChangePersistedTurns(t *testing.T) {
	// The snapshot is advisory: dropping it before a turn must yield the
	// exact same persisted conversation.
	run := func(evict bool) []string {
		h := newHarness(true)
		userId := uuid.New()
		chatId := h.seedChat(userId, "Laptops")
		base := time.Now().Add(-time.Minute)
		h.seedMessage(chatId, entity.RoleUser, "tell me about laptops", base)
		h.seedMessage(chatId, entity.RoleAssistant, "we sell laptops", base.Add(time.Second))
		h.provider.deltas = []string{"Thirty days."}

		h.cache.Save(&memory.HistorySnapshot{
			ChatId: chatId,
			Messages: []llm.Message{
				{Role: "user", Content: "tell me about laptops"},
				{Role: "assistant", Content: "we sell laptops"},
			},
		})
		if evict {
			h.cache.Delete(chatId)
		}

		turn, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{
			ChatId:  &chatId,
			Message: "what about returns?",
		})
		require.NoError(t, err)
		require.Len(t, turn.History, 2, "history reloaded from the store")

		_, err = h.svc.StreamReply(context.Background(), turn, collectEmitter(&[]string{}))
		require.NoError(t, err)

		persisted, err := h.svc.GetChatHistory(context.Background(), userId, chatId)
		require.NoError(t, err)

		out := make([]string, 0, len(persisted))
		for _, m := range persisted {
			out = append(out, m.Role+": "+m.Content)
		}
		return out
	}

	warm := run(false)
	cold := run(true)
	require.Len(t, cold, 4)
	assert.Equal(t, warm, cold)
}

func TestStreamReplyPersistFailureDoesNotBreakStream(t *testing.T) {
	h := newHarness(true)
	h.provider.deltas = []string{"answer text"}

	turn, err := h.svc.BeginTurn(context.Background(), uuid.New(), &dto.StreamChatRequest{Message: "hello"})
	require.NoError(t, err)

	h.store.failMsgCreate = true

	var parts []string
	result, err := h.svc.StreamReply(context.Background(), turn, collectEmitter(&parts))
	require.NoError(t, err, "a failed finalize never surfaces to the stream")

	assert.Equal(t, "answer text", result.Answer)
	assert.False(t, result.Persisted)
}

// ---- conversational CRUD ----

func TestConcurrentFirstTurnsGetDistinctChats(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()

	a, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{Message: "first question"})
	require.NoError(t, err)
	b, err := h.svc.BeginTurn(context.Background(), userId, &dto.StreamChatRequest{Message: "second question"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ChatId, b.ChatId, "turns without a chat id never share a chat")
	assert.Len(t, h.store.chats, 2)
}

func TestRenameChatBlankTitleKeepsExisting(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Original")

	res, err := h.svc.RenameChat(context.Background(), userId, &dto.RenameChatRequest{ChatId: chatId, Title: "   "})
	require.NoError(t, err)
	assert.Equal(t, "Original", res.Title)

	res, err = h.svc.RenameChat(context.Background(), userId, &dto.RenameChatRequest{ChatId: chatId, Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", res.Title)
	assert.Equal(t, "Renamed", h.store.chats[chatId].Title)
}

func TestDeleteChatRemovesMessagesAndSnapshot(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Doomed")
	h.seedMessage(chatId, entity.RoleUser, "hello", time.Now())
	h.cache.Save(&memory.HistorySnapshot{ChatId: chatId})

	require.NoError(t, h.svc.DeleteChat(context.Background(), userId, chatId))

	assert.NotContains(t, h.store.chats, chatId)
	assert.Empty(t, h.store.messages)
	_, found := h.cache.Get(chatId)
	assert.False(t, found, "snapshot evicted on delete")
}

func TestDeleteChatForeignOwnerRejected(t *testing.T) {
	h := newHarness(true)
	owner := uuid.New()
	chatId := h.seedChat(owner, "Private")

	err := h.svc.DeleteChat(context.Background(), uuid.New(), chatId)
	assert.ErrorIs(t, err, rag.ErrChatNotFound)
	assert.Contains(t, h.store.chats, chatId)
}

func TestGetChatHistoryAscending(t *testing.T) {
	h := newHarness(true)
	userId := uuid.New()
	chatId := h.seedChat(userId, "Chat")
	base := time.Now().Add(-time.Minute)
	h.seedMessage(chatId, entity.RoleUser, "q1", base)
	h.seedMessage(chatId, entity.RoleAssistant, "a1", base.Add(time.Second))
	h.seedMessage(chatId, entity.RoleUser, "q2", base.Add(2*time.Second))

	got, err := h.svc.GetChatHistory(context.Background(), userId, chatId)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "q1", got[0].Content)
	assert.Equal(t, "a1", got[1].Content)
	assert.Equal(t, "q2", got[2].Content)
}

func TestTitleFromUtterance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short question", "short question"},
		{"one two three four five six seven eight nine ten", "one two three four five six seven eight"},
		{"  spaced   out   words  ", "spaced out words"},
	}
	for _, tt := range tests {
		if got := titleFromUtterance(tt.in); got != tt.want {
			t.Errorf("titleFromUtterance(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
