package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docchat-be/internal/constant"
	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	pktNats "docchat-be/pkg/nats"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/access"
	"docchat-be/pkg/rag/answer"
	"docchat-be/pkg/rag/history"
	"docchat-be/pkg/rag/retriever"
	"docchat-be/pkg/rag/rewriter"

	"github.com/google/uuid"
)

// StreamEmitter receives answer increments as the model produces them.
// Returning an error stops generation; whatever was emitted so far is
// still finalized.
type StreamEmitter func(delta string) error

// TurnContext carries a validated, durable user turn between BeginTurn
// and StreamReply. The user message is already committed by the time a
// TurnContext exists.
type TurnContext struct {
	ChatId      uuid.UUID
	ChatTitle   string
	UserId      uuid.UUID
	Utterance   string
	TopK        int
	History     []llm.Message // prior turns, ascending, without this utterance
	CreatedChat bool
}

type IChatService interface {
	CreateChat(ctx context.Context, userId uuid.UUID, req *dto.CreateChatRequest) (*dto.CreateChatResponse, error)
	GetAllChats(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllChatsResponse, error)
	GetChatHistory(ctx context.Context, userId uuid.UUID, chatId uuid.UUID) ([]*dto.GetChatHistoryResponse, error)
	RenameChat(ctx context.Context, userId uuid.UUID, req *dto.RenameChatRequest) (*dto.RenameChatResponse, error)
	DeleteChat(ctx context.Context, userId uuid.UUID, chatId uuid.UUID) error

	BeginTurn(ctx context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*TurnContext, error)
	StreamReply(ctx context.Context, turn *TurnContext, emit StreamEmitter) (*dto.StreamChatResult, error)
}

type chatService struct {
	uowFactory      unitofwork.RepositoryFactory
	historyLoader   *history.Loader
	queryRewriter   *rewriter.Rewriter
	chunkRetriever  *retriever.Retriever
	answerGenerator *answer.Generator
	historyCache    *memory.HistoryCache
	eventPublisher  *pktNats.Publisher
	accessVerifier  *access.Verifier
	logger          logger.ILogger
	defaultTopK     int
	rewriteFallback bool
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	historyLoader *history.Loader,
	queryRewriter *rewriter.Rewriter,
	chunkRetriever *retriever.Retriever,
	answerGenerator *answer.Generator,
	historyCache *memory.HistoryCache,
	eventPublisher *pktNats.Publisher,
	log logger.ILogger,
	defaultTopK int,
	rewriteFallback bool,
) IChatService {
	if defaultTopK < constant.MinTopK {
		defaultTopK = constant.DefaultTopK
	}
	return &chatService{
		uowFactory:      uowFactory,
		historyLoader:   historyLoader,
		queryRewriter:   queryRewriter,
		chunkRetriever:  chunkRetriever,
		answerGenerator: answerGenerator,
		historyCache:    historyCache,
		eventPublisher:  eventPublisher,
		accessVerifier:  access.NewVerifier(),
		logger:          log,
		defaultTopK:     defaultTopK,
		rewriteFallback: rewriteFallback,
	}
}

func (s *chatService) CreateChat(ctx context.Context, userId uuid.UUID, req *dto.CreateChatRequest) (*dto.CreateChatResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Chat"
	}

	chat := entity.Chat{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		CreatedAt: time.Now(),
	}

	if err := uow.ChatRepository().Create(ctx, &chat); err != nil {
		return nil, fmt.Errorf("%w: create chat: %v", rag.ErrPersistenceFailure, err)
	}

	s.publishEvent(ctx, events.ChatCreated, map[string]interface{}{
		"chat_id": chat.Id,
		"user_id": userId,
		"title":   chat.Title,
	})

	return &dto.CreateChatResponse{
		Id:    chat.Id,
		Title: chat.Title,
	}, nil
}

func (s *chatService) GetAllChats(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllChatsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	chats, err := uow.ChatRepository().FindAll(ctx,
		specification.OwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.GetAllChatsResponse, 0, len(chats))
	for _, chat := range chats {
		res = append(res, &dto.GetAllChatsResponse{
			Id:        chat.Id,
			Title:     chat.Title,
			CreatedAt: chat.CreatedAt,
			UpdatedAt: chat.UpdatedAt,
		})
	}
	return res, nil
}

func (s *chatService) GetChatHistory(ctx context.Context, userId uuid.UUID, chatId uuid.UUID) ([]*dto.GetChatHistoryResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := s.accessVerifier.VerifyChatOwner(ctx, uow, userId, chatId); err != nil {
		return nil, err
	}

	turns, err := uow.MessageRepository().FindAll(ctx,
		specification.ByChatID{ChatID: chatId},
		specification.OrderBy{Field: "created_at", Desc: false},
		specification.OrderBy{Field: "id", Desc: false}, // stable tie-break
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.GetChatHistoryResponse, 0, len(turns))
	for _, turn := range turns {
		res = append(res, &dto.GetChatHistoryResponse{
			Id:        turn.Id,
			Role:      string(turn.Role),
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		})
	}
	return res, nil
}

func (s *chatService) RenameChat(ctx context.Context, userId uuid.UUID, req *dto.RenameChatRequest) (*dto.RenameChatResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	chat, err := s.accessVerifier.VerifyChatOwner(ctx, uow, userId, req.ChatId)
	if err != nil {
		return nil, err
	}

	// A blank title keeps the existing one rather than erasing it.
	title := strings.TrimSpace(req.Title)
	if title != "" && title != chat.Title {
		now := time.Now()
		chat.Title = title
		chat.UpdatedAt = &now
		if err := uow.ChatRepository().Update(ctx, chat); err != nil {
			return nil, fmt.Errorf("%w: rename chat: %v", rag.ErrPersistenceFailure, err)
		}
	}

	return &dto.RenameChatResponse{
		Id:    chat.Id,
		Title: chat.Title,
	}, nil
}

func (s *chatService) DeleteChat(ctx context.Context, userId uuid.UUID, chatId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := s.accessVerifier.VerifyChatOwner(ctx, uow, userId, chatId); err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("%w: begin delete: %v", rag.ErrPersistenceFailure, err)
	}
	defer uow.Rollback()

	if err := uow.MessageRepository().DeleteByChatId(ctx, chatId); err != nil {
		return fmt.Errorf("%w: delete messages: %v", rag.ErrPersistenceFailure, err)
	}
	if err := uow.ChatRepository().Delete(ctx, chatId); err != nil {
		return fmt.Errorf("%w: delete chat: %v", rag.ErrPersistenceFailure, err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", rag.ErrPersistenceFailure, err)
	}

	s.historyLoader.Evict(chatId)

	s.publishEvent(ctx, events.ChatDeleted, map[string]interface{}{
		"chat_id": chatId,
		"user_id": userId,
	})
	return nil
}

// BeginTurn validates the request, resolves or creates the chat, and
// commits the user turn. Once it returns, the user message survives
// whatever happens to the generation that follows.
func (s *chatService) BeginTurn(ctx context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*TurnContext, error) {
	utterance := strings.TrimSpace(req.Message)
	if utterance == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	topK := req.TopK
	if topK < constant.MinTopK {
		topK = s.defaultTopK
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	var chat *entity.Chat
	createdChat := false

	if req.ChatId != nil {
		existing, err := s.accessVerifier.VerifyChatOwner(ctx, uow, userId, *req.ChatId)
		if err != nil {
			return nil, err
		}
		chat = existing
	} else {
		chat = &entity.Chat{
			Id:        uuid.New(),
			UserId:    userId,
			Title:     titleFromUtterance(utterance),
			CreatedAt: time.Now(),
		}
		createdChat = true
	}

	// Prior turns are read before the new utterance is written, so the
	// prompt history never contains the turn we are about to answer.
	var priorHistory []llm.Message
	if !createdChat {
		loaded, err := s.historyLoader.LoadConversationHistory(ctx, chat.Id)
		if err != nil {
			return nil, err
		}
		priorHistory = loaded
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("%w: begin turn: %v", rag.ErrPersistenceFailure, err)
	}
	defer uow.Rollback()

	if createdChat {
		if err := uow.ChatRepository().Create(ctx, chat); err != nil {
			return nil, fmt.Errorf("%w: create chat: %v", rag.ErrPersistenceFailure, err)
		}
	}

	userTurn := entity.Message{
		Id:        uuid.New(),
		ChatId:    chat.Id,
		Role:      entity.RoleUser,
		Content:   utterance,
		CreatedAt: time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, &userTurn); err != nil {
		return nil, fmt.Errorf("%w: persist user turn: %v", rag.ErrPersistenceFailure, err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit user turn: %v", rag.ErrPersistenceFailure, err)
	}

	if createdChat {
		s.publishEvent(ctx, events.ChatCreated, map[string]interface{}{
			"chat_id": chat.Id,
			"user_id": userId,
			"title":   chat.Title,
		})
	}

	return &TurnContext{
		ChatId:      chat.Id,
		ChatTitle:   chat.Title,
		UserId:      userId,
		Utterance:   utterance,
		TopK:        topK,
		History:     priorHistory,
		CreatedChat: createdChat,
	}, nil
}

// StreamReply runs the retrieval pipeline and streams the grounded
// answer through emit. The assistant turn is persisted exactly once,
// and only when at least one increment was produced, even if the
// caller's context is already cancelled by then.
func (s *chatService) StreamReply(ctx context.Context, turn *TurnContext, emit StreamEmitter) (*dto.StreamChatResult, error) {
	promptHistory := history.PromptWindow(turn.History)

	query, err := s.queryRewriter.Rewrite(ctx, promptHistory, turn.Utterance)
	if err != nil {
		if !s.rewriteFallback {
			return nil, err
		}
		s.logger.Warn("ChatService", "Query rewrite failed, searching with raw utterance", map[string]interface{}{
			"chat_id": turn.ChatId,
			"error":   err.Error(),
		})
		query = turn.Utterance
	}

	chunks, err := s.chunkRetriever.Retrieve(ctx, turn.UserId, query, turn.TopK)
	if err != nil {
		if !s.rewriteFallback {
			return nil, err
		}
		s.logger.Warn("ChatService", "Retrieval failed, answering without context", map[string]interface{}{
			"chat_id": turn.ChatId,
			"error":   err.Error(),
		})
		chunks = nil
	}

	var sb strings.Builder
	var emitErr error

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	genErr := s.answerGenerator.Stream(genCtx, promptHistory, chunks, turn.Utterance, func(delta string) error {
		if delta == "" {
			return nil
		}
		sb.WriteString(delta)
		if err := emit(delta); err != nil {
			emitErr = err
			cancel()
			return err
		}
		return nil
	})

	answerText := sb.String()
	persisted := s.finalizeTurn(ctx, turn, answerText)

	// Nothing produced and the consumer was still listening: the engine
	// never started, so the turn stays user-only and the caller is told.
	if genErr != nil && emitErr == nil && answerText == "" {
		return nil, fmt.Errorf("%w: %v", rag.ErrEngineUnavailable, genErr)
	}

	if genErr != nil && answerText != "" {
		s.logger.Warn("ChatService", "Generation ended early, partial answer kept", map[string]interface{}{
			"chat_id": turn.ChatId,
			"emitted": len(answerText),
			"error":   genErr.Error(),
		})
	}

	return &dto.StreamChatResult{
		ChatId:     turn.ChatId,
		Answer:     answerText,
		ChunksUsed: len(chunks),
		Persisted:  persisted,
	}, nil
}

// finalizeTurn writes the assistant turn on a context detached from the
// request, so a client that disconnected mid-stream still gets its
// partial answer recorded. Failures here are logged, never surfaced:
// the increments are already on the wire.
func (s *chatService) finalizeTurn(ctx context.Context, turn *TurnContext, answerText string) bool {
	// Whitespace-only output counts as no answer.
	if strings.TrimSpace(answerText) == "" {
		return false
	}

	persistCtx := context.WithoutCancel(ctx)
	uow := s.uowFactory.NewUnitOfWork(persistCtx)

	if err := uow.Begin(persistCtx); err != nil {
		s.logger.Error("ChatService", "Failed to begin assistant turn persistence", map[string]interface{}{
			"chat_id": turn.ChatId,
			"error":   err.Error(),
		})
		return false
	}
	defer uow.Rollback()

	assistantTurn := entity.Message{
		Id:        uuid.New(),
		ChatId:    turn.ChatId,
		Role:      entity.RoleAssistant,
		Content:   answerText,
		CreatedAt: time.Now(),
	}
	if err := uow.MessageRepository().Create(persistCtx, &assistantTurn); err != nil {
		s.logger.Error("ChatService", "Failed to persist assistant turn", map[string]interface{}{
			"chat_id": turn.ChatId,
			"error":   err.Error(),
		})
		return false
	}
	if err := uow.Commit(); err != nil {
		s.logger.Error("ChatService", "Failed to commit assistant turn", map[string]interface{}{
			"chat_id": turn.ChatId,
			"error":   err.Error(),
		})
		return false
	}

	// Refresh the advisory snapshot with the finished exchange.
	refreshed := make([]llm.Message, 0, len(turn.History)+2)
	refreshed = append(refreshed, turn.History...)
	refreshed = append(refreshed,
		llm.Message{Role: string(entity.RoleUser), Content: turn.Utterance},
		llm.Message{Role: string(entity.RoleAssistant), Content: answerText},
	)
	s.historyCache.Save(&memory.HistorySnapshot{
		ChatId:      turn.ChatId,
		Messages:    refreshed,
		RefreshedAt: time.Now(),
	})

	s.publishEvent(persistCtx, events.ChatReplyPersisted, map[string]interface{}{
		"chat_id":    turn.ChatId,
		"user_id":    turn.UserId,
		"message_id": assistantTurn.Id,
	})
	return true
}

func (s *chatService) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventPublisher == nil {
		return
	}
	evt := events.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	// Events drive notifications only; a bus outage never fails the turn.
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("ChatService", "Failed to publish event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

// titleFromUtterance derives a chat title from the opening message.
func titleFromUtterance(utterance string) string {
	words := strings.Fields(utterance)
	if len(words) == 0 {
		return "New Chat"
	}
	if len(words) > constant.TitleWordCount {
		words = words[:constant.TitleWordCount]
	}
	return strings.Join(words, " ")
}
