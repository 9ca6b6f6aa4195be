package service

import (
	"context"
	"strings"

	"docchat-be/internal/pkg/logger"
	internalWS "docchat-be/internal/websocket"
	"docchat-be/pkg/events"
	pktNats "docchat-be/pkg/nats"

	"github.com/google/uuid"
)

// ChatEventDelivery pushes real-time updates to connected clients.
// Implemented by the WebSocket Hub.
type ChatEventDelivery interface {
	Send(userID uuid.UUID, event internalWS.ChatEvent)
}

// ChatEventService bridges the durable event bus to live websocket
// connections so every device of the owning user sees chat lifecycle
// changes as they happen.
type ChatEventService struct {
	subscriber *pktNats.Subscriber
	delivery   ChatEventDelivery
	logger     logger.ILogger
}

func NewChatEventService(sub *pktNats.Subscriber, delivery ChatEventDelivery, log logger.ILogger) *ChatEventService {
	return &ChatEventService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *ChatEventService) Start() {
	err := s.subscriber.Subscribe("events.>", "chat-event-worker", s.handleEvent)
	if err != nil {
		s.logger.Error("ChatEventService", "Failed to start event subscriber", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("ChatEventService", "Chat event service started, listening to events.>", nil)
}

func (s *ChatEventService) handleEvent(_ context.Context, event events.Event) error {
	// NATS subjects carry the stream prefix.
	typeCode := strings.TrimPrefix(event.EventType(), "events.")
	payload := event.Payload()

	// Events are owner-scoped: no user_id means nothing to deliver.
	userIDStr, ok := payload["user_id"].(string)
	if !ok {
		s.logger.Warn("ChatEventService", "Event without user_id, skipping delivery", map[string]interface{}{"type": typeCode})
		return nil
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		s.logger.Warn("ChatEventService", "Event with malformed user_id, skipping delivery", map[string]interface{}{"type": typeCode})
		return nil
	}

	var chatID uuid.UUID
	if chatIDStr, ok := payload["chat_id"].(string); ok {
		chatID, _ = uuid.Parse(chatIDStr)
	}

	if s.delivery != nil {
		s.delivery.Send(userID, internalWS.ChatEvent{
			Type:   typeCode,
			ChatId: chatID,
			Data:   payload,
		})
	}
	return nil
}
