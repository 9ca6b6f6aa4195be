package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/service"
	"docchat-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	Rename(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	logger      logger.ILogger
}

func NewChatController(chatService service.IChatService, log logger.ILogger) IChatController {
	return &chatController{
		chatService: chatService,
		logger:      log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Create)
	h.Post("stream", c.Stream)
	h.Post("rename", c.Rename)
	h.Get("", c.GetAll)
	h.Get(":id/history", c.GetHistory)
	h.Delete(":id", c.Delete)
}

func (c *chatController) Create(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	var req dto.CreateChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	res, err := c.chatService.CreateChat(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success create chat", res))
}

// Stream runs a conversation turn and writes the answer increments as a
// plain text body. The chat id and title travel as response headers so
// the client has them before the first token arrives.
func (c *chatController) Stream(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	var req dto.StreamChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// The user turn is committed here; any failure still maps onto a
	// proper status because nothing has been streamed yet.
	turn, err := c.chatService.BeginTurn(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	ctx.Set("X-Chat-Id", turn.ChatId.String())
	ctx.Set("X-Chat-Title", turn.ChatTitle)
	ctx.Set(fiber.HeaderCacheControl, "no-cache")

	// The fiber context is recycled once this handler returns, so the
	// stream writer works from a detached context.
	streamCtx := context.WithoutCancel(ctx.Context())

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		result, err := c.chatService.StreamReply(streamCtx, turn, func(delta string) error {
			if _, werr := w.WriteString(delta); werr != nil {
				return werr
			}
			return w.Flush()
		})
		if err != nil {
			// Too late for a status code: the body is the only channel
			// left, so emit a recognizable error envelope.
			c.logger.Error("ChatController", "Stream failed before any output", map[string]interface{}{
				"chat_id": turn.ChatId,
				"error":   err.Error(),
			})
			code := fiber.StatusInternalServerError
			if errors.Is(err, rag.ErrEngineUnavailable) {
				code = fiber.StatusBadGateway
			} else if errors.Is(err, rag.ErrRetrievalUnavailable) {
				code = fiber.StatusServiceUnavailable
			}
			payload, _ := json.Marshal(serverutils.ErrorResponse(code, err.Error()))
			w.Write(payload)
			w.Flush()
			return
		}

		c.logger.Info("ChatController", "Stream completed", map[string]interface{}{
			"chat_id":     result.ChatId,
			"chunks_used": result.ChunksUsed,
			"persisted":   result.Persisted,
			"answer_len":  len(result.Answer),
		})
		w.Flush()
	}))

	return nil
}

func (c *chatController) GetAll(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	res, err := c.chatService.GetAllChats(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chats", res))
}

func (c *chatController) GetHistory(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	chatId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	res, err := c.chatService.GetChatHistory(ctx.Context(), userId, chatId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) Rename(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	var req dto.RenameChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.RenameChat(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success rename chat", res))
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	chatId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	if err := c.chatService.DeleteChat(ctx.Context(), userId, chatId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete chat", nil))
}
