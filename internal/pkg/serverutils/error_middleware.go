package serverutils

import (
	"errors"

	"docchat-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware catches errors bubbled out of handlers and maps
// the pipeline sentinels onto HTTP statuses.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, rag.ErrChatNotFound), errors.Is(err, rag.ErrDocumentNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(ErrorResponse(404, err.Error()))
		case errors.Is(err, rag.ErrRetrievalUnavailable):
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse(503, err.Error()))
		case errors.Is(err, rag.ErrEngineUnavailable):
			return ctx.Status(fiber.StatusBadGateway).JSON(ErrorResponse(502, err.Error()))
		case errors.Is(err, rag.ErrPersistenceFailure):
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(500, err.Error()))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(500, err.Error()))
	}
}
