package access

import (
	"context"

	"docchat-be/internal/entity"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/rag"

	"github.com/google/uuid"
)

// Verifier enforces the per-chat ownership boundary.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyChatOwner resolves a chat only when it exists and belongs to the
// caller. A missing chat and a foreign chat are indistinguishable to the
// caller: both come back as ErrChatNotFound.
func (v *Verifier) VerifyChatOwner(ctx context.Context, uow unitofwork.UnitOfWork, userId, chatId uuid.UUID) (*entity.Chat, error) {
	chat, err := uow.ChatRepository().FindOne(ctx,
		specification.ByID{ID: chatId},
		specification.OwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, rag.ErrChatNotFound
	}
	return chat, nil
}

// VerifyDocumentOwner applies the same boundary to documents.
func (v *Verifier) VerifyDocumentOwner(ctx context.Context, uow unitofwork.UnitOfWork, userId, documentId uuid.UUID) (*entity.Document, error) {
	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: documentId},
		specification.OwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, rag.ErrDocumentNotFound
	}
	return doc, nil
}
