package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/access"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateDocumentRequest) (*dto.CreateDocumentResponse, error)
	Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateDocumentRequest) (*dto.UpdateDocumentResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
	GetAll(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllDocumentsResponse, error)
}

type documentService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	accessVerifier   *access.Verifier
	logger           logger.ILogger
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		accessVerifier:   access.NewVerifier(),
		logger:           log,
	}
}

func (s *documentService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateDocumentRequest) (*dto.CreateDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	doc := entity.Document{
		Id:        uuid.New(),
		Title:     req.Title,
		Filename:  req.Filename,
		Content:   req.Content,
		UserId:    userId,
		CreatedAt: time.Now(),
	}

	if err := uow.DocumentRepository().Create(ctx, &doc); err != nil {
		return nil, fmt.Errorf("%w: create document: %v", rag.ErrPersistenceFailure, err)
	}

	if err := s.enqueueEmbedding(ctx, doc.Id); err != nil {
		return nil, err
	}

	return &dto.CreateDocumentResponse{Id: doc.Id}, nil
}

func (s *documentService) Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateDocumentRequest) (*dto.UpdateDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	doc, err := s.accessVerifier.VerifyDocumentOwner(ctx, uow, userId, req.Id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc.Title = req.Title
	doc.Content = req.Content
	doc.UpdatedAt = &now

	if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: update document: %v", rag.ErrPersistenceFailure, err)
	}

	// Content changed, so the stored chunks are stale until reindexed.
	if err := s.enqueueEmbedding(ctx, doc.Id); err != nil {
		return nil, err
	}

	return &dto.UpdateDocumentResponse{Id: doc.Id}, nil
}

func (s *documentService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := s.accessVerifier.VerifyDocumentOwner(ctx, uow, userId, id); err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("%w: begin delete: %v", rag.ErrPersistenceFailure, err)
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, id); err != nil {
		return fmt.Errorf("%w: delete chunks: %v", rag.ErrPersistenceFailure, err)
	}
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete document: %v", rag.ErrPersistenceFailure, err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", rag.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *documentService) GetAll(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllDocumentsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	docs, err := uow.DocumentRepository().FindAll(ctx,
		specification.OwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.GetAllDocumentsResponse, 0, len(docs))
	for _, doc := range docs {
		res = append(res, &dto.GetAllDocumentsResponse{
			Id:        doc.Id,
			Title:     doc.Title,
			Filename:  doc.Filename,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return res, nil
}

func (s *documentService) enqueueEmbedding(ctx context.Context, documentId uuid.UUID) error {
	payload, err := json.Marshal(dto.PublishEmbedDocumentMessage{DocumentId: documentId})
	if err != nil {
		return err
	}
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		s.logger.Error("DocumentService", "Failed to enqueue embedding job", map[string]interface{}{
			"document_id": documentId,
			"error":       err.Error(),
		})
		return err
	}
	return nil
}
